package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
)

// YtstreamProvider resolves YouTube URLs through the ytstream RapidAPI.
type YtstreamProvider struct {
	httpClient *http.Client
	apiKey     string
	host       string
}

// NewYtstreamProvider builds the provider. The host is the RapidAPI host
// header value, without scheme.
func NewYtstreamProvider(httpClient *http.Client, apiKey, host string) (*YtstreamProvider, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("ytstream api key required")
	}
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("ytstream host required")
	}
	return &YtstreamProvider{
		httpClient: httpClient,
		apiKey:     strings.TrimSpace(apiKey),
		host:       strings.TrimSpace(host),
	}, nil
}

// Name implements FetchProvider.
func (p *YtstreamProvider) Name() string {
	return "ytstream"
}

type ytstreamFormat struct {
	URL          string `json:"url"`
	MimeType     string `json:"mimeType"`
	QualityLabel string `json:"qualityLabel"`
}

type ytstreamResponse struct {
	Status        string           `json:"status"`
	Title         string           `json:"title"`
	LengthSeconds string           `json:"lengthSeconds"`
	Formats       []ytstreamFormat `json:"formats"`
}

// Resolve implements FetchProvider.
func (p *YtstreamProvider) Resolve(ctx context.Context, sourceURL string) (*Info, error) {
	videoID, err := ExtractYouTubeID(sourceURL)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("https://%s/dl?id=%s", p.host, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", p.apiKey)
	req.Header.Set("X-RapidAPI-Host", p.host)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ytstream request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("ytstream returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded ytstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding ytstream response")
	}
	if !strings.EqualFold(decoded.Status, "ok") {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("ytstream status %q", decoded.Status))
	}

	format := pickFormat(decoded.Formats)
	if format == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ytstream returned no usable mp4 format")
	}

	duration, _ := strconv.ParseFloat(decoded.LengthSeconds, 64)
	return &Info{
		Title:           decoded.Title,
		DurationSeconds: duration,
		DownloadURL:     format.URL,
	}, nil
}

// pickFormat prefers 720p mp4, then 480p, then any mp4 with a URL.
func pickFormat(formats []ytstreamFormat) *ytstreamFormat {
	var fallback *ytstreamFormat
	var p480 *ytstreamFormat
	for i := range formats {
		f := &formats[i]
		if f.URL == "" || !strings.Contains(f.MimeType, "video/mp4") {
			continue
		}
		switch f.QualityLabel {
		case "720p":
			return f
		case "480p":
			if p480 == nil {
				p480 = f
			}
		default:
			if fallback == nil {
				fallback = f
			}
		}
	}
	if p480 != nil {
		return p480
	}
	return fallback
}

// ExtractYouTubeID pulls the 11-character video id out of the supported
// YouTube URL shapes.
func ExtractYouTubeID(sourceURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid source url")
	}

	host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(parsed.Path, "/")
	case "youtube.com", "m.youtube.com":
		switch {
		case parsed.Path == "/watch":
			id = parsed.Query().Get("v")
		case strings.HasPrefix(parsed.Path, "/shorts/"):
			id = strings.Trim(strings.TrimPrefix(parsed.Path, "/shorts/"), "/")
		case strings.HasPrefix(parsed.Path, "/embed/"):
			id = strings.Trim(strings.TrimPrefix(parsed.Path, "/embed/"), "/")
		}
	}

	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "could not extract youtube video id")
	}
	return id, nil
}
