// Package transcripts produces and stores timestamped transcriptions for
// staged source videos.
package transcripts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
)

// RawTranscript is the provider output before normalization.
type RawTranscript struct {
	Text     string
	Language string
	Segments []RawSegment
}

// RawSegment is one span of recognized speech as returned by the provider.
type RawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcriber converts an audio/video stream into a timestamped transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, media io.Reader, filename string) (*RawTranscript, error)
}

// WhisperClient calls the OpenAI transcription endpoint.
type WhisperClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewWhisperClient builds a Whisper transcriber.
func NewWhisperClient(httpClient *http.Client, baseURL, apiKey, model string) (*WhisperClient, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai api key required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("openai base url required")
	}
	if strings.TrimSpace(model) == "" {
		model = "whisper-1"
	}
	return &WhisperClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
	}, nil
}

type whisperResponse struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Segments []RawSegment `json:"segments"`
}

// Transcribe implements Transcriber using verbose_json so segment timestamps
// come back with the text.
func (c *WhisperClient) Transcribe(ctx context.Context, media io.Reader, filename string) (*RawTranscript, error) {
	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)

	go func() {
		defer func() { _ = writer.Close() }()
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, media); err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		if err := form.WriteField("model", c.model); err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		if err := form.WriteField("response_format", "verbose_json"); err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		_ = writer.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "whisper request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("whisper returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding whisper response")
	}

	return &RawTranscript{
		Text:     decoded.Text,
		Language: decoded.Language,
		Segments: decoded.Segments,
	}, nil
}
