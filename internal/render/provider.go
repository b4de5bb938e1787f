// Package render turns planned clips into stored media through an external
// rendering service.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/poll"
)

// Request describes one clip cut for the rendering service.
type Request struct {
	SourceURL    string  `json:"source_url"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	OutputKey    string  `json:"output_key"`
}

// Result is the stored output of a finished render job.
type Result struct {
	OutputURL    string
	ThumbnailURL string
}

// Renderer produces a clip file from a staged source span.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Result, error)
}

// HTTPRenderer submits jobs to the rendering service and polls them to a
// terminal state.
type HTTPRenderer struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewHTTPRenderer builds a renderer against the configured service.
func NewHTTPRenderer(httpClient *http.Client, baseURL, apiKey string, pollInterval, pollBudget time.Duration) (*HTTPRenderer, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("render base url required")
	}
	if pollInterval <= 0 || pollBudget <= 0 {
		return nil, fmt.Errorf("poll interval and budget must be positive")
	}
	return &HTTPRenderer{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:       strings.TrimSpace(apiKey),
		pollInterval: pollInterval,
		pollBudget:   pollBudget,
	}, nil
}

type jobResponse struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	OutputURL    string `json:"output_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Error        string `json:"error"`
}

// Render implements Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, req Request) (*Result, error) {
	job, err := r.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return poll.Until(ctx, r.pollInterval, r.pollBudget, func(ctx context.Context) (*Result, bool, error) {
		return r.check(ctx, job)
	})
}

func (r *HTTPRenderer) submit(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/jobs", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	r.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render submit failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("render service returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding render submit response")
	}
	if decoded.JobID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "render service returned no job id")
	}
	return decoded.JobID, nil
}

func (r *HTTPRenderer) check(ctx context.Context, jobID string) (*Result, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return nil, false, err
	}
	r.authorize(httpReq)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render status poll failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, false, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("render status returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding render status response")
	}

	switch decoded.Status {
	case "succeeded":
		if decoded.OutputURL == "" {
			return nil, false, pkgerrors.New(pkgerrors.CodeDependency, "render job completed without output url")
		}
		return &Result{OutputURL: decoded.OutputURL, ThumbnailURL: decoded.ThumbnailURL}, true, nil
	case "failed":
		reason := decoded.Error
		if reason == "" {
			reason = "unknown render failure"
		}
		return nil, false, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("render job failed: %s", reason))
	default:
		return nil, false, nil
	}
}

func (r *HTTPRenderer) authorize(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
}
