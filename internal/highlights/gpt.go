// Package highlights selects clip-worthy moments from a transcript and
// checkpoints them as pending clips.
package highlights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
)

// Candidate is one proposed highlight before bounds filtering.
type Candidate struct {
	Title        string  `json:"title"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Excerpt      string  `json:"excerpt"`
	ViralScore   int     `json:"viral_score"`
}

// Selector proposes highlight candidates for a transcribed video.
type Selector interface {
	Select(ctx context.Context, video *models.Video, transcript *models.Transcript) ([]Candidate, error)
}

// ChatSelector asks an OpenAI chat model for highlight candidates.
type ChatSelector struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewChatSelector builds a chat-completions backed selector.
func NewChatSelector(httpClient *http.Client, baseURL, apiKey, model string) (*ChatSelector, error) {
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
		model = "gpt-4o-mini"
	}
	return &ChatSelector{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
	}, nil
}

const systemPrompt = `You find short-form highlight moments in video transcripts.
Respond with a JSON array only. Each element has the keys title,
start_seconds, end_seconds, excerpt and viral_score (0-100).
Each highlight must be a self-contained moment between 15 and 60 seconds.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Select implements Selector.
func (s *ChatSelector) Select(ctx context.Context, video *models.Video, transcript *models.Transcript) ([]Candidate, error) {
	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(video, transcript)},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "highlight model request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("highlight model returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding highlight response")
	}
	if len(decoded.Choices) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "highlight model returned no choices")
	}

	return ParseCandidates(decoded.Choices[0].Message.Content)
}

// buildPrompt renders the transcript as timestamped lines the model can
// reference when picking spans.
func buildPrompt(video *models.Video, transcript *models.Transcript) string {
	var b strings.Builder
	if video.Title != nil && *video.Title != "" {
		fmt.Fprintf(&b, "Video title: %s\n", *video.Title)
	}
	if video.DurationSeconds != nil {
		fmt.Fprintf(&b, "Video duration: %.1f seconds\n", *video.DurationSeconds)
	}
	b.WriteString("Transcript:\n")
	for _, seg := range transcript.Segments {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", seg.Start, seg.End, seg.Text)
	}
	return b.String()
}

// ParseCandidates decodes the model output. Models sometimes wrap the JSON
// in a markdown fence, an object or surrounding prose, so all three shapes
// are accepted.
func ParseCandidates(content string) ([]Candidate, error) {
	trimmed := stripFences(content)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "highlight model returned empty content")
	}

	var list []Candidate
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Highlights []Candidate `json:"highlights"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil {
		return wrapped.Highlights, nil
	}

	if span := firstArraySpan(trimmed); span != "" {
		if err := json.Unmarshal([]byte(span), &list); err == nil {
			return list, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "highlight model returned malformed JSON")
}

// firstArraySpan returns the first balanced JSON array inside content, so a
// response like "Here are the clips: [...]" still parses.
func firstArraySpan(content string) string {
	start := strings.Index(content, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
