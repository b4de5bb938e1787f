package highlights

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
)

func TestParseCandidatesBareArray(t *testing.T) {
	t.Parallel()

	got, err := ParseCandidates(`[{"title":"Hook","start_seconds":10,"end_seconds":40,"viral_score":80}]`)
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Hook" || got[0].EndSeconds != 40 {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestParseCandidatesMarkdownFence(t *testing.T) {
	t.Parallel()

	content := "```json\n[{\"title\":\"Fenced\",\"start_seconds\":0,\"end_seconds\":20}]\n```"
	got, err := ParseCandidates(content)
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Fenced" {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestParseCandidatesWrappedObject(t *testing.T) {
	t.Parallel()

	got, err := ParseCandidates(`{"highlights":[{"title":"Wrapped","start_seconds":5,"end_seconds":25}]}`)
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Wrapped" {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestParseCandidatesProseWrappedArray(t *testing.T) {
	t.Parallel()

	content := `Here are the clips I found: [{"title":"Prose","start_seconds":12,"end_seconds":42,"viral_score":65}] Let me know if you need more.`
	got, err := ParseCandidates(content)
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Prose" || got[0].StartSeconds != 12 {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestParseCandidatesProseWithBracketsInStrings(t *testing.T) {
	t.Parallel()

	content := `Sure! [{"title":"Uses [brackets]","start_seconds":0,"end_seconds":20,"excerpt":"a ] inside"}] done`
	got, err := ParseCandidates(content)
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Uses [brackets]" {
		t.Fatalf("unexpected candidates %+v", got)
	}
}

func TestParseCandidatesMalformed(t *testing.T) {
	t.Parallel()

	if _, err := ParseCandidates("not json at all"); err == nil {
		t.Fatal("expected error for malformed content")
	}
	if _, err := ParseCandidates(""); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestChatSelectorSendsTranscriptPrompt(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: `[{"title":"Hook","start_seconds":10,"end_seconds":40,"viral_score":70}]`}},
			},
		})
	}))
	defer server.Close()

	selector, err := NewChatSelector(http.DefaultClient, server.URL, "sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewChatSelector: %v", err)
	}

	title := "How to solder"
	duration := 120.0
	video := &models.Video{ID: uuid.New(), Title: &title, DurationSeconds: &duration}
	transcript := &models.Transcript{Segments: models.SegmentList{
		{Start: 0, End: 30, Text: "first part"},
		{Start: 30, End: 60, Text: "second part"},
	}}

	got, err := selector.Select(context.Background(), video, transcript)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0].ViralScore != 70 {
		t.Fatalf("unexpected candidates %+v", got)
	}

	if captured.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model %q", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(captured.Messages))
	}
	userPrompt := captured.Messages[1].Content
	if !strings.Contains(userPrompt, "How to solder") {
		t.Errorf("prompt missing video title: %q", userPrompt)
	}
	if !strings.Contains(userPrompt, "[0.0-30.0] first part") {
		t.Errorf("prompt missing timestamped segment: %q", userPrompt)
	}
}

func TestChatSelectorSurfacesAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	selector, err := NewChatSelector(http.DefaultClient, server.URL, "sk-test", "")
	if err != nil {
		t.Fatalf("NewChatSelector: %v", err)
	}

	_, err = selector.Select(context.Background(), &models.Video{}, &models.Transcript{})
	if err == nil {
		t.Fatal("expected error from non-200 response")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}
