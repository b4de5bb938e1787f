package publish

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

type fakeReaderStore struct {
	content string
}

func (f *fakeReaderStore) Reader(ctx context.Context, object string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func storedClip() *models.Clip {
	key := "clips/vid/clip.mp4"
	url := "https://cdn.example.com/clips/vid/clip.mp4"
	return &models.Clip{
		ID:         uuid.New(),
		Title:      "Big moment",
		Excerpt:    "the best part",
		StorageKey: &key,
		StorageURL: &url,
	}
}

func TestYouTubeUploadSendsMetadataAndMedia(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/upload/youtube/v3/videos") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer yt-token" {
			t.Errorf("unexpected auth header")
		}
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/related" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}

		reader := multipart.NewReader(r.Body, params["boundary"])

		metaPart, err := reader.NextPart()
		if err != nil {
			t.Fatalf("read metadata part: %v", err)
		}
		var insert youtubeInsert
		if err := json.NewDecoder(metaPart).Decode(&insert); err != nil {
			t.Errorf("decode metadata: %v", err)
		}
		if insert.Snippet.Title != "Big moment #Shorts" {
			t.Errorf("unexpected title %q", insert.Snippet.Title)
		}
		if insert.Snippet.CategoryID != "22" {
			t.Errorf("unexpected category %q", insert.Snippet.CategoryID)
		}
		if insert.Status.PrivacyStatus != "public" {
			t.Errorf("unexpected privacy %q", insert.Status.PrivacyStatus)
		}

		mediaPart, err := reader.NextPart()
		if err != nil {
			t.Fatalf("read media part: %v", err)
		}
		raw, _ := io.ReadAll(mediaPart)
		if string(raw) != "clip-bytes" {
			t.Errorf("unexpected media content %q", raw)
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "yt123"})
	}))
	defer server.Close()

	uploader, err := NewYouTubeUploader(http.DefaultClient, server.URL, "22", "cid", "secret", &fakeReaderStore{content: "clip-bytes"})
	if err != nil {
		t.Fatalf("NewYouTubeUploader: %v", err)
	}

	conn := &models.PlatformConnection{Platform: enums.PlatformYouTube, AccessToken: "yt-token"}
	result, err := uploader.Upload(context.Background(), conn, storedClip())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.MediaID != "yt123" {
		t.Fatalf("unexpected media id %q", result.MediaID)
	}
	if result.Permalink != "https://www.youtube.com/shorts/yt123" {
		t.Fatalf("unexpected permalink %q", result.Permalink)
	}
}

func TestYouTubeUploadSurfacesAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quotaExceeded"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	uploader, err := NewYouTubeUploader(http.DefaultClient, server.URL, "", "cid", "secret", &fakeReaderStore{content: "clip"})
	if err != nil {
		t.Fatalf("NewYouTubeUploader: %v", err)
	}

	conn := &models.PlatformConnection{Platform: enums.PlatformYouTube, AccessToken: "yt-token"}
	_, err = uploader.Upload(context.Background(), conn, storedClip())
	if err == nil {
		t.Fatal("expected error from non-200 response")
	}
	if !strings.Contains(err.Error(), "quotaExceeded") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestYouTubeUploadRequiresStoredClip(t *testing.T) {
	t.Parallel()

	uploader, err := NewYouTubeUploader(http.DefaultClient, "https://example.com", "", "cid", "secret", &fakeReaderStore{})
	if err != nil {
		t.Fatalf("NewYouTubeUploader: %v", err)
	}

	conn := &models.PlatformConnection{Platform: enums.PlatformYouTube, AccessToken: "yt-token"}
	if _, err := uploader.Upload(context.Background(), conn, &models.Clip{ID: uuid.New()}); err == nil {
		t.Fatal("expected error for clip without stored media")
	}
}

func TestYouTubeRefreshExchangesRefreshToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant type %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "yt-refresh" {
			t.Errorf("unexpected refresh token %q", r.PostForm.Get("refresh_token"))
		}
		if r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("client_secret") != "secret" {
			t.Errorf("client credentials missing from refresh request")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "yt-fresh", "expires_in": 3600})
	}))
	defer server.Close()

	uploader, err := NewYouTubeUploader(http.DefaultClient, server.URL, "", "cid", "secret", &fakeReaderStore{})
	if err != nil {
		t.Fatalf("NewYouTubeUploader: %v", err)
	}

	refresh := "yt-refresh"
	cred, err := uploader.Refresh(context.Background(), &models.PlatformConnection{
		Platform:     enums.PlatformYouTube,
		AccessToken:  "stale",
		RefreshToken: &refresh,
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if cred.AccessToken != "yt-fresh" {
		t.Fatalf("unexpected access token %q", cred.AccessToken)
	}
	if !cred.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", cred.ExpiresAt)
	}
}

func TestYouTubeRefreshRequiresRefreshToken(t *testing.T) {
	t.Parallel()

	uploader, err := NewYouTubeUploader(http.DefaultClient, "https://example.com", "", "cid", "secret", &fakeReaderStore{})
	if err != nil {
		t.Fatalf("NewYouTubeUploader: %v", err)
	}

	conn := &models.PlatformConnection{Platform: enums.PlatformYouTube, AccessToken: "stale"}
	if _, err := uploader.Refresh(context.Background(), conn); err == nil {
		t.Fatal("expected error without refresh token")
	}
}

func TestShortsTitleKeepsExistingTag(t *testing.T) {
	t.Parallel()

	if got := shortsTitle("Already tagged #shorts"); got != "Already tagged #shorts" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := shortsTitle("Plain"); got != "Plain #Shorts" {
		t.Fatalf("unexpected title %q", got)
	}
}
