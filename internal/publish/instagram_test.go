package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

func newTestInstagram(t *testing.T, baseURL string) *InstagramUploader {
	t.Helper()
	uploader, err := NewInstagramUploader(http.DefaultClient, baseURL, 5*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("NewInstagramUploader: %v", err)
	}
	return uploader
}

func instagramConnection() *models.PlatformConnection {
	return &models.PlatformConnection{
		Platform:          enums.PlatformInstagram,
		AccessToken:       "ig-token",
		ExternalAccountID: "178000",
	}
}

func TestInstagramUploadRunsContainerFlow(t *testing.T) {
	t.Parallel()

	var statusPolls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/178000/media":
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			if got := r.FormValue("media_type"); got != "REELS" {
				t.Errorf("unexpected media_type %q", got)
			}
			if got := r.FormValue("video_url"); got != "https://cdn.example.com/clips/vid/clip.mp4" {
				t.Errorf("unexpected video_url %q", got)
			}
			if got := r.FormValue("access_token"); got != "ig-token" {
				t.Errorf("unexpected access_token %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/container-1":
			if statusPolls.Add(1) < 2 {
				_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "IN_PROGRESS"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "FINISHED"})
		case r.Method == http.MethodPost && r.URL.Path == "/178000/media_publish":
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			if got := r.FormValue("creation_id"); got != "container-1" {
				t.Errorf("unexpected creation_id %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "media-9"})
		case r.Method == http.MethodGet && r.URL.Path == "/media-9":
			_ = json.NewEncoder(w).Encode(map[string]string{"permalink": "https://www.instagram.com/reel/abc/"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	result, err := newTestInstagram(t, server.URL).Upload(context.Background(), instagramConnection(), storedClip())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.MediaID != "media-9" {
		t.Fatalf("unexpected media id %q", result.MediaID)
	}
	if result.Permalink != "https://www.instagram.com/reel/abc/" {
		t.Fatalf("unexpected permalink %q", result.Permalink)
	}
	if statusPolls.Load() < 2 {
		t.Fatalf("expected container to be polled, got %d polls", statusPolls.Load())
	}
}

func TestInstagramUploadFailsOnContainerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "container-2"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "ERROR"})
	}))
	defer server.Close()

	_, err := newTestInstagram(t, server.URL).Upload(context.Background(), instagramConnection(), storedClip())
	if err == nil {
		t.Fatal("expected error for failed container")
	}
	if !strings.Contains(err.Error(), "ERROR") {
		t.Fatalf("expected container status in error, got %v", err)
	}
}

func TestInstagramRefreshRotatesLongLivedToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/refresh_access_token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("grant_type"); got != "ig_refresh_token" {
			t.Errorf("unexpected grant_type %q", got)
		}
		if got := r.URL.Query().Get("access_token"); got != "ig-token" {
			t.Errorf("unexpected access_token %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "ig-fresh", "expires_in": 5184000})
	}))
	defer server.Close()

	cred, err := newTestInstagram(t, server.URL).Refresh(context.Background(), instagramConnection())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if cred.AccessToken != "ig-fresh" {
		t.Fatalf("unexpected access token %q", cred.AccessToken)
	}
	if !cred.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", cred.ExpiresAt)
	}
}

func TestInstagramRefreshSurfacesAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Session has expired"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	if _, err := newTestInstagram(t, server.URL).Refresh(context.Background(), instagramConnection()); err == nil {
		t.Fatal("expected error from rejected refresh")
	}
}

func TestInstagramUploadRequiresStoredURL(t *testing.T) {
	t.Parallel()

	uploader := newTestInstagram(t, "https://graph.example.com")
	if _, err := uploader.Upload(context.Background(), instagramConnection(), &models.Clip{}); err == nil {
		t.Fatal("expected error for clip without stored url")
	}
}

func TestInstagramUploadRequiresAccountID(t *testing.T) {
	t.Parallel()

	conn := instagramConnection()
	conn.ExternalAccountID = ""
	uploader := newTestInstagram(t, "https://graph.example.com")
	if _, err := uploader.Upload(context.Background(), conn, storedClip()); err == nil {
		t.Fatal("expected error for connection without account id")
	}
}
