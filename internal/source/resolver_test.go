package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
)

type fakeProvider struct {
	name string
	info *Info
	err  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Resolve(ctx context.Context, sourceURL string) (*Info, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type memoryStore struct {
	objects map[string]string
	deleted []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]string{}}
}

func (m *memoryStore) Upload(ctx context.Context, object, contentType string, body io.Reader) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[object] = string(raw)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, object string) error {
	m.deleted = append(m.deleted, object)
	delete(m.objects, object)
	return nil
}

func (m *memoryStore) PublicURL(object string) string {
	return "https://storage.test/" + object
}

func newTestResolver(t *testing.T, store *memoryStore, minBytes int64, providers ...FetchProvider) *Resolver {
	t.Helper()
	resolver, err := NewResolver(ResolverParams{
		Providers:  providers,
		Store:      store,
		HTTPClient: http.DefaultClient,
		MinBytes:   minBytes,
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return resolver
}

func TestFetchStagesDownload(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 64)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	store := newMemoryStore()
	resolver := newTestResolver(t, store, 10, &fakeProvider{
		name: "fake",
		info: &Info{Title: "My Video", DurationSeconds: 120, DownloadURL: server.URL},
	})

	video := &models.Video{ID: uuid.New(), SourceURL: "https://youtu.be/abc"}
	result, err := resolver.Fetch(context.Background(), video)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.StorageKey != StorageKeyFor(video) {
		t.Fatalf("unexpected storage key %s", result.StorageKey)
	}
	if got := store.objects[result.StorageKey]; got != payload {
		t.Fatalf("staged bytes mismatch")
	}
	if result.Title != "My Video" || result.DurationSeconds != 120 {
		t.Fatalf("metadata not propagated: %+v", result)
	}
}

func TestFetchRejectsCorruptDownload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tiny"))
	}))
	defer server.Close()

	store := newMemoryStore()
	resolver := newTestResolver(t, store, 10240, &fakeProvider{
		name: "fake",
		info: &Info{DownloadURL: server.URL},
	})

	video := &models.Video{ID: uuid.New(), SourceURL: "https://youtu.be/abc"}
	_, err := resolver.Fetch(context.Background(), video)
	if !errors.Is(err, ErrCorruptDownload) {
		t.Fatalf("expected ErrCorruptDownload, got %v", err)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("corrupt object should be deleted, deleted=%v", store.deleted)
	}
	if len(store.objects) != 0 {
		t.Fatalf("no staged object should remain")
	}
}

func TestFetchFallsThroughProviders(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("y", 64)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	store := newMemoryStore()
	resolver := newTestResolver(t, store, 10,
		&fakeProvider{name: "broken", err: errors.New("provider down")},
		&fakeProvider{name: "working", info: &Info{DownloadURL: server.URL}},
	)

	video := &models.Video{ID: uuid.New(), SourceURL: "https://youtu.be/abc"}
	if _, err := resolver.Fetch(context.Background(), video); err != nil {
		t.Fatalf("expected fallback provider to succeed: %v", err)
	}
}

func TestFetchReturnsLastErrorWhenAllProvidersFail(t *testing.T) {
	t.Parallel()

	lastErr := errors.New("second down")
	resolver := newTestResolver(t, newMemoryStore(), 10,
		&fakeProvider{name: "first", err: errors.New("first down")},
		&fakeProvider{name: "second", err: lastErr},
	)

	video := &models.Video{ID: uuid.New(), SourceURL: "https://youtu.be/abc"}
	if _, err := resolver.Fetch(context.Background(), video); !errors.Is(err, lastErr) {
		t.Fatalf("expected last provider error, got %v", err)
	}
}

func TestFetchSkipsWhenAlreadyStaged(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	provider := &fakeProvider{name: "fake", err: errors.New("must not be called")}
	resolver := newTestResolver(t, store, 10, provider)

	key := "videos/existing/source.mp4"
	title := "Staged"
	duration := 90.0
	video := &models.Video{
		ID:              uuid.New(),
		SourceURL:       "https://youtu.be/abc",
		StorageKey:      &key,
		Title:           &title,
		DurationSeconds: &duration,
	}

	result, err := resolver.Fetch(context.Background(), video)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.StorageKey != key {
		t.Fatalf("expected existing key reused, got %s", result.StorageKey)
	}
	if result.Title != title || result.DurationSeconds != duration {
		t.Fatalf("expected stored metadata reused: %+v", result)
	}
}
