package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
)

// ErrCorruptDownload marks a fetched stream smaller than the configured floor.
var ErrCorruptDownload = errors.New("corrupt download: source below minimum size")

type objectStore interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) error
	Delete(ctx context.Context, object string) error
	PublicURL(object string) string
}

// Result is the staged source material for one video.
type Result struct {
	StorageKey      string
	StorageURL      string
	Title           string
	DurationSeconds float64
}

// Resolver tries each configured provider in order and stages the download
// into object storage.
type Resolver struct {
	providers  []FetchProvider
	store      objectStore
	httpClient *http.Client
	minBytes   int64
	logg       *logger.Logger
}

// ResolverParams groups dependencies for the resolver.
type ResolverParams struct {
	Providers  []FetchProvider
	Store      objectStore
	HTTPClient *http.Client
	MinBytes   int64
	Logger     *logger.Logger
}

// NewResolver builds a resolver with the required dependencies.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if len(params.Providers) == 0 {
		return nil, fmt.Errorf("at least one fetch provider required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if params.HTTPClient == nil {
		return nil, fmt.Errorf("http client required")
	}
	return &Resolver{
		providers:  params.Providers,
		store:      params.Store,
		httpClient: params.HTTPClient,
		minBytes:   params.MinBytes,
		logg:       params.Logger,
	}, nil
}

// StorageKeyFor returns the canonical object key for a video's source file.
func StorageKeyFor(video *models.Video) string {
	return fmt.Sprintf("videos/%s/source.mp4", video.ID)
}

// Fetch resolves and stages the source. When the video already carries a
// storage key the previous download is reused untouched.
func (r *Resolver) Fetch(ctx context.Context, video *models.Video) (*Result, error) {
	if video == nil {
		return nil, fmt.Errorf("video required")
	}

	if video.StorageKey != nil && *video.StorageKey != "" {
		result := &Result{
			StorageKey: *video.StorageKey,
			StorageURL: r.store.PublicURL(*video.StorageKey),
		}
		if video.Title != nil {
			result.Title = *video.Title
		}
		if video.DurationSeconds != nil {
			result.DurationSeconds = *video.DurationSeconds
		}
		if r.logg != nil {
			r.logg.Info(r.logg.WithVideoID(ctx, video.ID.String()), "source already staged, skipping download")
		}
		return result, nil
	}

	var lastErr error
	for _, provider := range r.providers {
		info, err := provider.Resolve(ctx, video.SourceURL)
		if err != nil {
			lastErr = err
			if r.logg != nil {
				logCtx := r.logg.WithFields(ctx, map[string]any{
					"video_id": video.ID.String(),
					"provider": provider.Name(),
				})
				r.logg.Warn(logCtx, "source provider failed")
			}
			continue
		}

		result, err := r.stage(ctx, video, info)
		if err != nil {
			lastErr = err
			continue
		}
		result.Title = info.Title
		result.DurationSeconds = info.DurationSeconds
		return result, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "no source provider produced a download")
}

func (r *Resolver) stage(ctx context.Context, video *models.Video, info *Info) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DownloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "downloading source")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("source download returned %s", resp.Status))
	}

	key := StorageKeyFor(video)
	counter := &countingReader{inner: resp.Body}
	if err := r.store.Upload(ctx, key, "video/mp4", counter); err != nil {
		return nil, err
	}

	if r.minBytes > 0 && counter.n < r.minBytes {
		// The object is garbage, drop it so a retry starts clean.
		_ = r.store.Delete(ctx, key)
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrCorruptDownload, counter.n, r.minBytes)
	}

	return &Result{
		StorageKey: key,
		StorageURL: r.store.PublicURL(key),
	}, nil
}

type countingReader struct {
	inner io.Reader
	n     int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.inner.Read(p)
	c.n += int64(n)
	return n, err
}
