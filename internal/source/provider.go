// Package source resolves a submitted video URL to a downloadable stream and
// stages the bytes into object storage for the rest of the pipeline.
package source

import (
	"context"
)

// Info is what a provider learns about a source video.
type Info struct {
	Title           string
	DurationSeconds float64
	DownloadURL     string
}

// FetchProvider turns a public video URL into a direct download URL.
type FetchProvider interface {
	Name() string
	Resolve(ctx context.Context, sourceURL string) (*Info, error)
}
