package api

import (
	"net/http"
	"time"

	"github.com/clipblaze/clipblaze-backend/pkg/config"
)

// NewServer wraps the handler in an http.Server with sane timeouts. Write
// timeout stays generous because clip listings can carry large upload maps.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
