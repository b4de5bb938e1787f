package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/clipblaze/clipblaze-backend/api/responses"
	"github.com/clipblaze/clipblaze-backend/pkg/bigquery"
	"github.com/clipblaze/clipblaze-backend/pkg/config"
	"github.com/clipblaze/clipblaze-backend/pkg/db"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/redis"
	"github.com/clipblaze/clipblaze-backend/pkg/storage/gcs"
	"go.uber.org/multierr"
)

const readyCheckTimeout = 3 * time.Second

// Healthz reports process liveness.
func Healthz(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ClipBlaze-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// Readyz pings the backing services the API cannot serve without.
func Readyz(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	gcsP gcs.Pinger,
	bigqueryP bigquery.Pinger,
) http.HandlerFunc {
	type check struct {
		name   string
		pinger interface {
			Ping(ctx context.Context) error
		}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ClipBlaze-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		checks := []check{
			{name: "db", pinger: dbP},
			{name: "redis", pinger: redisP},
			{name: "gcs", pinger: gcsP},
			{name: "bigquery", pinger: bigqueryP},
		}
		var errs error
		for _, c := range checks {
			if c.pinger == nil {
				continue
			}
			if err := c.pinger.Ping(ctx); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s unavailable: %w", c.name, err))
			}
		}
		if errs != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "dependencies unavailable"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
