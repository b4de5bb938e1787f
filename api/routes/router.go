package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipblaze/clipblaze-backend/api/controllers"
	"github.com/clipblaze/clipblaze-backend/api/middleware"
	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/internal/videos"
	"github.com/clipblaze/clipblaze-backend/pkg/bigquery"
	"github.com/clipblaze/clipblaze-backend/pkg/config"
	"github.com/clipblaze/clipblaze-backend/pkg/db"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/redis"
	"github.com/clipblaze/clipblaze-backend/pkg/storage/gcs"
)

// RouterParams groups everything the HTTP surface depends on.
type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      redis.Pinger
	GCS        gcs.Pinger
	BigQuery   bigquery.Pinger
	Videos     videos.Service
	Quota      quota.Service
	Metrics    prometheus.Gatherer
}

// NewRouter builds the API route tree.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.Healthz(cfg))
	r.Get("/readyz", controllers.Readyz(cfg, logg, params.DB, params.Redis, params.GCS, params.BigQuery))

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/videos", func(r chi.Router) {
			r.Post("/", controllers.VideoSubmit(params.Videos, logg))
			r.Get("/", controllers.VideoList(params.Videos, logg))
			r.Get("/{videoId}", controllers.VideoDetail(params.Videos, logg))
			r.Post("/{videoId}/cancel", controllers.VideoCancel(params.Videos, logg))
		})

		r.Get("/usage", controllers.Usage(params.Quota, logg))
	})

	return r
}
