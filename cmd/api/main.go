package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clipblaze/clipblaze-backend/api"
	"github.com/clipblaze/clipblaze-backend/api/routes"
	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/internal/videos"
	"github.com/clipblaze/clipblaze-backend/pkg/bigquery"
	"github.com/clipblaze/clipblaze-backend/pkg/config"
	"github.com/clipblaze/clipblaze-backend/pkg/db"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/migrate"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox"
	"github.com/clipblaze/clipblaze-backend/pkg/redis"
	"github.com/clipblaze/clipblaze-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs client", err)
		}
	}()

	bigqueryClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap bigquery", err)
		os.Exit(1)
	}
	defer func() {
		if err := bigqueryClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery client", err)
		}
	}()

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	quotaService, err := quota.NewService(quota.ServiceParams{
		Repo:              quota.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota service", err)
		os.Exit(1)
	}

	videoService, err := videos.NewService(videos.ServiceParams{
		Repo:              videos.NewRepository(dbClient.DB()),
		Quota:             quotaService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Idempotency:       redisClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create video service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.RouterParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		GCS:      gcsClient,
		BigQuery: bigqueryClient,
		Videos:   videoService,
		Quota:    quotaService,
		Metrics:  prometheus.DefaultGatherer,
	})

	if port := os.Getenv("PORT"); port != "" {
		cfg.App.Port = port
	}
	server := api.NewServer(cfg, router)

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
	logg.Info(ctx, "starting api server")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
