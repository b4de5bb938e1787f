package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clipblaze/clipblaze-backend/internal/analytics"
	"github.com/clipblaze/clipblaze-backend/internal/highlights"
	"github.com/clipblaze/clipblaze-backend/internal/pipeline"
	"github.com/clipblaze/clipblaze-backend/internal/publish"
	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/internal/render"
	"github.com/clipblaze/clipblaze-backend/internal/source"
	"github.com/clipblaze/clipblaze-backend/internal/transcripts"
	"github.com/clipblaze/clipblaze-backend/internal/videos"
	"github.com/clipblaze/clipblaze-backend/pkg/bigquery"
	"github.com/clipblaze/clipblaze-backend/pkg/config"
	"github.com/clipblaze/clipblaze-backend/pkg/db"
	"github.com/clipblaze/clipblaze-backend/pkg/instance"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/metrics"
	"github.com/clipblaze/clipblaze-backend/pkg/migrate"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox"
	"github.com/clipblaze/clipblaze-backend/pkg/pubsub"
	"github.com/clipblaze/clipblaze-backend/pkg/redis"
	"github.com/clipblaze/clipblaze-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
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

	httpClient := &http.Client{Timeout: 5 * time.Minute}
	bucket := gcsClient.BucketHandle(cfg.GCS.BucketName)
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
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

	var providers []source.FetchProvider
	for _, name := range cfg.Source.Providers {
		switch name {
		case "ytstream":
			provider, err := source.NewYtstreamProvider(httpClient, cfg.Source.YtstreamAPIKey, cfg.Source.YtstreamHost)
			if err != nil {
				logg.Error(context.Background(), "failed to create ytstream provider", err)
				os.Exit(1)
			}
			providers = append(providers, provider)
		default:
			logg.Warn(context.Background(), "unknown source provider "+name+", skipping")
		}
	}
	resolver, err := source.NewResolver(source.ResolverParams{
		Providers:  providers,
		Store:      bucket,
		HTTPClient: httpClient,
		MinBytes:   cfg.Source.MinBytes,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create source resolver", err)
		os.Exit(1)
	}

	whisper, err := transcripts.NewWhisperClient(httpClient, cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.WhisperModel)
	if err != nil {
		logg.Error(context.Background(), "failed to create whisper client", err)
		os.Exit(1)
	}
	transcriptService, err := transcripts.NewService(transcripts.ServiceParams{
		Repo:              transcripts.NewRepository(dbClient.DB()),
		Transcriber:       whisper,
		Store:             bucket,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create transcript service", err)
		os.Exit(1)
	}

	selector, err := highlights.NewChatSelector(httpClient, cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.HighlightModel)
	if err != nil {
		logg.Error(context.Background(), "failed to create highlight selector", err)
		os.Exit(1)
	}
	highlightService, err := highlights.NewService(highlights.ServiceParams{
		Repo:              highlights.NewRepository(dbClient.DB()),
		Selector:          selector,
		TransactionRunner: dbClient,
		Logger:            logg,
		MinSeconds:        cfg.Pipeline.ClipMinSeconds,
		MaxSeconds:        cfg.Pipeline.ClipMaxSeconds,
		MaxClips:          cfg.Pipeline.MaxClipsPerRun,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create highlight service", err)
		os.Exit(1)
	}

	renderer, err := render.NewHTTPRenderer(httpClient, cfg.Render.BaseURL, cfg.Render.APIKey, cfg.Render.PollInterval, cfg.Render.PollBudget)
	if err != nil {
		logg.Error(context.Background(), "failed to create render client", err)
		os.Exit(1)
	}
	renderService, err := render.NewService(render.ServiceParams{
		Repo:              render.NewRepository(dbClient.DB()),
		Renderer:          renderer,
		Quota:             quotaService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Metrics:           pipelineMetrics,
		Logger:            logg,
		Concurrency:       cfg.Render.Concurrency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create render service", err)
		os.Exit(1)
	}

	youtubeUploader, err := publish.NewYouTubeUploader(httpClient, "", cfg.YouTube.CategoryID, cfg.YouTube.ClientID, cfg.YouTube.ClientSecret, bucket)
	if err != nil {
		logg.Error(context.Background(), "failed to create youtube uploader", err)
		os.Exit(1)
	}
	instagramUploader, err := publish.NewInstagramUploader(httpClient, cfg.Instagram.GraphBaseURL, cfg.Instagram.PollInterval, cfg.Instagram.PollBudget)
	if err != nil {
		logg.Error(context.Background(), "failed to create instagram uploader", err)
		os.Exit(1)
	}
	publishService, err := publish.NewService(publish.ServiceParams{
		Repo:      publish.NewRepository(dbClient.DB()),
		Uploaders: []publish.Uploader{youtubeUploader, instagramUploader},
		Metrics:   pipelineMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create publish service", err)
		os.Exit(1)
	}

	recorder, err := analytics.NewRecorder(bigqueryClient, cfg.BigQuery.PipelineEventsTable, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics recorder", err)
		os.Exit(1)
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.OrchestratorParams{
		Videos:            videos.NewRepository(dbClient.DB()),
		Source:            resolver,
		Transcripts:       transcriptService,
		Highlights:        highlightService,
		Render:            renderService,
		Publish:           publishService,
		Quota:             quotaService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Leases:            redisClient,
		Metrics:           pipelineMetrics,
		Analytics:         recorder,
		Logger:            logg,
		Pipeline:          cfg.Pipeline,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orchestrator", err)
		os.Exit(1)
	}

	jobsConsumer, err := pipeline.NewJobsConsumer(orchestrator, pubsubClient.JobsSubscription(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create jobs consumer", err)
		os.Exit(1)
	}
	billingConsumer, err := pipeline.NewBillingConsumer(quotaService, pubsubClient.BillingSubscription(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Redis:           redisClient,
		PubSub:          pubsubClient,
		GCS:             gcsClient,
		BigQuery:        bigqueryClient,
		JobsConsumer:    jobsConsumer,
		BillingConsumer: billingConsumer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting pipeline worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
