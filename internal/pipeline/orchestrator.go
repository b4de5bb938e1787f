// Package pipeline drives submitted videos through download, transcription,
// highlight analysis and clip generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/analytics"
	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/internal/source"
	"github.com/clipblaze/clipblaze-backend/internal/videos"
	"github.com/clipblaze/clipblaze-backend/pkg/config"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/metrics"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox/payloads"
	redispkg "github.com/clipblaze/clipblaze-backend/pkg/redis"
)

const (
	leaseScope = "video"

	// Per-step attempt budgets beyond the configurable default: an empty
	// model result gets one retry, and render failures are already
	// absorbed per clip so the step never repeats.
	analyzeMaxAttempts  = 2
	generateMaxAttempts = 1
)

// errRaceLost signals that another worker moved the video's status first.
// The losing run drops the job without touching the row again.
var errRaceLost = errors.New("video status changed by another worker")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type sourceFetcher interface {
	Fetch(ctx context.Context, video *models.Video) (*source.Result, error)
}

type transcriptStep interface {
	EnsureTranscript(ctx context.Context, video *models.Video) (*models.Transcript, error)
}

type highlightStep interface {
	PlanClips(ctx context.Context, video *models.Video, transcript *models.Transcript) ([]models.Clip, error)
}

type renderStep interface {
	RenderClips(ctx context.Context, video *models.Video, clips []models.Clip) (int, error)
}

type publishStep interface {
	PublishClips(ctx context.Context, video *models.Video, clips []models.Clip) error
}

type leaseStore interface {
	LeaseKey(scope, id string) string
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, key, owner string) error
}

// OrchestratorParams groups dependencies for the pipeline orchestrator.
type OrchestratorParams struct {
	Videos            *videos.Repository
	Source            sourceFetcher
	Transcripts       transcriptStep
	Highlights        highlightStep
	Render            renderStep
	Publish           publishStep
	Quota             quota.Service
	Outbox            eventEmitter
	TransactionRunner txRunner
	Leases            leaseStore
	Metrics           *metrics.PipelineMetrics
	Analytics         *analytics.Recorder
	Logger            *logger.Logger
	Pipeline          config.PipelineConfig
}

// Orchestrator runs the processing pipeline for one video at a time, resuming
// from checkpoints when a previous run died partway.
type Orchestrator struct {
	videos      *videos.Repository
	source      sourceFetcher
	transcripts transcriptStep
	highlights  highlightStep
	render      renderStep
	publish     publishStep
	quota       quota.Service
	outbox      eventEmitter
	txRunner    txRunner
	leases      leaseStore
	metrics     *metrics.PipelineMetrics
	analytics   *analytics.Recorder
	logg        *logger.Logger
	cfg         config.PipelineConfig
	owner       string
}

// NewOrchestrator builds an orchestrator with the required dependencies.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Videos == nil {
		return nil, fmt.Errorf("video repo required")
	}
	if params.Source == nil {
		return nil, fmt.Errorf("source fetcher required")
	}
	if params.Transcripts == nil {
		return nil, fmt.Errorf("transcript service required")
	}
	if params.Highlights == nil {
		return nil, fmt.Errorf("highlight service required")
	}
	if params.Render == nil {
		return nil, fmt.Errorf("render service required")
	}
	if params.Publish == nil {
		return nil, fmt.Errorf("publish service required")
	}
	if params.Quota == nil {
		return nil, fmt.Errorf("quota service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Leases == nil {
		return nil, fmt.Errorf("lease store required")
	}
	cfg := params.Pipeline
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 15 * time.Minute
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 20 * time.Minute
	}
	if cfg.StepMaxAttempts <= 0 {
		cfg.StepMaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	return &Orchestrator{
		videos:      params.Videos,
		source:      params.Source,
		transcripts: params.Transcripts,
		highlights:  params.Highlights,
		render:      params.Render,
		publish:     params.Publish,
		quota:       params.Quota,
		outbox:      params.Outbox,
		txRunner:    params.TransactionRunner,
		leases:      params.Leases,
		metrics:     params.Metrics,
		analytics:   params.Analytics,
		logg:        params.Logger,
		cfg:         cfg,
		owner:       uuid.NewString(),
	}, nil
}

// runState carries the intermediate outputs between steps of one run.
type runState struct {
	video      *models.Video
	transcript *models.Transcript
	clips      []models.Clip
	completed  int
}

type step struct {
	status   enums.VideoStatus
	attempts int
	run      func(ctx context.Context, state *runState) error
}

// Process runs the pipeline for a submitted video. A nil return acknowledges
// the job: either the run finished (completed or terminally failed) or it is
// being handled elsewhere. A non-nil return asks for redelivery.
func (o *Orchestrator) Process(ctx context.Context, videoID uuid.UUID) error {
	logCtx := ctx
	if o.logg != nil {
		logCtx = o.logg.WithVideoID(ctx, videoID.String())
	}

	video, err := o.videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if o.logg != nil {
				o.logg.Warn(logCtx, "job references unknown video, dropping")
			}
			return nil
		}
		return err
	}
	if video.Status.IsTerminal() {
		if o.logg != nil {
			o.logg.Info(logCtx, "video already terminal, dropping redelivery")
		}
		return nil
	}

	leaseKey := o.leases.LeaseKey(leaseScope, videoID.String())
	if err := o.leases.AcquireLease(ctx, leaseKey, o.owner, o.cfg.LeaseTTL); err != nil {
		if errors.Is(err, redispkg.ErrLeaseHeld) {
			if o.logg != nil {
				o.logg.Info(logCtx, "pipeline lease held elsewhere, dropping")
			}
			return nil
		}
		return err
	}
	defer func() {
		if err := o.leases.ReleaseLease(context.WithoutCancel(ctx), leaseKey, o.owner); err != nil && o.logg != nil {
			o.logg.Warn(logCtx, fmt.Sprintf("releasing pipeline lease: %v", err))
		}
	}()

	if err := o.quota.CheckAvailable(ctx, video.UserID); err != nil {
		if errors.Is(err, quota.ErrQuotaExhausted) {
			o.metrics.IncQuotaDenied()
			return o.failVideo(logCtx, video, video.Status, "plan quota exhausted")
		}
		return err
	}

	state := &runState{video: video}
	steps := []step{
		{status: enums.VideoStatusDownloading, attempts: o.cfg.StepMaxAttempts, run: o.stepDownload},
		{status: enums.VideoStatusTranscribing, attempts: o.cfg.StepMaxAttempts, run: o.stepTranscribe},
		{status: enums.VideoStatusAnalyzing, attempts: analyzeMaxAttempts, run: o.stepAnalyze},
		{status: enums.VideoStatusGenerating, attempts: generateMaxAttempts, run: o.stepGenerate},
	}

	for _, st := range steps {
		// Re-acquiring refreshes the TTL, so a run longer than one lease
		// period stays fenced as long as steps keep completing.
		if err := o.leases.AcquireLease(ctx, leaseKey, o.owner, o.cfg.LeaseTTL); err != nil {
			if errors.Is(err, redispkg.ErrLeaseHeld) {
				if o.logg != nil {
					o.logg.Warn(logCtx, "pipeline lease lost mid-run, dropping")
				}
				return nil
			}
			return err
		}

		canceled, err := o.cancelRequested(ctx, video)
		if err != nil {
			return err
		}
		if canceled {
			o.analytics.RecordStep(ctx, video.ID, video.UserID, st.status.String(), analytics.OutcomeCanceled, 0, "")
			return o.failVideo(logCtx, video, st.status, "canceled by user")
		}

		if video.Status.CanTransitionTo(st.status) {
			if err := o.advance(ctx, video, st.status); err != nil {
				if errors.Is(err, errRaceLost) {
					if o.logg != nil {
						o.logg.Warn(logCtx, "video advanced by another worker, dropping")
					}
					return nil
				}
				return err
			}
		}

		started := time.Now()
		err = o.runStep(ctx, st, state)
		elapsed := time.Since(started)
		o.metrics.ObserveStepDuration(st.status.String(), elapsed)
		if err != nil {
			o.metrics.IncStepFailure(st.status.String())
			o.analytics.RecordStep(ctx, video.ID, video.UserID, st.status.String(), analytics.OutcomeFailed, elapsed, err.Error())
			if o.logg != nil {
				o.logg.Error(logCtx, fmt.Sprintf("pipeline step %s failed", st.status), err)
			}
			return o.failVideo(logCtx, video, st.status, userFacingReason(err))
		}
		o.metrics.IncStepSuccess(st.status.String())
		o.analytics.RecordStep(ctx, video.ID, video.UserID, st.status.String(), analytics.OutcomeSucceeded, elapsed, "")
	}

	if err := o.complete(logCtx, video, state.completed); err != nil {
		if errors.Is(err, errRaceLost) {
			if o.logg != nil {
				o.logg.Warn(logCtx, "video completed by another worker, dropping")
			}
			return nil
		}
		return err
	}
	return nil
}

// runStep executes the step body with the configured per-attempt timeout and
// bounded exponential backoff. Errors the error metadata marks non-retryable
// fail the step immediately.
func (o *Orchestrator) runStep(ctx context.Context, st step, state *runState) error {
	attempts := st.attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(o.cfg.RetryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
		defer cancel()

		err := st.run(stepCtx, state)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func isPermanent(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	if typed := pkgerrors.As(err); typed != nil {
		return !pkgerrors.MetadataFor(typed.Code()).Retryable
	}
	return false
}

func (o *Orchestrator) stepDownload(ctx context.Context, state *runState) error {
	result, err := o.source.Fetch(ctx, state.video)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"storage_key": result.StorageKey,
		"storage_url": result.StorageURL,
	}
	if result.Title != "" {
		updates["title"] = result.Title
	}
	if result.DurationSeconds > 0 {
		updates["duration_seconds"] = result.DurationSeconds
	}
	err = o.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return o.videos.UpdateTx(tx, state.video.ID, updates)
	})
	if err != nil {
		return err
	}

	state.video.StorageKey = &result.StorageKey
	state.video.StorageURL = &result.StorageURL
	if result.Title != "" {
		state.video.Title = &result.Title
	}
	if result.DurationSeconds > 0 {
		state.video.DurationSeconds = &result.DurationSeconds
	}
	return nil
}

func (o *Orchestrator) stepTranscribe(ctx context.Context, state *runState) error {
	transcript, err := o.transcripts.EnsureTranscript(ctx, state.video)
	if err != nil {
		return err
	}
	state.transcript = transcript
	return nil
}

func (o *Orchestrator) stepAnalyze(ctx context.Context, state *runState) error {
	clips, err := o.highlights.PlanClips(ctx, state.video, state.transcript)
	if err != nil {
		return err
	}
	state.clips = clips
	return nil
}

func (o *Orchestrator) stepGenerate(ctx context.Context, state *runState) error {
	completed, err := o.render.RenderClips(ctx, state.video, state.clips)
	if err != nil {
		return err
	}
	state.completed = completed

	rendered, err := o.videos.ClipsByVideo(ctx, state.video.ID)
	if err != nil {
		return err
	}
	if err := o.publish.PublishClips(ctx, state.video, rendered); err != nil && o.logg != nil {
		// Publishing is best effort; the clips are already stored.
		o.logg.Warn(o.logg.WithVideoID(ctx, state.video.ID.String()),
			fmt.Sprintf("publishing clips: %v", err))
	}
	return nil
}

// cancelRequested re-reads the cooperative cancel flag at a step boundary.
func (o *Orchestrator) cancelRequested(ctx context.Context, video *models.Video) (bool, error) {
	fresh, err := o.videos.FindByID(ctx, video.ID)
	if err != nil {
		return false, err
	}
	video.CancelRequested = fresh.CancelRequested
	return fresh.CancelRequested, nil
}

func (o *Orchestrator) advance(ctx context.Context, video *models.Video, next enums.VideoStatus) error {
	err := o.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := o.videos.UpdateStatusTx(tx, video.ID, video.Status, next)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errRaceLost
		}
		return nil
	})
	if err != nil {
		return err
	}
	video.Status = next
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, video *models.Video, clipCount int) error {
	err := o.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := o.videos.UpdateStatusTx(tx, video.ID, video.Status, enums.VideoStatusCompleted)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errRaceLost
		}
		return o.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVideoCompleted,
			AggregateType: enums.AggregateVideo,
			AggregateID:   video.ID,
			Actor:         &outbox.ActorRef{UserID: video.UserID},
			Version:       1,
			Data: payloads.VideoCompletedEvent{
				VideoID:    video.ID,
				UserID:     video.UserID,
				ClipCount:  clipCount,
				FinishedAt: time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return err
	}
	video.Status = enums.VideoStatusCompleted
	if o.logg != nil {
		o.logg.Info(ctx, fmt.Sprintf("pipeline completed with %d clips", clipCount))
	}
	return nil
}

// failVideo marks the video terminally failed and emits the failure event.
// It returns nil so the job is acknowledged instead of redelivered. A video
// already terminal stays untouched: the guarded update affects no rows and
// no event goes out.
func (o *Orchestrator) failVideo(ctx context.Context, video *models.Video, step enums.VideoStatus, reason string) error {
	if video.Status.IsTerminal() {
		return nil
	}
	var won bool
	err := o.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := o.videos.FailTx(tx, video.ID, reason)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		won = true
		return o.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVideoFailed,
			AggregateType: enums.AggregateVideo,
			AggregateID:   video.ID,
			Actor:         &outbox.ActorRef{UserID: video.UserID},
			Version:       1,
			Data: payloads.VideoFailedEvent{
				VideoID:  video.ID,
				UserID:   video.UserID,
				Step:     step,
				Reason:   reason,
				FailedAt: time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return err
	}
	if !won {
		if o.logg != nil {
			o.logg.Warn(ctx, "video already terminal, leaving it untouched")
		}
		return nil
	}
	video.Status = enums.VideoStatusFailed
	if o.logg != nil {
		o.logg.Warn(ctx, fmt.Sprintf("pipeline failed at %s: %s", step, reason))
	}
	return nil
}

// userFacingReason reduces a step error to the short message stored on the
// video row. Full diagnostics stay in logs and analytics.
func userFacingReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeStateConflict, pkgerrors.CodeQuotaExceeded:
		if m := typed.Message(); m != "" {
			return m
		}
	}
	return pkgerrors.MetadataFor(typed.Code()).PublicMessage
}
