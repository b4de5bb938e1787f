package render

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/metrics"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the clip rendering step surface.
type Service interface {
	// RenderClips renders every pending clip for the video, consuming one
	// unit of plan quota per completed clip. Already terminal clips are
	// counted, not re-rendered. Returns the number of completed clips.
	RenderClips(ctx context.Context, video *models.Video, clips []models.Clip) (int, error)
}

// ServiceParams groups dependencies for the render service.
type ServiceParams struct {
	Repo              *Repository
	Renderer          Renderer
	Quota             quota.Service
	Outbox            eventEmitter
	TransactionRunner txRunner
	Metrics           *metrics.PipelineMetrics
	Logger            *logger.Logger
	Concurrency       int
}

type service struct {
	repo        *Repository
	renderer    Renderer
	quota       quota.Service
	outbox      eventEmitter
	txRunner    txRunner
	metrics     *metrics.PipelineMetrics
	logg        *logger.Logger
	concurrency int
}

// NewService builds a render service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("render repo required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("renderer required")
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
	if params.Concurrency <= 0 {
		params.Concurrency = 1
	}
	return &service{
		repo:        params.Repo,
		renderer:    params.Renderer,
		quota:       params.Quota,
		outbox:      params.Outbox,
		txRunner:    params.TransactionRunner,
		metrics:     params.Metrics,
		logg:        params.Logger,
		concurrency: params.Concurrency,
	}, nil
}

func (s *service) RenderClips(ctx context.Context, video *models.Video, clips []models.Clip) (int, error) {
	if video == nil {
		return 0, fmt.Errorf("video required")
	}
	if video.StorageURL == nil || *video.StorageURL == "" {
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "video has no staged source to render from")
	}

	var completed atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i := range clips {
		clip := clips[i]
		if clip.Status == enums.ClipStatusCompleted {
			completed.Add(1)
			continue
		}
		if clip.Status == enums.ClipStatusFailed {
			continue
		}
		group.Go(func() error {
			if err := s.renderOne(groupCtx, video, &clip); err != nil {
				if s.logg != nil {
					logCtx := s.logg.WithClipID(groupCtx, clip.ID.String())
					s.logg.Warn(logCtx, fmt.Sprintf("clip render failed: %v", err))
				}
				return nil
			}
			completed.Add(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return int(completed.Load()), err
	}

	// Render failures are per-clip: once every clip is terminal the step is
	// done, even when nothing rendered. Only earlier stages fail the run.
	return int(completed.Load()), nil
}

func (s *service) renderOne(ctx context.Context, video *models.Video, clip *models.Clip) error {
	result, err := s.renderer.Render(ctx, Request{
		SourceURL:    *video.StorageURL,
		StartSeconds: clip.StartSeconds,
		EndSeconds:   clip.EndSeconds,
		OutputKey:    OutputKeyFor(video.ID.String(), clip.ID.String()),
	})
	if err != nil {
		s.markFailed(ctx, video, clip, err.Error(), true)
		return err
	}

	outputKey := OutputKeyFor(video.ID.String(), clip.ID.String())
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.quota.CommitClipTx(tx, clip.UserID, clip.ID); err != nil {
			return err
		}
		updates := map[string]any{
			"status":      enums.ClipStatusCompleted,
			"storage_key": outputKey,
			"storage_url": result.OutputURL,
		}
		if result.ThumbnailURL != "" {
			updates["thumbnail_url"] = result.ThumbnailURL
		}
		if err := s.repo.UpdateClipTx(tx, clip.ID, updates); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventClipRendered,
			AggregateType: enums.AggregateClip,
			AggregateID:   clip.ID,
			Actor:         &outbox.ActorRef{UserID: clip.UserID},
			Version:       1,
			Data: payloads.ClipRenderedEvent{
				ClipID:     clip.ID,
				VideoID:    video.ID,
				UserID:     clip.UserID,
				ViralScore: clip.ViralScore,
				StorageURL: result.OutputURL,
			},
		})
	})
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExhausted) {
			s.metrics.IncQuotaDenied()
			// Quota denials are a plan limit, not a render fault, so no
			// render-failed event goes out.
			s.markFailed(ctx, video, clip, "plan quota exhausted", false)
			return err
		}
		s.markFailed(ctx, video, clip, err.Error(), true)
		return err
	}

	s.metrics.IncClip(enums.ClipStatusCompleted.String())
	return nil
}

// markFailed records the failure on the clip row and, when the failure is a
// render fault, emits the render-failed event with it.
func (s *service) markFailed(ctx context.Context, video *models.Video, clip *models.Clip, reason string, emitEvent bool) {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":        enums.ClipStatusFailed,
			"error_message": reason,
		}
		if err := s.repo.UpdateClipTx(tx, clip.ID, updates); err != nil {
			return err
		}
		if !emitEvent {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventClipRenderFailed,
			AggregateType: enums.AggregateClip,
			AggregateID:   clip.ID,
			Actor:         &outbox.ActorRef{UserID: clip.UserID},
			Version:       1,
			Data: payloads.ClipRenderFailedEvent{
				ClipID:  clip.ID,
				VideoID: video.ID,
				UserID:  clip.UserID,
				Reason:  reason,
			},
		})
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithClipID(ctx, clip.ID.String()), "recording clip failure", err)
	}
	s.metrics.IncClip(enums.ClipStatusFailed.String())
}

// OutputKeyFor is the bucket object key for a rendered clip.
func OutputKeyFor(videoID, clipID string) string {
	return fmt.Sprintf("clips/%s/%s.mp4", videoID, clipID)
}
