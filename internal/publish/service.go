package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/metrics"
)

const maxParallelUploads = 4

// Service is the social publishing step surface.
type Service interface {
	// PublishClips pushes every completed clip to the user's auto-upload
	// connections. Uploads are best effort: failures are recorded on the
	// clip and never fail the pipeline run.
	PublishClips(ctx context.Context, video *models.Video, clips []models.Clip) error
}

// ServiceParams groups dependencies for the publish service.
type ServiceParams struct {
	Repo      *Repository
	Uploaders []Uploader
	Metrics   *metrics.PipelineMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	uploaders map[enums.Platform]Uploader
	metrics   *metrics.PipelineMetrics
	logg      *logger.Logger

	mu sync.Mutex // guards the in-memory upload maps during fan-out
}

// NewService builds a publish service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("publish repo required")
	}
	if len(params.Uploaders) == 0 {
		return nil, fmt.Errorf("at least one uploader required")
	}
	uploaders := make(map[enums.Platform]Uploader, len(params.Uploaders))
	for _, uploader := range params.Uploaders {
		if _, exists := uploaders[uploader.Platform()]; exists {
			return nil, fmt.Errorf("duplicate uploader for platform %s", uploader.Platform())
		}
		uploaders[uploader.Platform()] = uploader
	}
	return &service{
		repo:      params.Repo,
		uploaders: uploaders,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

func (s *service) PublishClips(ctx context.Context, video *models.Video, clips []models.Clip) error {
	if video == nil {
		return fmt.Errorf("video required")
	}

	connections, err := s.repo.ListAutoUpload(ctx, video.UserID)
	if err != nil {
		return err
	}
	if len(connections) == 0 {
		if s.logg != nil {
			s.logg.Info(s.logg.WithVideoID(ctx, video.ID.String()), "no auto-upload connections, skipping publish")
		}
		return nil
	}

	// Platforms are independent units: fan out per connection, one clip at
	// a time so a shared connection sees its refreshed token.
	for i := range clips {
		clip := &clips[i]
		if clip.Status != enums.ClipStatusCompleted {
			continue
		}
		var group errgroup.Group
		group.SetLimit(maxParallelUploads)
		for j := range connections {
			conn := &connections[j]
			group.Go(func() error {
				s.publishOne(ctx, conn, clip)
				return nil
			})
		}
		_ = group.Wait()
	}
	return nil
}

func (s *service) publishOne(ctx context.Context, conn *models.PlatformConnection, clip *models.Clip) {
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"clip_id":  clip.ID.String(),
			"platform": conn.Platform.String(),
		})
	}

	if s.alreadyUploaded(clip, conn.Platform) {
		if s.logg != nil {
			s.logg.Info(logCtx, "clip already uploaded, skipping")
		}
		return
	}

	uploader, ok := s.uploaders[conn.Platform]
	if !ok {
		s.record(logCtx, clip, conn.Platform, models.UploadRecord{
			Status: enums.UploadStatusFailed,
			Error:  fmt.Sprintf("no uploader configured for %s", conn.Platform),
		})
		return
	}

	if conn.TokenExpiresAt != nil && conn.TokenExpiresAt.Before(time.Now()) {
		if err := s.refreshConnection(logCtx, uploader, conn); err != nil {
			s.record(logCtx, clip, conn.Platform, models.UploadRecord{
				Status: enums.UploadStatusFailed,
				Error:  "access token refresh failed",
			})
			return
		}
	}

	s.record(logCtx, clip, conn.Platform, models.UploadRecord{Status: enums.UploadStatusUploading})

	result, err := uploader.Upload(ctx, conn, clip)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(logCtx, fmt.Sprintf("clip upload failed: %v", err))
		}
		s.record(logCtx, clip, conn.Platform, models.UploadRecord{
			Status: enums.UploadStatusFailed,
			Error:  err.Error(),
		})
		return
	}

	s.record(logCtx, clip, conn.Platform, models.UploadRecord{
		Status:    enums.UploadStatusUploaded,
		MediaID:   result.MediaID,
		Permalink: result.Permalink,
	})
	if s.logg != nil {
		s.logg.Info(logCtx, "clip uploaded")
	}
}

// refreshConnection rotates the expired credential and persists it so later
// clips and runs reuse the fresh token.
func (s *service) refreshConnection(ctx context.Context, uploader Uploader, conn *models.PlatformConnection) error {
	cred, err := uploader.Refresh(ctx, conn)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("access token refresh failed: %v", err))
		}
		return err
	}
	if err := s.repo.UpdateTokens(ctx, conn.ID, *cred); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "persisting refreshed token", err)
		}
		return err
	}
	conn.AccessToken = cred.AccessToken
	expiresAt := cred.ExpiresAt
	conn.TokenExpiresAt = &expiresAt
	if cred.RefreshToken != "" {
		refresh := cred.RefreshToken
		conn.RefreshToken = &refresh
	}
	if s.logg != nil {
		s.logg.Info(ctx, "access token refreshed")
	}
	return nil
}

func (s *service) alreadyUploaded(clip *models.Clip, platform enums.Platform) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := clip.Uploads[platform]
	return ok && record.Status == enums.UploadStatusUploaded
}

func (s *service) record(ctx context.Context, clip *models.Clip, platform enums.Platform, record models.UploadRecord) {
	if err := s.repo.SetUploadRecord(ctx, clip.ID, platform, record); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "recording upload outcome", err)
		}
		return
	}
	s.mu.Lock()
	if clip.Uploads == nil {
		clip.Uploads = models.UploadMap{}
	}
	clip.Uploads[platform] = record
	s.mu.Unlock()
	if record.Status == enums.UploadStatusUploaded || record.Status == enums.UploadStatusFailed {
		s.metrics.IncUpload(platform.String(), record.Status.String())
	}
}
