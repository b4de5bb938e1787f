package videos

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// idempotencyStore reserves client-supplied submission keys in redis.
type idempotencyStore interface {
	IdempotencyKey(scope, id string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// submitIdempotencyTTL bounds how long a submission key replays the same
// video before it can be reused.
const submitIdempotencyTTL = 24 * time.Hour

// Service is the video submission and query surface behind the API.
type Service interface {
	Submit(ctx context.Context, userID uuid.UUID, input SubmitInput) (*VideoView, error)
	Get(ctx context.Context, userID, videoID uuid.UUID) (*VideoDetail, error)
	List(ctx context.Context, userID uuid.UUID, params ListParams) ([]VideoView, error)
	RequestCancel(ctx context.Context, userID, videoID uuid.UUID) error
}

// ServiceParams groups dependencies for the video service. Idempotency is
// optional; without a store, submission keys are ignored.
type ServiceParams struct {
	Repo              *Repository
	Quota             quota.Service
	Outbox            eventEmitter
	TransactionRunner txRunner
	Idempotency       idempotencyStore
	Logger            *logger.Logger
}

type service struct {
	repo     *Repository
	quota    quota.Service
	outbox   eventEmitter
	txRunner txRunner
	idem     idempotencyStore
	logg     *logger.Logger
}

// NewService builds a video service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("video repo required")
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
	return &service{
		repo:     params.Repo,
		quota:    params.Quota,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		idem:     params.Idempotency,
		logg:     params.Logger,
	}, nil
}

// Submit validates the source URL, checks the plan quota and enqueues a
// pipeline run through the outbox.
func (s *service) Submit(ctx context.Context, userID uuid.UUID, input SubmitInput) (*VideoView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sourceURL, err := normalizeSourceURL(input.SourceURL)
	if err != nil {
		return nil, err
	}

	if err := s.quota.CheckAvailable(ctx, userID); err != nil {
		return nil, err
	}

	video := &models.Video{
		ID:         uuid.New(),
		UserID:     userID,
		SourceURL:  sourceURL,
		SourceType: "youtube",
		Status:     enums.VideoStatusPending,
	}

	idemKey, replay, err := s.reserveSubmitKey(ctx, userID, input.IdempotencyKey, video.ID)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, video); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVideoSubmitted,
			AggregateType: enums.AggregateVideo,
			AggregateID:   video.ID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Version:       1,
			Data: payloads.VideoSubmittedEvent{
				VideoID:   video.ID,
				UserID:    userID,
				SourceURL: sourceURL,
			},
		})
	})
	if err != nil {
		if idemKey != "" {
			if delErr := s.idem.Del(ctx, idemKey); delErr != nil && s.logg != nil {
				s.logg.Warn(ctx, fmt.Sprintf("releasing idempotency key: %v", delErr))
			}
		}
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithVideoID(ctx, video.ID.String())
		s.logg.Info(logCtx, "video submitted")
	}

	view := NewVideoView(*video)
	return &view, nil
}

// reserveSubmitKey claims the caller's idempotency key for the new video. A
// key already claimed replays the original submission instead of creating a
// second run.
func (s *service) reserveSubmitKey(ctx context.Context, userID uuid.UUID, rawKey string, videoID uuid.UUID) (string, *VideoView, error) {
	key := strings.TrimSpace(rawKey)
	if key == "" || s.idem == nil {
		return "", nil, nil
	}

	redisKey := s.idem.IdempotencyKey("submit", userID.String()+":"+key)
	claimed, err := s.idem.SetNX(ctx, redisKey, videoID.String(), submitIdempotencyTTL)
	if err != nil {
		return "", nil, err
	}
	if claimed {
		return redisKey, nil, nil
	}

	existing, err := s.idem.Get(ctx, redisKey)
	if err != nil {
		return "", nil, err
	}
	priorID, err := uuid.Parse(existing)
	if err != nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused")
	}
	prior, err := s.repo.FindByIDForUser(ctx, priorID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused")
		}
		return "", nil, err
	}
	view := NewVideoView(*prior)
	return "", &view, nil
}

func (s *service) Get(ctx context.Context, userID, videoID uuid.UUID) (*VideoDetail, error) {
	video, err := s.repo.FindByIDForUser(ctx, videoID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
		}
		return nil, err
	}
	clips, err := s.repo.ClipsByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	detail := &VideoDetail{VideoView: NewVideoView(*video), Clips: make([]ClipView, 0, len(clips))}
	for _, clip := range clips {
		detail.Clips = append(detail.Clips, NewClipView(clip))
	}
	return detail, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params ListParams) ([]VideoView, error) {
	rows, err := s.repo.ListByUser(ctx, userID, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	views := make([]VideoView, 0, len(rows))
	for _, row := range rows {
		views = append(views, NewVideoView(row))
	}
	return views, nil
}

// RequestCancel flips the cooperative cancel flag. The worker honors it at
// the next step boundary; terminal videos cannot be canceled.
func (s *service) RequestCancel(ctx context.Context, userID, videoID uuid.UUID) error {
	video, err := s.repo.FindByIDForUser(ctx, videoID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
		}
		return err
	}
	if video.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "video already finished")
	}

	affected, err := s.repo.MarkCancelRequested(ctx, videoID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "video already finished")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithVideoID(ctx, videoID.String()), "cancel requested")
	}
	return nil
}

func normalizeSourceURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "source_url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "source_url must be an absolute URL")
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "source_url must use http or https")
	}
	host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
	switch host {
	case "youtube.com", "m.youtube.com", "youtu.be":
		return trimmed, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "only youtube source urls are supported")
	}
}
