package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox/payloads"
)

// ErrQuotaExhausted signals the user has no clip allowance left.
var ErrQuotaExhausted = pkgerrors.New(pkgerrors.CodeQuotaExceeded, "clip quota exhausted for billing period")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the plan-quota surface used by the pipeline and the API.
type Service interface {
	// EnsureSubscription returns the user's subscription, creating a free
	// one when none exists yet.
	EnsureSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	// CheckAvailable verifies at least one clip of allowance remains. It
	// never consumes.
	CheckAvailable(ctx context.Context, userID uuid.UUID) error
	// CommitClipTx consumes one clip of allowance and writes the usage
	// audit row, inside the caller's transaction. Returns ErrQuotaExhausted
	// when the guarded update matches no row.
	CommitClipTx(tx *gorm.DB, userID, clipID uuid.UUID) error
	// ApplyPlanChange updates plan/limit/period from a billing event.
	ApplyPlanChange(ctx context.Context, event payloads.PlanSyncRequestedEvent) error
	// Usage returns the current subscription snapshot for display.
	Usage(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the quota service.
type ServiceParams struct {
	Repo              *Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type service struct {
	repo     *Repository
	txRunner txRunner
	logg     *logger.Logger
}

// NewService builds a quota service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quota repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

func (s *service) EnsureSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	fresh := &models.Subscription{
		UserID:      userID,
		Plan:        enums.PlanFree,
		ClipsLimit:  enums.PlanFree.ClipLimit(),
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
	}
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.CreateTx(tx, fresh)
	})
	if err != nil {
		// A concurrent request may have created the row first.
		if existing, findErr := s.repo.FindByUserID(ctx, userID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return fresh, nil
}

func (s *service) CheckAvailable(ctx context.Context, userID uuid.UUID) error {
	sub, err := s.EnsureSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if sub.ClipsLimit < 0 {
		return nil
	}
	if sub.ClipsUsed >= sub.ClipsLimit {
		return ErrQuotaExhausted
	}
	return nil
}

func (s *service) CommitClipTx(tx *gorm.DB, userID, clipID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	affected, err := s.repo.ConsumeTx(tx, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrQuotaExhausted
	}

	var sub models.Subscription
	if err := tx.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return err
	}
	return s.repo.InsertUsageEventTx(tx, &models.UsageEvent{
		UserID:         userID,
		SubscriptionID: sub.ID,
		ClipID:         clipID,
		EventType:      "clip_generated",
	})
}

func (s *service) ApplyPlanChange(ctx context.Context, event payloads.PlanSyncRequestedEvent) error {
	if event.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !event.Plan.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan %q", event.Plan))
	}

	if _, err := s.EnsureSubscription(ctx, event.UserID); err != nil {
		return err
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.ApplyPlanTx(tx, event.UserID, event.Plan, event.PeriodStart, event.PeriodEnd)
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		// New billing period starts with a clean counter.
		if err := s.repo.ResetUsageTx(tx, event.UserID); err != nil {
			return err
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"user_id": event.UserID.String(),
				"plan":    event.Plan.String(),
			})
			s.logg.Info(logCtx, "plan change applied")
		}
		return nil
	})
}

func (s *service) Usage(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return s.EnsureSubscription(ctx, userID)
}
