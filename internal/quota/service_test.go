package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox/payloads"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:quota_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ddl := []string{
		`CREATE TABLE subscriptions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			plan TEXT NOT NULL DEFAULT 'free',
			clips_limit INTEGER NOT NULL,
			clips_used INTEGER NOT NULL DEFAULT 0,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE usage_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subscription_id TEXT NOT NULL,
			clip_id TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT 'clip_generated',
			created_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		TransactionRunner: gormTxRunner{db: db},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedSubscription(t *testing.T, db *gorm.DB, userID uuid.UUID, plan enums.PlanTier, used int) models.Subscription {
	t.Helper()
	now := time.Now().UTC()
	sub := models.Subscription{
		ID:          uuid.New(),
		UserID:      userID,
		Plan:        plan,
		ClipsLimit:  plan.ClipLimit(),
		ClipsUsed:   used,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
	}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func TestEnsureSubscriptionDefaultsToFreePlan(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()

	sub, err := svc.EnsureSubscription(context.Background(), userID)
	if err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}
	if sub.Plan != enums.PlanFree {
		t.Fatalf("expected free plan, got %s", sub.Plan)
	}
	if sub.ClipsLimit != 3 {
		t.Fatalf("expected free limit 3, got %d", sub.ClipsLimit)
	}

	again, err := svc.EnsureSubscription(context.Background(), userID)
	if err != nil {
		t.Fatalf("second EnsureSubscription: %v", err)
	}
	if again.ID != sub.ID {
		t.Fatalf("expected same subscription row on repeat call")
	}
}

func TestCheckAvailable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	exhausted := uuid.New()
	seedSubscription(t, db, exhausted, enums.PlanFree, 3)
	if err := svc.CheckAvailable(context.Background(), exhausted); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}

	unlimited := uuid.New()
	seedSubscription(t, db, unlimited, enums.PlanUnlimited, 100000)
	if err := svc.CheckAvailable(context.Background(), unlimited); err != nil {
		t.Fatalf("unlimited plan should always pass: %v", err)
	}
}

func TestCommitClipTxConsumesUntilExhausted(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()
	sub := seedSubscription(t, db, userID, enums.PlanFree, 0)

	for i := 0; i < 3; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.CommitClipTx(tx, userID, uuid.New())
		})
		if err != nil {
			t.Fatalf("commit %d failed: %v", i+1, err)
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.CommitClipTx(tx, userID, uuid.New())
	})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted on fourth commit, got %v", err)
	}

	var got models.Subscription
	if err := db.First(&got, "user_id = ?", userID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if got.ClipsUsed != 3 {
		t.Fatalf("expected clips_used=3, got %d", got.ClipsUsed)
	}

	var events int64
	if err := db.Model(&models.UsageEvent{}).Where("subscription_id = ?", sub.ID).Count(&events).Error; err != nil {
		t.Fatalf("count usage events: %v", err)
	}
	if events != 3 {
		t.Fatalf("expected 3 usage events, got %d", events)
	}
}

func TestCommitClipTxConcurrentCommitsStayExact(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()
	sub := seedSubscription(t, db, userID, enums.PlanFree, 0)

	const workers = 8
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := db.Transaction(func(tx *gorm.DB) error {
					return svc.CommitClipTx(tx, userID, uuid.New())
				})
				if err == nil {
					granted.Add(1)
					return
				}
				if errors.Is(err, ErrQuotaExhausted) {
					return
				}
				// sqlite rejects overlapping writers; back off and retry.
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 3 {
		t.Fatalf("expected exactly 3 commits granted, got %d", granted.Load())
	}
	var got models.Subscription
	if err := db.First(&got, "user_id = ?", userID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if got.ClipsUsed != 3 {
		t.Fatalf("expected clips_used=3 after concurrent commits, got %d", got.ClipsUsed)
	}
	var events int64
	if err := db.Model(&models.UsageEvent{}).Where("subscription_id = ?", sub.ID).Count(&events).Error; err != nil {
		t.Fatalf("count usage events: %v", err)
	}
	if events != 3 {
		t.Fatalf("expected one usage event per granted commit, got %d", events)
	}
}

func TestCommitClipTxFailureRollsBackUsageEvent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()
	seedSubscription(t, db, userID, enums.PlanFree, 3)

	_ = db.Transaction(func(tx *gorm.DB) error {
		return svc.CommitClipTx(tx, userID, uuid.New())
	})

	var events int64
	if err := db.Model(&models.UsageEvent{}).Where("user_id = ?", userID).Count(&events).Error; err != nil {
		t.Fatalf("count usage events: %v", err)
	}
	if events != 0 {
		t.Fatalf("exhausted commit must not leave usage events, got %d", events)
	}
}

func TestApplyPlanChangeUpdatesLimitAndResetsUsage(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()
	seedSubscription(t, db, userID, enums.PlanFree, 2)

	start := time.Now().UTC()
	err := svc.ApplyPlanChange(context.Background(), payloads.PlanSyncRequestedEvent{
		UserID:      userID,
		Plan:        enums.PlanPro,
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("ApplyPlanChange: %v", err)
	}

	var got models.Subscription
	if err := db.First(&got, "user_id = ?", userID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if got.Plan != enums.PlanPro {
		t.Fatalf("expected pro plan, got %s", got.Plan)
	}
	if got.ClipsLimit != 50 {
		t.Fatalf("expected pro limit 50, got %d", got.ClipsLimit)
	}
	if got.ClipsUsed != 0 {
		t.Fatalf("expected usage reset, got %d", got.ClipsUsed)
	}
}

func TestApplyPlanChangeRejectsUnknownPlan(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	err := svc.ApplyPlanChange(context.Background(), payloads.PlanSyncRequestedEvent{
		UserID: uuid.New(),
		Plan:   enums.PlanTier("platinum"),
	})
	if err == nil {
		t.Fatal("expected validation error for unknown plan")
	}
}
