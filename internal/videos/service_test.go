package videos

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox/payloads"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubQuota struct {
	checkErr error
}

func (s *stubQuota) EnsureSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{UserID: userID}, nil
}

func (s *stubQuota) CheckAvailable(ctx context.Context, userID uuid.UUID) error {
	return s.checkErr
}

func (s *stubQuota) CommitClipTx(tx *gorm.DB, userID, clipID uuid.UUID) error {
	return nil
}

func (s *stubQuota) ApplyPlanChange(ctx context.Context, event payloads.PlanSyncRequestedEvent) error {
	return nil
}

func (s *stubQuota) Usage(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{UserID: userID}, nil
}

type recordingEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (r *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

type fakeIdempotency struct {
	store  map[string]string
	setErr error
}

func (f *fakeIdempotency) IdempotencyKey(scope, id string) string {
	return "cb:idempotency:" + scope + ":" + id
}

func (f *fakeIdempotency) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if f.store == nil {
		f.store = map[string]string{}
	}
	if _, ok := f.store[key]; ok {
		return false, nil
	}
	f.store[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeIdempotency) Get(ctx context.Context, key string) (string, error) {
	return f.store[key], nil
}

func (f *fakeIdempotency) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.store, key)
	}
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:videos_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ddl := []string{
		`CREATE TABLE videos (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			source_url TEXT NOT NULL,
			source_type TEXT NOT NULL DEFAULT 'youtube',
			title TEXT,
			duration_seconds REAL,
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			storage_key TEXT,
			storage_url TEXT,
			cancel_requested INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE clips (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			start_seconds REAL NOT NULL,
			end_seconds REAL NOT NULL,
			duration_seconds REAL NOT NULL,
			excerpt TEXT,
			viral_score INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			storage_key TEXT,
			storage_url TEXT,
			thumbnail_url TEXT,
			error_message TEXT,
			uploads TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, q quota.Service, emitter eventEmitter) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		Quota:             q,
		Outbox:            emitter,
		TransactionRunner: gormTxRunner{db: db},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSubmitCreatesVideoAndEmitsEvent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	emitter := &recordingEmitter{}
	svc := newTestService(t, db, &stubQuota{}, emitter)
	userID := uuid.New()

	view, err := svc.Submit(context.Background(), userID, SubmitInput{
		SourceURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if view.Status != enums.VideoStatusPending {
		t.Fatalf("expected pending status, got %s", view.Status)
	}

	var stored models.Video
	if err := db.First(&stored, "id = ?", view.ID).Error; err != nil {
		t.Fatalf("load video: %v", err)
	}
	if stored.UserID != userID {
		t.Fatalf("stored user mismatch")
	}

	if len(emitter.events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(emitter.events))
	}
	event := emitter.events[0]
	if event.EventType != enums.EventVideoSubmitted {
		t.Fatalf("unexpected event type %s", event.EventType)
	}
	payload, ok := event.Data.(payloads.VideoSubmittedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", event.Data)
	}
	if payload.VideoID != view.ID {
		t.Fatalf("payload video mismatch")
	}
}

func TestSubmitRejectsNonYouTubeURL(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &stubQuota{}, &recordingEmitter{})

	cases := []string{
		"",
		"not-a-url",
		"ftp://youtube.com/watch?v=abc",
		"https://vimeo.com/12345",
	}
	for _, raw := range cases {
		if _, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{SourceURL: raw}); err == nil {
			t.Fatalf("expected validation error for %q", raw)
		}
	}
}

func TestSubmitRejectsWhenQuotaExhausted(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	emitter := &recordingEmitter{}
	svc := newTestService(t, db, &stubQuota{checkErr: quota.ErrQuotaExhausted}, emitter)

	_, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{
		SourceURL: "https://youtu.be/dQw4w9WgXcQ",
	})
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeQuotaExceeded {
		t.Fatalf("expected quota error, got %v", err)
	}

	var count int64
	if err := db.Model(&models.Video{}).Count(&count).Error; err != nil {
		t.Fatalf("count videos: %v", err)
	}
	if count != 0 {
		t.Fatalf("quota rejection must not create a video row")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("quota rejection must not emit events")
	}
}

func TestSubmitRollsBackVideoWhenEmitFails(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	emitter := &recordingEmitter{err: pkgerrors.New(pkgerrors.CodeInternal, "emit failed")}
	svc := newTestService(t, db, &stubQuota{}, emitter)

	if _, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{
		SourceURL: "https://youtu.be/dQw4w9WgXcQ",
	}); err == nil {
		t.Fatal("expected submit to fail when outbox emit fails")
	}

	var count int64
	if err := db.Model(&models.Video{}).Count(&count).Error; err != nil {
		t.Fatalf("count videos: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed emit must roll back the video row, found %d", count)
	}
}

func TestSubmitReplaysSameIdempotencyKey(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	emitter := &recordingEmitter{}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		Quota:             &stubQuota{},
		Outbox:            emitter,
		TransactionRunner: gormTxRunner{db: db},
		Idempotency:       &fakeIdempotency{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	userID := uuid.New()
	input := SubmitInput{
		SourceURL:      "https://youtu.be/dQw4w9WgXcQ",
		IdempotencyKey: "submit-once",
	}

	first, err := svc.Submit(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := svc.Submit(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("replayed Submit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same video replayed, got %s and %s", first.ID, second.ID)
	}

	var count int64
	if err := db.Model(&models.Video{}).Count(&count).Error; err != nil {
		t.Fatalf("count videos: %v", err)
	}
	if count != 1 {
		t.Fatalf("replay must not create a second video, found %d", count)
	}
	if len(emitter.events) != 1 {
		t.Fatalf("replay must not enqueue a second run, got %d events", len(emitter.events))
	}
}

func TestSubmitReleasesIdempotencyKeyWhenCreateFails(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	emitter := &recordingEmitter{err: pkgerrors.New(pkgerrors.CodeInternal, "emit failed")}
	idem := &fakeIdempotency{}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		Quota:             &stubQuota{},
		Outbox:            emitter,
		TransactionRunner: gormTxRunner{db: db},
		Idempotency:       idem,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	userID := uuid.New()
	input := SubmitInput{
		SourceURL:      "https://youtu.be/dQw4w9WgXcQ",
		IdempotencyKey: "retry-me",
	}

	if _, err := svc.Submit(context.Background(), userID, input); err == nil {
		t.Fatal("expected submit to fail when outbox emit fails")
	}
	if len(idem.store) != 0 {
		t.Fatalf("failed submit must release the key, still holding %v", idem.store)
	}

	emitter.err = nil
	view, err := svc.Submit(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("retried Submit: %v", err)
	}
	if view == nil || view.Status != enums.VideoStatusPending {
		t.Fatalf("expected a fresh submission after the failed attempt, got %+v", view)
	}
}

func TestGetReturnsClipsOrderedByStart(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &stubQuota{}, &recordingEmitter{})
	userID := uuid.New()
	videoID := uuid.New()

	if err := db.Create(&models.Video{
		ID:        videoID,
		UserID:    userID,
		SourceURL: "https://youtu.be/abc",
		Status:    enums.VideoStatusCompleted,
	}).Error; err != nil {
		t.Fatalf("seed video: %v", err)
	}
	for _, start := range []float64{42, 7} {
		if err := db.Create(&models.Clip{
			ID:              uuid.New(),
			VideoID:         videoID,
			UserID:          userID,
			Title:           "clip",
			StartSeconds:    start,
			EndSeconds:      start + 20,
			DurationSeconds: 20,
			Status:          enums.ClipStatusCompleted,
		}).Error; err != nil {
			t.Fatalf("seed clip: %v", err)
		}
	}

	detail, err := svc.Get(context.Background(), userID, videoID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(detail.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(detail.Clips))
	}
	if detail.Clips[0].StartSeconds != 7 {
		t.Fatalf("expected clips ordered by start, got %v first", detail.Clips[0].StartSeconds)
	}
}

func TestGetHidesOtherUsersVideos(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &stubQuota{}, &recordingEmitter{})
	videoID := uuid.New()

	if err := db.Create(&models.Video{
		ID:        videoID,
		UserID:    uuid.New(),
		SourceURL: "https://youtu.be/abc",
		Status:    enums.VideoStatusPending,
	}).Error; err != nil {
		t.Fatalf("seed video: %v", err)
	}

	_, err := svc.Get(context.Background(), uuid.New(), videoID)
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestRequestCancel(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &stubQuota{}, &recordingEmitter{})
	userID := uuid.New()

	active := uuid.New()
	finished := uuid.New()
	for _, row := range []models.Video{
		{ID: active, UserID: userID, SourceURL: "https://youtu.be/a", Status: enums.VideoStatusTranscribing},
		{ID: finished, UserID: userID, SourceURL: "https://youtu.be/b", Status: enums.VideoStatusCompleted},
	} {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed video: %v", err)
		}
	}

	if err := svc.RequestCancel(context.Background(), userID, active); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	var got models.Video
	if err := db.First(&got, "id = ?", active).Error; err != nil {
		t.Fatalf("load video: %v", err)
	}
	if !got.CancelRequested {
		t.Fatalf("expected cancel_requested flag set")
	}

	err := svc.RequestCancel(context.Background(), userID, finished)
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for finished video, got %v", err)
	}
}
