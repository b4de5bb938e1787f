package highlights

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeSelector struct {
	candidates []Candidate
	err        error
	calls      int
}

func (f *fakeSelector) Select(ctx context.Context, video *models.Video, transcript *models.Transcript) ([]Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:highlights_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ddl := `CREATE TABLE clips (
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
	)`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, selector Selector, maxClips int) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		Selector:          selector,
		TransactionRunner: gormTxRunner{db: db},
		MinSeconds:        15,
		MaxSeconds:        60,
		MaxClips:          maxClips,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func analyzedVideo() *models.Video {
	duration := 300.0
	return &models.Video{ID: uuid.New(), UserID: uuid.New(), DurationSeconds: &duration}
}

func TestPlanClipsFiltersAndPersistsPendingClips(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	selector := &fakeSelector{candidates: []Candidate{
		{Title: "Too short", StartSeconds: 0, EndSeconds: 10, ViralScore: 99},
		{Title: "Too long", StartSeconds: 0, EndSeconds: 90, ViralScore: 99},
		{Title: "Past end", StartSeconds: 280, EndSeconds: 320, ViralScore: 99},
		{Title: "Inverted", StartSeconds: 50, EndSeconds: 40, ViralScore: 99},
		{Title: "Keeper one", StartSeconds: 30, EndSeconds: 75, Excerpt: "good bit", ViralScore: 150},
		{Title: "Keeper two", StartSeconds: 100, EndSeconds: 130, ViralScore: 60},
	}}
	svc := newTestService(t, db, selector, 10)

	video := analyzedVideo()
	clips, err := svc.PlanClips(context.Background(), video, &models.Transcript{})
	if err != nil {
		t.Fatalf("PlanClips: %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("expected 2 accepted clips, got %d", len(clips))
	}
	if clips[0].Title != "Keeper one" || clips[1].Title != "Keeper two" {
		t.Fatalf("expected clips ordered by start, got %q then %q", clips[0].Title, clips[1].Title)
	}
	if clips[0].Status != enums.ClipStatusPending {
		t.Fatalf("expected pending status, got %s", clips[0].Status)
	}
	if clips[0].ViralScore != 100 {
		t.Fatalf("expected score clamped to 100, got %d", clips[0].ViralScore)
	}
	if clips[0].DurationSeconds != 45 {
		t.Fatalf("expected derived duration 45, got %v", clips[0].DurationSeconds)
	}

	var stored []models.Clip
	if err := db.Where("video_id = ?", video.ID).Find(&stored).Error; err != nil {
		t.Fatalf("load clips: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 persisted clips, got %d", len(stored))
	}
}

func TestPlanClipsCapsAtHighestScoring(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	selector := &fakeSelector{candidates: []Candidate{
		{Title: "Low", StartSeconds: 0, EndSeconds: 30, ViralScore: 10},
		{Title: "Mid", StartSeconds: 60, EndSeconds: 90, ViralScore: 50},
		{Title: "High", StartSeconds: 120, EndSeconds: 150, ViralScore: 90},
	}}
	svc := newTestService(t, db, selector, 2)

	clips, err := svc.PlanClips(context.Background(), analyzedVideo(), &models.Transcript{})
	if err != nil {
		t.Fatalf("PlanClips: %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("expected cap of 2 clips, got %d", len(clips))
	}
	titles := map[string]bool{clips[0].Title: true, clips[1].Title: true}
	if !titles["High"] || !titles["Mid"] {
		t.Fatalf("expected the two highest scoring clips, got %v", titles)
	}
}

func TestPlanClipsSkipsWhenAlreadyPlanned(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	video := analyzedVideo()
	existing := models.Clip{
		ID:              uuid.New(),
		VideoID:         video.ID,
		UserID:          video.UserID,
		Title:           "Planned earlier",
		StartSeconds:    10,
		EndSeconds:      40,
		DurationSeconds: 30,
		Status:          enums.ClipStatusPending,
	}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("seed clip: %v", err)
	}

	selector := &fakeSelector{err: errors.New("must not be called")}
	svc := newTestService(t, db, selector, 10)

	clips, err := svc.PlanClips(context.Background(), video, &models.Transcript{})
	if err != nil {
		t.Fatalf("PlanClips: %v", err)
	}
	if len(clips) != 1 || clips[0].ID != existing.ID {
		t.Fatalf("expected stored plan reused, got %+v", clips)
	}
	if selector.calls != 0 {
		t.Fatalf("selector must not run when clips exist")
	}
}

func TestPlanClipsRejectsEmptySelection(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	selector := &fakeSelector{candidates: []Candidate{
		{Title: "Too short", StartSeconds: 0, EndSeconds: 5},
	}}
	svc := newTestService(t, db, selector, 10)

	if _, err := svc.PlanClips(context.Background(), analyzedVideo(), &models.Transcript{}); err == nil {
		t.Fatal("expected error when no candidate survives filtering")
	}
}
