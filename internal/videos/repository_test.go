package videos

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

func setupVideosTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:videos_repo_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
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
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func newVideo(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.VideoStatus, createdAt time.Time) *models.Video {
	t.Helper()
	video := &models.Video{
		ID:        uuid.New(),
		UserID:    userID,
		SourceURL: "https://www.youtube.com/watch?v=" + uuid.NewString()[:11],
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, db.Create(video).Error)
	return video
}

func TestRepositoryListByUser_pagination(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)

	user := uuid.New()
	other := uuid.New()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		newVideo(t, db, user, enums.VideoStatusPending, now.Add(time.Duration(i)*time.Minute))
	}
	newVideo(t, db, other, enums.VideoStatusPending, now)

	page, err := repo.ListByUser(context.Background(), user, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt), "expected newest first")

	rest, err := repo.ListByUser(context.Background(), user, 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
	for _, v := range rest {
		assert.Equal(t, user, v.UserID)
	}
}

func TestRepositoryFindByIDForUser_scopesOwnership(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)

	owner := uuid.New()
	video := newVideo(t, db, owner, enums.VideoStatusPending, time.Now().UTC())

	found, err := repo.FindByIDForUser(context.Background(), video.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, video.ID, found.ID)

	_, err = repo.FindByIDForUser(context.Background(), video.ID, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryClipsByVideo_ordersByStart(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)

	user := uuid.New()
	video := newVideo(t, db, user, enums.VideoStatusCompleted, time.Now().UTC())

	for _, start := range []float64{42, 10, 25} {
		clip := &models.Clip{
			ID:              uuid.New(),
			VideoID:         video.ID,
			UserID:          user,
			Title:           fmt.Sprintf("clip at %v", start),
			StartSeconds:    start,
			EndSeconds:      start + 30,
			DurationSeconds: 30,
			Status:          enums.ClipStatusCompleted,
		}
		require.NoError(t, db.Create(clip).Error)
	}

	clips, err := repo.ClipsByVideo(context.Background(), video.ID)
	require.NoError(t, err)
	require.Len(t, clips, 3)
	assert.Equal(t, []float64{10, 25, 42}, []float64{clips[0].StartSeconds, clips[1].StartSeconds, clips[2].StartSeconds})
}

func TestRepositoryUpdateStatusTx_guardsExpectedStatus(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)

	user := uuid.New()
	video := newVideo(t, db, user, enums.VideoStatusDownloading, time.Now().UTC())

	rows, err := repo.UpdateStatusTx(db, video.ID, enums.VideoStatusDownloading, enums.VideoStatusTranscribing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// A writer holding a stale view of the row loses the race.
	rows, err = repo.UpdateStatusTx(db, video.ID, enums.VideoStatusDownloading, enums.VideoStatusTranscribing)
	require.NoError(t, err)
	assert.Zero(t, rows, "stale expected status must not update the row")

	reloaded, err := repo.FindByID(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.VideoStatusTranscribing, reloaded.Status)
}

func TestRepositoryFailTx_neverOverwritesTerminalRows(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)

	user := uuid.New()
	running := newVideo(t, db, user, enums.VideoStatusAnalyzing, time.Now().UTC())
	completed := newVideo(t, db, user, enums.VideoStatusCompleted, time.Now().UTC())
	failed := newVideo(t, db, user, enums.VideoStatusFailed, time.Now().UTC())

	rows, err := repo.FailTx(db, running.ID, "model unavailable")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	for _, terminal := range []*models.Video{completed, failed} {
		rows, err := repo.FailTx(db, terminal.ID, "late failure")
		require.NoError(t, err)
		assert.Zero(t, rows, "terminal rows must stay untouched")

		reloaded, err := repo.FindByID(context.Background(), terminal.ID)
		require.NoError(t, err)
		assert.Equal(t, terminal.Status, reloaded.Status)
		assert.Nil(t, reloaded.ErrorMessage)
	}

	// A stale writer that still believes the video is analyzing cannot
	// flip the now-failed row to completed.
	rows, err = repo.UpdateStatusTx(db, running.ID, enums.VideoStatusAnalyzing, enums.VideoStatusCompleted)
	require.NoError(t, err)
	assert.Zero(t, rows, "row already failed, stale writer must lose")

	reloaded, err := repo.FindByID(context.Background(), running.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.VideoStatusFailed, reloaded.Status)
}

func TestRepositoryMarkCancelRequested(t *testing.T) {
	db := setupVideosTestDB(t)
	repo := NewRepository(db)

	user := uuid.New()
	running := newVideo(t, db, user, enums.VideoStatusTranscribing, time.Now().UTC())
	done := newVideo(t, db, user, enums.VideoStatusCompleted, time.Now().UTC())

	affected, err := repo.MarkCancelRequested(context.Background(), running.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	reloaded, err := repo.FindByID(context.Background(), running.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.CancelRequested)

	affected, err = repo.MarkCancelRequested(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Zero(t, affected, "terminal videos must not accept cancel")
}
