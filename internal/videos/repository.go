package videos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/repo"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// Repository persists videos and their clips.
type Repository struct {
	repo.Base
}

// NewRepository builds a video repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// CreateTx inserts a new video row inside the transaction.
func (r *Repository) CreateTx(tx *gorm.DB, video *models.Video) error {
	return tx.Create(video).Error
}

// FindByID loads a video by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	var video models.Video
	if err := r.DB(ctx).Where("id = ?", id).First(&video).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// FindByIDForUser loads a video owned by the given user.
func (r *Repository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Video, error) {
	var video models.Video
	if err := r.DB(ctx).Where("id = ? AND user_id = ?", id, userID).First(&video).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// ListByUser returns the user's videos, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Video, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.Video
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}

// ClipsByVideo returns all clips for a video, ordered by start offset.
func (r *Repository) ClipsByVideo(ctx context.Context, videoID uuid.UUID) ([]models.Clip, error) {
	var rows []models.Clip
	err := r.DB(ctx).
		Where("video_id = ?", videoID).
		Order("start_seconds ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateStatusTx moves the video from the expected status to the next one
// inside the transaction. Zero rows affected means another writer moved the
// row first.
func (r *Repository) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, from, to enums.VideoStatus) (int64, error) {
	res := tx.Model(&models.Video{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// FailTx marks a non-terminal video failed with the given message. Terminal
// rows are never overwritten; zero rows affected means the video already
// reached a terminal status.
func (r *Repository) FailTx(tx *gorm.DB, id uuid.UUID, message string) (int64, error) {
	res := tx.Model(&models.Video{}).
		Where("id = ? AND status NOT IN ?", id, []enums.VideoStatus{enums.VideoStatusCompleted, enums.VideoStatusFailed}).
		Updates(map[string]any{
			"status":        enums.VideoStatusFailed,
			"error_message": message,
		})
	return res.RowsAffected, res.Error
}

// UpdateTx saves arbitrary column updates inside the transaction.
func (r *Repository) UpdateTx(tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	return tx.Model(&models.Video{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkCancelRequested flips the cooperative cancel flag for a non-terminal video.
func (r *Repository) MarkCancelRequested(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.DB(ctx).Model(&models.Video{}).
		Where("id = ? AND status NOT IN ?", id, []enums.VideoStatus{enums.VideoStatusCompleted, enums.VideoStatusFailed}).
		Update("cancel_requested", true)
	return res.RowsAffected, res.Error
}
