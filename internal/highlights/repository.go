package highlights

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/repo"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
)

// Repository persists planned clips.
type Repository struct {
	repo.Base
}

// NewRepository builds a highlight repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// ListByVideo returns the clips planned for a video, ordered by start offset.
func (r *Repository) ListByVideo(ctx context.Context, videoID uuid.UUID) ([]models.Clip, error) {
	var rows []models.Clip
	err := r.DB(ctx).
		Where("video_id = ?", videoID).
		Order("start_seconds ASC").
		Find(&rows).Error
	return rows, err
}

// CreateBatchTx inserts the planned clips inside the transaction.
func (r *Repository) CreateBatchTx(tx *gorm.DB, clips []models.Clip) error {
	return tx.Create(&clips).Error
}
