package transcripts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/repo"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
)

// Repository persists transcripts.
type Repository struct {
	repo.Base
}

// NewRepository builds a transcript repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByVideoID loads the transcript for a video, if present.
func (r *Repository) FindByVideoID(ctx context.Context, videoID uuid.UUID) (*models.Transcript, error) {
	var transcript models.Transcript
	if err := r.DB(ctx).Where("video_id = ?", videoID).First(&transcript).Error; err != nil {
		return nil, err
	}
	return &transcript, nil
}

// CreateTx inserts the transcript inside the transaction.
func (r *Repository) CreateTx(tx *gorm.DB, transcript *models.Transcript) error {
	return tx.Create(transcript).Error
}
