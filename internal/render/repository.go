package render

import (
	"gorm.io/gorm"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/internal/repo"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
)

// Repository persists render outcomes on clips.
type Repository struct {
	repo.Base
}

// NewRepository builds a render repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// UpdateClipTx saves the given column updates on a clip inside the transaction.
func (r *Repository) UpdateClipTx(tx *gorm.DB, clipID uuid.UUID, updates map[string]any) error {
	return tx.Model(&models.Clip{}).
		Where("id = ?", clipID).
		Updates(updates).Error
}
