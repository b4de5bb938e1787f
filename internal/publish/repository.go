package publish

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/repo"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// Repository loads platform connections and records upload outcomes.
type Repository struct {
	repo.Base
}

// NewRepository builds a publish repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// ListAutoUpload returns the user's connections with auto upload enabled.
func (r *Repository) ListAutoUpload(ctx context.Context, userID uuid.UUID) ([]models.PlatformConnection, error) {
	var rows []models.PlatformConnection
	err := r.DB(ctx).
		Where("user_id = ? AND auto_upload = ?", userID, true).
		Order("platform ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateTokens persists a rotated platform credential.
func (r *Repository) UpdateTokens(ctx context.Context, connID uuid.UUID, cred RefreshedCredential) error {
	updates := map[string]any{
		"access_token":     cred.AccessToken,
		"token_expires_at": cred.ExpiresAt,
	}
	if cred.RefreshToken != "" {
		updates["refresh_token"] = cred.RefreshToken
	}
	return r.DB(ctx).Model(&models.PlatformConnection{}).
		Where("id = ?", connID).
		Updates(updates).Error
}

// SetUploadRecord writes one platform's upload outcome into the clip's
// uploads map. The read and write run in one transaction so concurrent
// platforms do not clobber each other.
func (r *Repository) SetUploadRecord(ctx context.Context, clipID uuid.UUID, platform enums.Platform, record models.UploadRecord) error {
	return r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var clip models.Clip
		if err := tx.Where("id = ?", clipID).First(&clip).Error; err != nil {
			return err
		}
		if clip.Uploads == nil {
			clip.Uploads = models.UploadMap{}
		}
		record.UpdatedAt = time.Now().UTC()
		clip.Uploads[platform] = record
		return tx.Model(&models.Clip{}).
			Where("id = ?", clipID).
			Update("uploads", clip.Uploads).Error
	})
}
