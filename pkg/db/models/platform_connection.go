package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// PlatformConnection holds one user's OAuth credential for a publish platform.
type PlatformConnection struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index:idx_platform_connections_user_platform,unique"`
	Platform          enums.Platform `gorm:"column:platform;type:platform;not null;index:idx_platform_connections_user_platform,unique"`
	AccessToken       string         `gorm:"column:access_token;not null"`
	RefreshToken      *string        `gorm:"column:refresh_token"`
	TokenExpiresAt    *time.Time     `gorm:"column:token_expires_at"`
	ExternalAccountID string         `gorm:"column:external_account_id;not null"`
	AccountName       *string        `gorm:"column:account_name"`
	AutoUpload        bool           `gorm:"column:auto_upload;not null;default:false"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
