package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// Video is one user-submitted processing job and its pipeline state.
type Video struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	SourceURL       string            `gorm:"column:source_url;not null"`
	SourceType      string            `gorm:"column:source_type;not null;default:'youtube'"`
	Title           *string           `gorm:"column:title"`
	DurationSeconds *float64          `gorm:"column:duration_seconds"`
	Status          enums.VideoStatus `gorm:"column:status;type:video_status;not null;default:'pending'"`
	ErrorMessage    *string           `gorm:"column:error_message"`
	StorageKey      *string           `gorm:"column:storage_key"`
	StorageURL      *string           `gorm:"column:storage_url"`
	CancelRequested bool              `gorm:"column:cancel_requested;not null;default:false"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Clips []Clip `gorm:"foreignKey:VideoID"`
}
