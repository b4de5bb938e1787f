package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// UploadRecord captures one platform's publish outcome for a clip.
type UploadRecord struct {
	Status    enums.UploadStatus `json:"status"`
	MediaID   string             `json:"media_id,omitempty"`
	Permalink string             `json:"permalink,omitempty"`
	Error     string             `json:"error,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// UploadMap stores per-platform upload state as a JSONB column.
type UploadMap map[enums.Platform]UploadRecord

// Value implements driver.Valuer.
func (m UploadMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *UploadMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch raw := value.(type) {
	case []byte:
		return json.Unmarshal(raw, m)
	case string:
		return json.Unmarshal([]byte(raw), m)
	default:
		return fmt.Errorf("unsupported upload map type %T", value)
	}
}

// Clip is one rendered output derived from an accepted highlight.
type Clip struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VideoID         uuid.UUID        `gorm:"column:video_id;type:uuid;not null;index"`
	UserID          uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	Title           string           `gorm:"column:title;not null"`
	StartSeconds    float64          `gorm:"column:start_seconds;not null"`
	EndSeconds      float64          `gorm:"column:end_seconds;not null"`
	DurationSeconds float64          `gorm:"column:duration_seconds;not null"`
	Excerpt         string           `gorm:"column:excerpt"`
	ViralScore      int              `gorm:"column:viral_score;not null;default:0"`
	Status          enums.ClipStatus `gorm:"column:status;type:clip_status;not null;default:'pending'"`
	StorageKey      *string          `gorm:"column:storage_key"`
	StorageURL      *string          `gorm:"column:storage_url"`
	ThumbnailURL    *string          `gorm:"column:thumbnail_url"`
	ErrorMessage    *string          `gorm:"column:error_message"`
	Uploads         UploadMap        `gorm:"column:uploads;type:jsonb"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
