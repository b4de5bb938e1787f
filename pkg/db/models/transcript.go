package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TranscriptSegment is one timestamped span of recognized speech.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SegmentList stores the ordered segments as a JSONB column.
type SegmentList []TranscriptSegment

// Value implements driver.Valuer.
func (s SegmentList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *SegmentList) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch raw := value.(type) {
	case []byte:
		return json.Unmarshal(raw, s)
	case string:
		return json.Unmarshal([]byte(raw), s)
	default:
		return fmt.Errorf("unsupported segment list type %T", value)
	}
}

// Transcript is the one-per-video timestamped transcription output.
type Transcript struct {
	ID        uuid.UUID   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VideoID   uuid.UUID   `gorm:"column:video_id;type:uuid;not null;unique"`
	FullText  string      `gorm:"column:full_text;not null"`
	Segments  SegmentList `gorm:"column:segments;type:jsonb;not null"`
	Language  string      `gorm:"column:language;not null;default:'en'"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
}
