package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageEvent is an append-only audit row written alongside each quota increment.
type UsageEvent struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID uuid.UUID `gorm:"column:subscription_id;type:uuid;not null"`
	ClipID         uuid.UUID `gorm:"column:clip_id;type:uuid;not null"`
	EventType      string    `gorm:"column:event_type;not null;default:'clip_generated'"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
