package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// Subscription is the per-user quota record: plan, monthly allowance, usage.
// ClipsLimit of enums.UnlimitedClips (-1) means no cap.
type Subscription struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID      `gorm:"column:user_id;type:uuid;not null;unique"`
	Plan        enums.PlanTier `gorm:"column:plan;type:plan_tier;not null;default:'free'"`
	ClipsLimit  int            `gorm:"column:clips_limit;not null"`
	ClipsUsed   int            `gorm:"column:clips_used;not null;default:0"`
	PeriodStart time.Time      `gorm:"column:period_start;not null"`
	PeriodEnd   time.Time      `gorm:"column:period_end;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
