// Package payloads defines the typed event bodies stored inside outbox envelopes.
package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// VideoSubmittedEvent enqueues a pipeline run for a newly accepted video.
type VideoSubmittedEvent struct {
	VideoID   uuid.UUID `json:"video_id"`
	UserID    uuid.UUID `json:"user_id"`
	SourceURL string    `json:"source_url"`
}

// VideoCompletedEvent announces a finished pipeline run.
type VideoCompletedEvent struct {
	VideoID    uuid.UUID `json:"video_id"`
	UserID     uuid.UUID `json:"user_id"`
	ClipCount  int       `json:"clip_count"`
	FinishedAt time.Time `json:"finished_at"`
}

// VideoFailedEvent announces a terminally failed pipeline run.
type VideoFailedEvent struct {
	VideoID  uuid.UUID         `json:"video_id"`
	UserID   uuid.UUID         `json:"user_id"`
	Step     enums.VideoStatus `json:"step"`
	Reason   string            `json:"reason"`
	FailedAt time.Time         `json:"failed_at"`
}

// ClipRenderedEvent announces one successfully rendered clip.
type ClipRenderedEvent struct {
	ClipID     uuid.UUID `json:"clip_id"`
	VideoID    uuid.UUID `json:"video_id"`
	UserID     uuid.UUID `json:"user_id"`
	ViralScore int       `json:"viral_score"`
	StorageURL string    `json:"storage_url,omitempty"`
}

// ClipRenderFailedEvent announces a clip that could not be rendered.
type ClipRenderFailedEvent struct {
	ClipID  uuid.UUID `json:"clip_id"`
	VideoID uuid.UUID `json:"video_id"`
	UserID  uuid.UUID `json:"user_id"`
	Reason  string    `json:"reason"`
}

// PlanSyncRequestedEvent asks the billing consumer to apply a plan change.
type PlanSyncRequestedEvent struct {
	UserID      uuid.UUID      `json:"user_id"`
	Plan        enums.PlanTier `json:"plan"`
	PeriodStart time.Time      `json:"period_start"`
	PeriodEnd   time.Time      `json:"period_end"`
}
