package videos

import (
	"time"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// SubmitInput is the validated request to start a pipeline run. The
// idempotency key is optional; resubmitting with the same key returns the
// original video instead of starting a second run.
type SubmitInput struct {
	SourceURL      string
	IdempotencyKey string
}

// ListParams bounds the list query.
type ListParams struct {
	Limit  int
	Offset int
}

// ClipView is the API projection of one clip.
type ClipView struct {
	ID              uuid.UUID          `json:"id"`
	Title           string             `json:"title"`
	StartSeconds    float64            `json:"start_seconds"`
	EndSeconds      float64            `json:"end_seconds"`
	DurationSeconds float64            `json:"duration_seconds"`
	Excerpt         string             `json:"excerpt,omitempty"`
	ViralScore      int                `json:"viral_score"`
	Status          enums.ClipStatus   `json:"status"`
	StorageURL      *string            `json:"storage_url,omitempty"`
	ThumbnailURL    *string            `json:"thumbnail_url,omitempty"`
	ErrorMessage    *string            `json:"error_message,omitempty"`
	Uploads         models.UploadMap   `json:"uploads,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// VideoView is the API projection of one video.
type VideoView struct {
	ID              uuid.UUID         `json:"id"`
	SourceURL       string            `json:"source_url"`
	Title           *string           `json:"title,omitempty"`
	DurationSeconds *float64          `json:"duration_seconds,omitempty"`
	Status          enums.VideoStatus `json:"status"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	CancelRequested bool              `json:"cancel_requested"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// VideoDetail bundles a video with its clips.
type VideoDetail struct {
	VideoView
	Clips []ClipView `json:"clips"`
}

// NewVideoView projects a model row.
func NewVideoView(video models.Video) VideoView {
	return VideoView{
		ID:              video.ID,
		SourceURL:       video.SourceURL,
		Title:           video.Title,
		DurationSeconds: video.DurationSeconds,
		Status:          video.Status,
		ErrorMessage:    video.ErrorMessage,
		CancelRequested: video.CancelRequested,
		CreatedAt:       video.CreatedAt,
		UpdatedAt:       video.UpdatedAt,
	}
}

// NewClipView projects a model row.
func NewClipView(clip models.Clip) ClipView {
	return ClipView{
		ID:              clip.ID,
		Title:           clip.Title,
		StartSeconds:    clip.StartSeconds,
		EndSeconds:      clip.EndSeconds,
		DurationSeconds: clip.DurationSeconds,
		Excerpt:         clip.Excerpt,
		ViralScore:      clip.ViralScore,
		Status:          clip.Status,
		StorageURL:      clip.StorageURL,
		ThumbnailURL:    clip.ThumbnailURL,
		ErrorMessage:    clip.ErrorMessage,
		Uploads:         clip.Uploads,
		CreatedAt:       clip.CreatedAt,
	}
}
