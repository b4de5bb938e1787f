// Package analytics streams pipeline step outcomes into BigQuery for
// offline analysis.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/logger"
)

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// StepEvent is one pipeline step outcome row.
type StepEvent struct {
	VideoID    string    `bigquery:"video_id"`
	UserID     string    `bigquery:"user_id"`
	Step       string    `bigquery:"step"`
	Outcome    string    `bigquery:"outcome"`
	DurationMS int64     `bigquery:"duration_ms"`
	Detail     string    `bigquery:"detail"`
	OccurredAt time.Time `bigquery:"occurred_at"`
}

// Step outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// Recorder writes step events. A nil Recorder is a no-op so callers never
// have to branch on whether analytics is configured.
type Recorder struct {
	inserter rowInserter
	table    string
	logg     *logger.Logger
}

// NewRecorder builds a step recorder targeting the given table.
func NewRecorder(inserter rowInserter, table string, logg *logger.Logger) (*Recorder, error) {
	if inserter == nil {
		return nil, fmt.Errorf("row inserter required")
	}
	if table == "" {
		return nil, fmt.Errorf("table name required")
	}
	return &Recorder{inserter: inserter, table: table, logg: logg}, nil
}

// RecordStep writes one step outcome. Insert failures are logged and
// swallowed; analytics never blocks the pipeline.
func (r *Recorder) RecordStep(ctx context.Context, videoID, userID uuid.UUID, step, outcome string, duration time.Duration, detail string) {
	if r == nil {
		return
	}
	row := StepEvent{
		VideoID:    videoID.String(),
		UserID:     userID.String(),
		Step:       step,
		Outcome:    outcome,
		DurationMS: duration.Milliseconds(),
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.inserter.InsertRows(ctx, r.table, []any{row}); err != nil && r.logg != nil {
		r.logg.Warn(r.logg.WithVideoID(ctx, videoID.String()),
			fmt.Sprintf("recording pipeline step event: %v", err))
	}
}
