package enums

import "fmt"

// VideoStatus describes where a submitted video sits in the processing pipeline.
type VideoStatus string

const (
	VideoStatusPending      VideoStatus = "pending"
	VideoStatusDownloading  VideoStatus = "downloading"
	VideoStatusTranscribing VideoStatus = "transcribing"
	VideoStatusAnalyzing    VideoStatus = "analyzing"
	VideoStatusGenerating   VideoStatus = "generating"
	VideoStatusCompleted    VideoStatus = "completed"
	VideoStatusFailed       VideoStatus = "failed"
)

var validVideoStatuses = []VideoStatus{
	VideoStatusPending,
	VideoStatusDownloading,
	VideoStatusTranscribing,
	VideoStatusAnalyzing,
	VideoStatusGenerating,
	VideoStatusCompleted,
	VideoStatusFailed,
}

// pipelineOrder maps each active status to its position along the pipeline.
var pipelineOrder = map[VideoStatus]int{
	VideoStatusPending:      0,
	VideoStatusDownloading:  1,
	VideoStatusTranscribing: 2,
	VideoStatusAnalyzing:    3,
	VideoStatusGenerating:   4,
	VideoStatusCompleted:    5,
}

// String returns the literal string for the status.
func (v VideoStatus) String() string {
	return string(v)
}

// IsValid reports whether the status is known.
func (v VideoStatus) IsValid() bool {
	for _, candidate := range validVideoStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the pipeline.
func (v VideoStatus) IsTerminal() bool {
	return v == VideoStatusCompleted || v == VideoStatusFailed
}

// CanTransitionTo reports whether moving from v to next is a legal pipeline
// transition. Statuses only advance along the pipeline order; failed is
// reachable from any non-terminal status and terminal statuses never change.
func (v VideoStatus) CanTransitionTo(next VideoStatus) bool {
	if !v.IsValid() || !next.IsValid() {
		return false
	}
	if v.IsTerminal() {
		return false
	}
	if next == VideoStatusFailed {
		return true
	}
	current, ok := pipelineOrder[v]
	if !ok {
		return false
	}
	target, ok := pipelineOrder[next]
	if !ok {
		return false
	}
	return target == current+1
}

// ParseVideoStatus converts raw input into a VideoStatus.
func ParseVideoStatus(value string) (VideoStatus, error) {
	for _, candidate := range validVideoStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid video status %q", value)
}
