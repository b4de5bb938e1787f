package enums

import "fmt"

// ClipStatus describes the render lifecycle of a single clip.
type ClipStatus string

const (
	ClipStatusPending   ClipStatus = "pending"
	ClipStatusCompleted ClipStatus = "completed"
	ClipStatusFailed    ClipStatus = "failed"
)

var validClipStatuses = []ClipStatus{
	ClipStatusPending,
	ClipStatusCompleted,
	ClipStatusFailed,
}

// String returns the literal string for the status.
func (c ClipStatus) String() string {
	return string(c)
}

// IsValid reports whether the status is known.
func (c ClipStatus) IsValid() bool {
	for _, candidate := range validClipStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the clip reached a final render outcome.
func (c ClipStatus) IsTerminal() bool {
	return c == ClipStatusCompleted || c == ClipStatusFailed
}

// ParseClipStatus converts raw input into a ClipStatus.
func ParseClipStatus(value string) (ClipStatus, error) {
	for _, candidate := range validClipStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid clip status %q", value)
}
