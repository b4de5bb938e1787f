package enums

import "fmt"

// UploadStatus tracks a clip's publish attempt on one platform.
type UploadStatus string

const (
	UploadStatusNotAttempted UploadStatus = "not_attempted"
	UploadStatusUploading    UploadStatus = "uploading"
	UploadStatusUploaded     UploadStatus = "uploaded"
	UploadStatusFailed       UploadStatus = "failed"
)

var validUploadStatuses = []UploadStatus{
	UploadStatusNotAttempted,
	UploadStatusUploading,
	UploadStatusUploaded,
	UploadStatusFailed,
}

// String returns the literal string for the status.
func (u UploadStatus) String() string {
	return string(u)
}

// IsValid reports whether the status is known.
func (u UploadStatus) IsValid() bool {
	for _, candidate := range validUploadStatuses {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUploadStatus converts raw input into an UploadStatus.
func ParseUploadStatus(value string) (UploadStatus, error) {
	for _, candidate := range validUploadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upload status %q", value)
}
