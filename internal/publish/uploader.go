// Package publish pushes completed clips to the user's connected social
// platforms.
package publish

import (
	"context"
	"time"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// UploadResult identifies the published media on the target platform.
type UploadResult struct {
	MediaID   string
	Permalink string
}

// RefreshedCredential is a rotated platform access credential.
type RefreshedCredential struct {
	AccessToken  string
	RefreshToken string // empty when the platform did not rotate it
	ExpiresAt    time.Time
}

// Uploader publishes one clip through a user's platform connection.
type Uploader interface {
	Platform() enums.Platform
	// Refresh exchanges the connection's credential for a fresh one.
	Refresh(ctx context.Context, conn *models.PlatformConnection) (*RefreshedCredential, error)
	Upload(ctx context.Context, conn *models.PlatformConnection, clip *models.Clip) (*UploadResult, error)
}
