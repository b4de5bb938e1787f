package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/poll"
)

// InstagramUploader publishes clips as Reels through the Graph API container
// flow: create a media container, wait for processing, then publish it.
type InstagramUploader struct {
	httpClient   *http.Client
	baseURL      string
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewInstagramUploader builds an Instagram uploader.
func NewInstagramUploader(httpClient *http.Client, baseURL string, pollInterval, pollBudget time.Duration) (*InstagramUploader, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("graph base url required")
	}
	if pollInterval <= 0 || pollBudget <= 0 {
		return nil, fmt.Errorf("poll interval and budget must be positive")
	}
	return &InstagramUploader{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		pollInterval: pollInterval,
		pollBudget:   pollBudget,
	}, nil
}

// Platform implements Uploader.
func (u *InstagramUploader) Platform() enums.Platform {
	return enums.PlatformInstagram
}

// Refresh implements Uploader. Instagram long-lived tokens refresh against
// themselves, so the connection only needs a still-valid access token.
func (u *InstagramUploader) Refresh(ctx context.Context, conn *models.PlatformConnection) (*RefreshedCredential, error) {
	endpoint := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		u.baseURL, url.QueryEscape(conn.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "instagram token refresh failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("instagram token refresh returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding instagram token response")
	}
	if decoded.AccessToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "instagram token refresh returned no access token")
	}

	return &RefreshedCredential{
		AccessToken: decoded.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(decoded.ExpiresIn) * time.Second),
	}, nil
}

// Upload implements Uploader. The Graph API pulls the video from its public
// URL, so the clip must already be stored and reachable.
func (u *InstagramUploader) Upload(ctx context.Context, conn *models.PlatformConnection, clip *models.Clip) (*UploadResult, error) {
	if clip.StorageURL == nil || *clip.StorageURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "clip has no stored media url to upload")
	}
	if conn.ExternalAccountID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "instagram connection has no account id")
	}

	containerID, err := u.createContainer(ctx, conn, clip)
	if err != nil {
		return nil, err
	}

	if _, err := poll.Until(ctx, u.pollInterval, u.pollBudget, func(ctx context.Context) (struct{}, bool, error) {
		return u.checkContainer(ctx, conn, containerID)
	}); err != nil {
		return nil, err
	}

	mediaID, err := u.publishContainer(ctx, conn, containerID)
	if err != nil {
		return nil, err
	}

	permalink, err := u.fetchPermalink(ctx, conn, mediaID)
	if err != nil {
		// The post went out; a missing permalink is not worth failing over.
		permalink = ""
	}

	return &UploadResult{MediaID: mediaID, Permalink: permalink}, nil
}

func (u *InstagramUploader) createContainer(ctx context.Context, conn *models.PlatformConnection, clip *models.Clip) (string, error) {
	params := url.Values{}
	params.Set("media_type", "REELS")
	params.Set("video_url", *clip.StorageURL)
	params.Set("caption", reelCaption(clip))
	params.Set("access_token", conn.AccessToken)

	decoded, err := u.postForm(ctx, fmt.Sprintf("%s/%s/media", u.baseURL, conn.ExternalAccountID), params)
	if err != nil {
		return "", err
	}
	if decoded.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "instagram returned no container id")
	}
	return decoded.ID, nil
}

func (u *InstagramUploader) checkContainer(ctx context.Context, conn *models.PlatformConnection, containerID string) (struct{}, bool, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
		u.baseURL, containerID, url.QueryEscape(conn.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return struct{}{}, false, err
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return struct{}{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "instagram status poll failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return struct{}{}, false, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("instagram status returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded struct {
		StatusCode string `json:"status_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return struct{}{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding instagram status")
	}

	switch decoded.StatusCode {
	case "FINISHED":
		return struct{}{}, true, nil
	case "ERROR", "EXPIRED":
		return struct{}{}, false, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("instagram container ended in %s", decoded.StatusCode))
	default:
		return struct{}{}, false, nil
	}
}

func (u *InstagramUploader) publishContainer(ctx context.Context, conn *models.PlatformConnection, containerID string) (string, error) {
	params := url.Values{}
	params.Set("creation_id", containerID)
	params.Set("access_token", conn.AccessToken)

	decoded, err := u.postForm(ctx, fmt.Sprintf("%s/%s/media_publish", u.baseURL, conn.ExternalAccountID), params)
	if err != nil {
		return "", err
	}
	if decoded.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "instagram returned no media id")
	}
	return decoded.ID, nil
}

func (u *InstagramUploader) fetchPermalink(ctx context.Context, conn *models.PlatformConnection, mediaID string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s",
		u.baseURL, mediaID, url.QueryEscape(conn.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("permalink lookup returned %s", resp.Status)
	}

	var decoded struct {
		Permalink string `json:"permalink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	return decoded.Permalink, nil
}

type graphIDResponse struct {
	ID string `json:"id"`
}

func (u *InstagramUploader) postForm(ctx context.Context, endpoint string, params url.Values) (*graphIDResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "instagram request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("instagram returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded graphIDResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding instagram response")
	}
	return &decoded, nil
}

func reelCaption(clip *models.Clip) string {
	caption := strings.TrimSpace(clip.Title)
	if excerpt := strings.TrimSpace(clip.Excerpt); excerpt != "" && excerpt != caption {
		caption = caption + "\n\n" + excerpt
	}
	return caption
}
