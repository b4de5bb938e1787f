package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
)

type objectReader interface {
	Reader(ctx context.Context, object string) (io.ReadCloser, error)
}

// YouTubeUploader publishes clips as Shorts through the YouTube Data API.
type YouTubeUploader struct {
	httpClient   *http.Client
	baseURL      string
	tokenURL     string
	categoryID   string
	clientID     string
	clientSecret string
	store        objectReader
}

// NewYouTubeUploader builds a YouTube uploader. baseURL defaults to the
// public Google API host; overriding it also moves the token endpoint under
// the same host.
func NewYouTubeUploader(httpClient *http.Client, baseURL, categoryID, clientID, clientSecret string, store objectReader) (*YouTubeUploader, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	tokenURL := "https://oauth2.googleapis.com/token"
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://www.googleapis.com"
	} else {
		baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		tokenURL = baseURL + "/token"
	}
	if strings.TrimSpace(categoryID) == "" {
		categoryID = "22"
	}
	return &YouTubeUploader{
		httpClient:   httpClient,
		baseURL:      baseURL,
		tokenURL:     tokenURL,
		categoryID:   categoryID,
		clientID:     clientID,
		clientSecret: clientSecret,
		store:        store,
	}, nil
}

// Refresh implements Uploader via the OAuth refresh-token grant.
func (u *YouTubeUploader) Refresh(ctx context.Context, conn *models.PlatformConnection) (*RefreshedCredential, error) {
	if conn.RefreshToken == nil || *conn.RefreshToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "youtube connection has no refresh token")
	}

	params := url.Values{}
	params.Set("client_id", u.clientID)
	params.Set("client_secret", u.clientSecret)
	params.Set("refresh_token", *conn.RefreshToken)
	params.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "youtube token refresh failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("youtube token refresh returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding youtube token response")
	}
	if decoded.AccessToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "youtube token refresh returned no access token")
	}

	return &RefreshedCredential{
		AccessToken: decoded.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(decoded.ExpiresIn) * time.Second),
	}, nil
}

// Platform implements Uploader.
func (u *YouTubeUploader) Platform() enums.Platform {
	return enums.PlatformYouTube
}

type youtubeSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CategoryID  string   `json:"categoryId"`
	Tags        []string `json:"tags,omitempty"`
}

type youtubeInsert struct {
	Snippet youtubeSnippet `json:"snippet"`
	Status  struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// Upload implements Uploader using a multipart/related insert so metadata
// and media go out in one request.
func (u *YouTubeUploader) Upload(ctx context.Context, conn *models.PlatformConnection, clip *models.Clip) (*UploadResult, error) {
	if clip.StorageKey == nil || *clip.StorageKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "clip has no stored media to upload")
	}

	media, err := u.store.Reader(ctx, *clip.StorageKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = media.Close() }()

	insert := youtubeInsert{Snippet: youtubeSnippet{
		Title:       shortsTitle(clip.Title),
		Description: clip.Excerpt,
		CategoryID:  u.categoryID,
	}}
	insert.Status.PrivacyStatus = "public"
	meta, err := json.Marshal(insert)
	if err != nil {
		return nil, err
	}

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)

	go func() {
		defer func() { _ = writer.Close() }()
		metaHeader := textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}}
		part, err := form.CreatePart(metaHeader)
		if err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		if _, err := part.Write(meta); err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		mediaHeader := textproto.MIMEHeader{"Content-Type": {"video/mp4"}}
		part, err = form.CreatePart(mediaHeader)
		if err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, media); err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		_ = writer.CloseWithError(form.Close())
	}()

	endpoint := u.baseURL + "/upload/youtube/v3/videos?uploadType=multipart&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+form.Boundary())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "youtube upload failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("youtube returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding youtube response")
	}
	if decoded.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "youtube returned no video id")
	}

	return &UploadResult{
		MediaID:   decoded.ID,
		Permalink: "https://www.youtube.com/shorts/" + decoded.ID,
	}, nil
}

func shortsTitle(title string) string {
	if strings.Contains(strings.ToLower(title), "#shorts") {
		return title
	}
	return strings.TrimSpace(title) + " #Shorts"
}
