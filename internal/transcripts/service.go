package transcripts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type objectReader interface {
	Reader(ctx context.Context, object string) (io.ReadCloser, error)
}

// Service is the transcription step surface.
type Service interface {
	// EnsureTranscript returns the stored transcript or produces one from
	// the staged source. Re-runs after a crash reuse the stored row.
	EnsureTranscript(ctx context.Context, video *models.Video) (*models.Transcript, error)
}

// ServiceParams groups dependencies for the transcript service.
type ServiceParams struct {
	Repo              *Repository
	Transcriber       Transcriber
	Store             objectReader
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type service struct {
	repo        *Repository
	transcriber Transcriber
	store       objectReader
	txRunner    txRunner
	logg        *logger.Logger
}

// NewService builds a transcript service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("transcript repo required")
	}
	if params.Transcriber == nil {
		return nil, fmt.Errorf("transcriber required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        params.Repo,
		transcriber: params.Transcriber,
		store:       params.Store,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
	}, nil
}

func (s *service) EnsureTranscript(ctx context.Context, video *models.Video) (*models.Transcript, error) {
	if video == nil {
		return nil, fmt.Errorf("video required")
	}

	existing, err := s.repo.FindByVideoID(ctx, video.ID)
	if err == nil {
		if s.logg != nil {
			s.logg.Info(s.logg.WithVideoID(ctx, video.ID.String()), "transcript already stored, skipping transcription")
		}
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if video.StorageKey == nil || *video.StorageKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "video has no staged source to transcribe")
	}

	media, err := s.store.Reader(ctx, *video.StorageKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = media.Close() }()

	raw, err := s.transcriber.Transcribe(ctx, media, path.Base(*video.StorageKey))
	if err != nil {
		return nil, err
	}

	transcript := normalize(video, raw)
	if len(transcript.Segments) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transcription produced no usable segments")
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.CreateTx(tx, transcript)
	})
	if err != nil {
		// A concurrent retry may have stored the transcript first.
		if stored, findErr := s.repo.FindByVideoID(ctx, video.ID); findErr == nil {
			return stored, nil
		}
		return nil, err
	}
	return transcript, nil
}

// normalize trims segment text, drops empty or inverted spans and rebuilds
// the full text when the provider omitted it.
func normalize(video *models.Video, raw *RawTranscript) *models.Transcript {
	segments := make(models.SegmentList, 0, len(raw.Segments))
	var rebuilt []string
	for _, seg := range raw.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if seg.End <= seg.Start {
			continue
		}
		segments = append(segments, models.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
		rebuilt = append(rebuilt, text)
	}

	fullText := strings.TrimSpace(raw.Text)
	if fullText == "" {
		fullText = strings.Join(rebuilt, " ")
	}
	language := strings.TrimSpace(raw.Language)
	if language == "" {
		language = "en"
	}

	return &models.Transcript{
		VideoID:  video.ID,
		FullText: fullText,
		Segments: segments,
		Language: language,
	}
}
