package highlights

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
)

// endTolerance allows candidates to overshoot the reported video duration
// slightly, since transcript timestamps are not frame accurate.
const endTolerance = 0.5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the highlight analysis step surface.
type Service interface {
	// PlanClips returns the pending clips for a video, running highlight
	// analysis only when none were planned yet. Re-runs after a crash reuse
	// the stored rows without calling the model again.
	PlanClips(ctx context.Context, video *models.Video, transcript *models.Transcript) ([]models.Clip, error)
}

// ServiceParams groups dependencies for the highlight service.
type ServiceParams struct {
	Repo              *Repository
	Selector          Selector
	TransactionRunner txRunner
	Logger            *logger.Logger

	MinSeconds float64
	MaxSeconds float64
	MaxClips   int
}

type service struct {
	repo     *Repository
	selector Selector
	txRunner txRunner
	logg     *logger.Logger

	minSeconds float64
	maxSeconds float64
	maxClips   int
}

// NewService builds a highlight service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("highlight repo required")
	}
	if params.Selector == nil {
		return nil, fmt.Errorf("highlight selector required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.MinSeconds <= 0 || params.MaxSeconds <= params.MinSeconds {
		return nil, fmt.Errorf("invalid clip duration bounds [%v, %v]", params.MinSeconds, params.MaxSeconds)
	}
	if params.MaxClips <= 0 {
		return nil, fmt.Errorf("max clips per run must be positive")
	}
	return &service{
		repo:       params.Repo,
		selector:   params.Selector,
		txRunner:   params.TransactionRunner,
		logg:       params.Logger,
		minSeconds: params.MinSeconds,
		maxSeconds: params.MaxSeconds,
		maxClips:   params.MaxClips,
	}, nil
}

func (s *service) PlanClips(ctx context.Context, video *models.Video, transcript *models.Transcript) ([]models.Clip, error) {
	if video == nil || transcript == nil {
		return nil, fmt.Errorf("video and transcript required")
	}

	existing, err := s.repo.ListByVideo(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if s.logg != nil {
			s.logg.Info(s.logg.WithVideoID(ctx, video.ID.String()),
				fmt.Sprintf("%d clips already planned, skipping highlight analysis", len(existing)))
		}
		return existing, nil
	}

	candidates, err := s.selector.Select(ctx, video, transcript)
	if err != nil {
		return nil, err
	}

	accepted := s.filter(video, candidates)
	if len(accepted) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "highlight analysis produced no usable clips")
	}

	clips := make([]models.Clip, 0, len(accepted))
	for _, c := range accepted {
		clips = append(clips, models.Clip{
			ID:              uuid.New(),
			VideoID:         video.ID,
			UserID:          video.UserID,
			Title:           clipTitle(c),
			StartSeconds:    c.StartSeconds,
			EndSeconds:      c.EndSeconds,
			DurationSeconds: c.EndSeconds - c.StartSeconds,
			Excerpt:         strings.TrimSpace(c.Excerpt),
			ViralScore:      clampScore(c.ViralScore),
			Status:          enums.ClipStatusPending,
		})
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.CreateBatchTx(tx, clips)
	})
	if err != nil {
		// A concurrent retry may have planned the clips first.
		if stored, findErr := s.repo.ListByVideo(ctx, video.ID); findErr == nil && len(stored) > 0 {
			return stored, nil
		}
		return nil, err
	}

	sort.Slice(clips, func(i, j int) bool { return clips[i].StartSeconds < clips[j].StartSeconds })
	return clips, nil
}

// filter drops candidates outside the duration bounds or the source video,
// then keeps the highest scoring ones up to the per-run cap.
func (s *service) filter(video *models.Video, candidates []Candidate) []Candidate {
	accepted := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.StartSeconds < 0 || c.EndSeconds <= c.StartSeconds {
			continue
		}
		duration := c.EndSeconds - c.StartSeconds
		if duration < s.minSeconds || duration > s.maxSeconds {
			continue
		}
		if video.DurationSeconds != nil && c.EndSeconds > *video.DurationSeconds+endTolerance {
			continue
		}
		accepted = append(accepted, c)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].ViralScore > accepted[j].ViralScore
	})
	if len(accepted) > s.maxClips {
		accepted = accepted[:s.maxClips]
	}
	return accepted
}

func clipTitle(c Candidate) string {
	title := strings.TrimSpace(c.Title)
	if title != "" {
		return title
	}
	excerpt := strings.TrimSpace(c.Excerpt)
	if len(excerpt) > 60 {
		return excerpt[:60]
	}
	if excerpt != "" {
		return excerpt
	}
	return fmt.Sprintf("Clip at %.0fs", c.StartSeconds)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
