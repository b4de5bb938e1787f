package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipblaze/clipblaze-backend/internal/repo"
	"github.com/clipblaze/clipblaze-backend/pkg/db/models"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
)

// Repository persists subscriptions and usage audit rows.
type Repository struct {
	repo.Base
}

// NewRepository builds a quota repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByUserID loads the user's subscription row.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateTx inserts a new subscription row inside the transaction.
func (r *Repository) CreateTx(tx *gorm.DB, sub *models.Subscription) error {
	return tx.Create(sub).Error
}

// ConsumeTx increments clips_used by one, guarded against the limit. A
// negative limit means unlimited. Returns the number of rows updated; zero
// means the quota is exhausted.
func (r *Repository) ConsumeTx(tx *gorm.DB, userID uuid.UUID) (int64, error) {
	res := tx.Model(&models.Subscription{}).
		Where("user_id = ? AND (clips_limit < 0 OR clips_used < clips_limit)", userID).
		Update("clips_used", gorm.Expr("clips_used + 1"))
	return res.RowsAffected, res.Error
}

// ApplyPlanTx overwrites plan, limit and billing period. Usage counters are
// left untouched so in-flight clip commits never race with plan changes.
func (r *Repository) ApplyPlanTx(tx *gorm.DB, userID uuid.UUID, plan enums.PlanTier, periodStart, periodEnd time.Time) (int64, error) {
	res := tx.Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"plan":         plan,
			"clips_limit":  plan.ClipLimit(),
			"period_start": periodStart,
			"period_end":   periodEnd,
		})
	return res.RowsAffected, res.Error
}

// ResetUsageTx zeroes clips_used for a fresh billing period.
func (r *Repository) ResetUsageTx(tx *gorm.DB, userID uuid.UUID) error {
	return tx.Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Update("clips_used", 0).Error
}

// InsertUsageEventTx appends one audit row for a consumed clip.
func (r *Repository) InsertUsageEventTx(tx *gorm.DB, event *models.UsageEvent) error {
	return tx.Create(event).Error
}
