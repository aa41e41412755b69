package repository

import (
	"context"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/ratelimit"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository is the durable counter store: one row per (user, calendar
// day) holding the three window counters and their reset stamps.
type UsageRepository interface {
	// Increment bumps all three counters for (userID, date) in a single
	// upsert statement. Two concurrent callers that both miss the row cannot
	// lose an increment: the insert conflicts and becomes an in-place
	// count = count + 1 update.
	Increment(ctx context.Context, userID uuid.UUID, date time.Time) error
	GetForDate(ctx context.Context, userID uuid.UUID, date time.Time) (*models.UsageTracking, error)
	ListForDate(ctx context.Context, date time.Time) ([]models.UsageTracking, error)
	// ResetWindow zeroes one window's counter and stamps its reset time.
	ResetWindow(ctx context.Context, id uint, window ratelimit.Window, now time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type usageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// DateOf normalizes a timestamp to its calendar date in UTC, the key the
// counter rows are stored under.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r *usageRepository) Increment(ctx context.Context, userID uuid.UUID, date time.Time) error {
	now := time.Now()
	row := models.UsageTracking{
		UserID:           userID,
		TrackingDate:     DateOf(date),
		PerMinuteCount:   1,
		PerDayCount:      1,
		PerMonthCount:    1,
		PerMinuteResetAt: now,
		PerDayResetAt:    now,
		PerMonthResetAt:  now,
		LastUpdated:      now,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "tracking_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"per_minute_count": gorm.Expr("per_minute_count + 1"),
			"per_day_count":    gorm.Expr("per_day_count + 1"),
			"per_month_count":  gorm.Expr("per_month_count + 1"),
			"last_updated":     now,
		}),
	}).Create(&row).Error
}

func (r *usageRepository) GetForDate(ctx context.Context, userID uuid.UUID, date time.Time) (*models.UsageTracking, error) {
	var row models.UsageTracking
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tracking_date = ?", userID, DateOf(date)).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *usageRepository) ListForDate(ctx context.Context, date time.Time) ([]models.UsageTracking, error) {
	var rows []models.UsageTracking
	err := r.db.WithContext(ctx).
		Where("tracking_date = ?", DateOf(date)).
		Find(&rows).Error
	return rows, err
}

func (r *usageRepository) ResetWindow(ctx context.Context, id uint, window ratelimit.Window, now time.Time) error {
	var assignments map[string]interface{}
	switch window {
	case ratelimit.WindowMinute:
		assignments = map[string]interface{}{"per_minute_count": 0, "per_minute_reset_at": now}
	case ratelimit.WindowDay:
		assignments = map[string]interface{}{"per_day_count": 0, "per_day_reset_at": now}
	case ratelimit.WindowMonth:
		assignments = map[string]interface{}{"per_month_count": 0, "per_month_reset_at": now}
	}

	return r.db.WithContext(ctx).Model(&models.UsageTracking{}).
		Where("id = ?", id).
		Updates(assignments).Error
}

func (r *usageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("tracking_date < ?", DateOf(cutoff)).
		Delete(&models.UsageTracking{})
	return result.RowsAffected, result.Error
}
