package services

import (
	"context"
	"time"

	"captcha-gateway-api/internal/logger"
	"captcha-gateway-api/internal/metrics"
	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/ratelimit"
	"captcha-gateway-api/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type UsageService interface {
	// Record folds one accepted request into the counter store. It never
	// returns an error: metering failures are logged and swallowed so the
	// request path stays available.
	Record(ctx context.Context, userID uuid.UUID)
	// CountersFor reads the current window counts for the identity. A missing
	// row for today means no requests yet, so all zeros.
	CountersFor(ctx context.Context, userID uuid.UUID, now time.Time) (ratelimit.Counts, error)
	Row(ctx context.Context, userID uuid.UUID, now time.Time) (*models.UsageTracking, error)
}

type usageService struct {
	usageRepo repository.UsageRepository
}

func NewUsageService(usageRepo repository.UsageRepository) UsageService {
	return &usageService{usageRepo: usageRepo}
}

func (s *usageService) Record(ctx context.Context, userID uuid.UUID) {
	if err := s.usageRepo.Increment(ctx, userID, time.Now()); err != nil {
		metrics.UsageRecordFailures.Inc()
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("usage record failed, request not counted")
	}
}

func (s *usageService) CountersFor(ctx context.Context, userID uuid.UUID, now time.Time) (ratelimit.Counts, error) {
	row, err := s.usageRepo.GetForDate(ctx, userID, now)
	if err != nil {
		return ratelimit.Counts{}, err
	}
	if row == nil {
		return ratelimit.Counts{}, nil
	}

	return ratelimit.Counts{
		Minute: row.PerMinuteCount,
		Day:    row.PerDayCount,
		Month:  row.PerMonthCount,
	}, nil
}

func (s *usageService) Row(ctx context.Context, userID uuid.UUID, now time.Time) (*models.UsageTracking, error) {
	return s.usageRepo.GetForDate(ctx, userID, now)
}

// LimitsFor assembles the effective limits for a key: minute and day from the
// key's own configuration, month from the owning plan. A nil plan means no
// monthly cap.
func LimitsFor(key *models.APIKey, plan *models.Plan) ratelimit.Limits {
	limits := ratelimit.Limits{
		PerMinute: key.RateLimitPerMinute,
		PerDay:    key.RateLimitPerDay,
	}
	if plan != nil {
		limits.PerMonth = plan.MonthlyRequestLimit
		if plan.RateLimitPerMinute > 0 && (limits.PerMinute == 0 || plan.RateLimitPerMinute < limits.PerMinute) {
			limits.PerMinute = plan.RateLimitPerMinute
		}
	}
	return limits
}
