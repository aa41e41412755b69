package services

import (
	"context"
	"time"

	"captcha-gateway-api/internal/logger"
	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type StatsService interface {
	// RecordRequest folds one handled captcha request into the daily rollup.
	// Fail-open like the usage recorder.
	RecordRequest(ctx context.Context, userID uuid.UUID, apiType models.CaptchaType, success bool, responseTimeMs int64)

	TodayStats(ctx context.Context, userID uuid.UUID) ([]models.DailyAPIStat, error)
	StatsSince(ctx context.Context, userID uuid.UUID, days int) ([]models.DailyAPIStat, error)
	MonthToDateTotal(ctx context.Context, userID uuid.UUID) (int64, error)

	UsageSummary(ctx context.Context, userID uuid.UUID, plan *models.Plan) (*UsageSummary, error)

	ErrorStats(ctx context.Context, from, to time.Time) ([]models.ErrorStatDaily, error)
	EndpointUsage(ctx context.Context, from, to time.Time) ([]models.EndpointUsageDaily, error)
}

// UsageSummary is the dashboard's plan-vs-consumption view.
type UsageSummary struct {
	PlanName          string    `json:"plan_name"`
	MonthlyLimit      int       `json:"monthly_limit"`
	MonthToDate       int64     `json:"month_to_date"`
	RemainingRequests int64     `json:"remaining_requests"`
	TodayRequests     int       `json:"today_requests"`
	PeriodEnd         time.Time `json:"period_end"`
}

type statsService struct {
	statsRepo repository.StatsRepository
}

func NewStatsService(statsRepo repository.StatsRepository) StatsService {
	return &statsService{statsRepo: statsRepo}
}

func (s *statsService) RecordRequest(ctx context.Context, userID uuid.UUID, apiType models.CaptchaType, success bool, responseTimeMs int64) {
	if err := s.statsRepo.RecordRequest(ctx, userID, time.Now(), apiType, success, responseTimeMs); err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("daily stat record failed")
	}
}

func (s *statsService) TodayStats(ctx context.Context, userID uuid.UUID) ([]models.DailyAPIStat, error) {
	return s.statsRepo.GetUserStatsForDate(ctx, userID, time.Now())
}

func (s *statsService) StatsSince(ctx context.Context, userID uuid.UUID, days int) ([]models.DailyAPIStat, error) {
	since := time.Now().AddDate(0, 0, -days)
	return s.statsRepo.GetUserStatsSince(ctx, userID, since)
}

func (s *statsService) MonthToDateTotal(ctx context.Context, userID uuid.UUID) (int64, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.statsRepo.SumUserRequestsSince(ctx, userID, monthStart)
}

func (s *statsService) UsageSummary(ctx context.Context, userID uuid.UUID, plan *models.Plan) (*UsageSummary, error) {
	monthToDate, err := s.MonthToDateTotal(ctx, userID)
	if err != nil {
		return nil, err
	}

	todayStats, err := s.TodayStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := 0
	for _, st := range todayStats {
		today += st.TotalRequests
	}

	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0).Add(-time.Second)

	summary := &UsageSummary{
		PlanName:      "none",
		MonthToDate:   monthToDate,
		TodayRequests: today,
		PeriodEnd:     periodEnd,
	}
	if plan != nil {
		summary.PlanName = plan.Name
		summary.MonthlyLimit = plan.MonthlyRequestLimit
		if plan.MonthlyRequestLimit > 0 {
			summary.RemainingRequests = int64(plan.MonthlyRequestLimit) - monthToDate
			if summary.RemainingRequests < 0 {
				summary.RemainingRequests = 0
			}
		}
	}
	return summary, nil
}

func (s *statsService) ErrorStats(ctx context.Context, from, to time.Time) ([]models.ErrorStatDaily, error) {
	return s.statsRepo.ListErrorStats(ctx, from, to)
}

func (s *statsService) EndpointUsage(ctx context.Context, from, to time.Time) ([]models.EndpointUsageDaily, error) {
	return s.statsRepo.ListEndpointUsage(ctx, from, to)
}
