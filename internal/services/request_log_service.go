package services

import (
	"context"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/repository"
)

type RequestLogService interface {
	LogRequest(ctx context.Context, userID string, apiKeyID uint, endpoint, method string, statusCode int, responseTimeMs int64, ipAddress, userAgent string) error
	GetUserLogs(ctx context.Context, userID string, from, to time.Time) ([]models.RequestLog, error)
	GetEndpointLogs(ctx context.Context, endpoint string, from, to time.Time) ([]models.RequestLog, error)
	RealtimeSnapshot(ctx context.Context, window time.Duration) (*RealtimeStats, error)
}

// RealtimeStats summarizes the last few minutes of traffic for the admin
// dashboard.
type RealtimeStats struct {
	Requests      int64   `json:"requests"`
	Errors        int64   `json:"errors"`
	ErrorRate     float64 `json:"error_rate"`
	AvgResponseMs float64 `json:"avg_response_ms"`
	WindowSeconds int     `json:"window_seconds"`
}

type requestLogService struct {
	repo repository.RequestLogRepository
}

func NewRequestLogService(repo repository.RequestLogRepository) RequestLogService {
	return &requestLogService{repo: repo}
}

func (s *requestLogService) LogRequest(ctx context.Context, userID string, apiKeyID uint, endpoint, method string, statusCode int, responseTimeMs int64, ipAddress, userAgent string) error {
	status := models.StatusSuccess
	if statusCode >= 400 {
		status = models.StatusError
	}

	log := &models.RequestLog{
		UserID:         userID,
		APIKeyID:       apiKeyID,
		Endpoint:       endpoint,
		Method:         method,
		Status:         status,
		StatusCode:     statusCode,
		ResponseTimeMs: responseTimeMs,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		Timestamp:      time.Now(),
	}
	return s.repo.Create(ctx, log)
}

func (s *requestLogService) GetUserLogs(ctx context.Context, userID string, from, to time.Time) ([]models.RequestLog, error) {
	return s.repo.GetUserLogs(ctx, userID, from, to)
}

func (s *requestLogService) GetEndpointLogs(ctx context.Context, endpoint string, from, to time.Time) ([]models.RequestLog, error) {
	return s.repo.GetEndpointLogs(ctx, endpoint, from, to)
}

func (s *requestLogService) RealtimeSnapshot(ctx context.Context, window time.Duration) (*RealtimeStats, error) {
	since := time.Now().Add(-window)

	requests, err := s.repo.CountSince(ctx, since)
	if err != nil {
		return nil, err
	}
	errors, err := s.repo.CountErrorsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	avg, err := s.repo.AvgResponseTimeSince(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &RealtimeStats{
		Requests:      requests,
		Errors:        errors,
		AvgResponseMs: avg,
		WindowSeconds: int(window.Seconds()),
	}
	if requests > 0 {
		stats.ErrorRate = float64(errors) / float64(requests)
	}
	return stats, nil
}
