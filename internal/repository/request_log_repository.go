package repository

import (
	"context"
	"time"

	"captcha-gateway-api/internal/models"

	"gorm.io/gorm"
)

type RequestLogRepository interface {
	Create(ctx context.Context, log *models.RequestLog) error
	GetUserLogs(ctx context.Context, userID string, from, to time.Time) ([]models.RequestLog, error)
	GetEndpointLogs(ctx context.Context, endpoint string, from, to time.Time) ([]models.RequestLog, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountErrorsSince(ctx context.Context, since time.Time) (int64, error)
	AvgResponseTimeSince(ctx context.Context, since time.Time) (float64, error)
}

type requestLogRepository struct {
	db *gorm.DB
}

func NewRequestLogRepository(db *gorm.DB) RequestLogRepository {
	return &requestLogRepository{db: db}
}

func (r *requestLogRepository) Create(ctx context.Context, log *models.RequestLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *requestLogRepository) GetUserLogs(ctx context.Context, userID string, from, to time.Time) ([]models.RequestLog, error) {
	var logs []models.RequestLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Order("timestamp desc").
		Find(&logs).Error
	return logs, err
}

func (r *requestLogRepository) GetEndpointLogs(ctx context.Context, endpoint string, from, to time.Time) ([]models.RequestLog, error) {
	var logs []models.RequestLog
	err := r.db.WithContext(ctx).
		Where("endpoint = ? AND timestamp BETWEEN ? AND ?", endpoint, from, to).
		Order("timestamp desc").
		Find(&logs).Error
	return logs, err
}

func (r *requestLogRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RequestLog{}).
		Where("timestamp >= ?", since).
		Count(&count).Error
	return count, err
}

func (r *requestLogRepository) CountErrorsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RequestLog{}).
		Where("timestamp >= ? AND status_code >= ?", since, 400).
		Count(&count).Error
	return count, err
}

func (r *requestLogRepository) AvgResponseTimeSince(ctx context.Context, since time.Time) (float64, error) {
	var avg *float64
	err := r.db.WithContext(ctx).Model(&models.RequestLog{}).
		Where("timestamp >= ?", since).
		Select("AVG(response_time_ms)").
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}
