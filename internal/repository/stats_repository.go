package repository

import (
	"context"
	"time"

	"captcha-gateway-api/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatsRepository interface {
	// RecordRequest folds a single handled request into the per-user daily
	// rollup via insert-or-increment.
	RecordRequest(ctx context.Context, userID uuid.UUID, date time.Time, apiType models.CaptchaType, success bool, responseTimeMs int64) error
	GetUserStatsForDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.DailyAPIStat, error)
	GetUserStatsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.DailyAPIStat, error)
	SumUserRequestsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)

	// DedupeDailyStats collapses duplicate (user, date, api_type) rows that a
	// racing insert may have produced, keeping the lowest id and summing the
	// counters into it.
	DedupeDailyStats(ctx context.Context, date time.Time) (int64, error)
	RecomputeErrorStats(ctx context.Context, date time.Time) error
	RecomputeEndpointUsage(ctx context.Context, date time.Time) error

	ListErrorStats(ctx context.Context, from, to time.Time) ([]models.ErrorStatDaily, error)
	ListEndpointUsage(ctx context.Context, from, to time.Time) ([]models.EndpointUsageDaily, error)
}

type statsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) RecordRequest(ctx context.Context, userID uuid.UUID, date time.Time, apiType models.CaptchaType, success bool, responseTimeMs int64) error {
	successful := 0
	failed := 0
	if success {
		successful = 1
	} else {
		failed = 1
	}

	row := models.DailyAPIStat{
		UserID:             userID,
		Date:               DateOf(date),
		APIType:            apiType,
		TotalRequests:      1,
		SuccessfulRequests: successful,
		FailedRequests:     failed,
		AvgResponseTimeMs:  float64(responseTimeMs),
	}

	// Running average folded in-place: avg' = (avg*n + x) / (n+1).
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}, {Name: "api_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_requests":       gorm.Expr("total_requests + 1"),
			"successful_requests":  gorm.Expr("successful_requests + ?", successful),
			"failed_requests":      gorm.Expr("failed_requests + ?", failed),
			"avg_response_time_ms": gorm.Expr("(avg_response_time_ms * total_requests + ?) / (total_requests + 1)", responseTimeMs),
			"updated_at":           time.Now(),
		}),
	}).Create(&row).Error
}

func (r *statsRepository) GetUserStatsForDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.DailyAPIStat, error) {
	var stats []models.DailyAPIStat
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, DateOf(date)).
		Find(&stats).Error
	return stats, err
}

func (r *statsRepository) GetUserStatsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.DailyAPIStat, error) {
	var stats []models.DailyAPIStat
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ?", userID, DateOf(since)).
		Order("date ASC").
		Find(&stats).Error
	return stats, err
}

func (r *statsRepository) SumUserRequestsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var total *int64
	err := r.db.WithContext(ctx).Model(&models.DailyAPIStat{}).
		Where("user_id = ? AND date >= ?", userID, DateOf(since)).
		Select("SUM(total_requests)").
		Scan(&total).Error
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}

func (r *statsRepository) DedupeDailyStats(ctx context.Context, date time.Time) (int64, error) {
	day := DateOf(date)
	var deleted int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type dupe struct {
			UserID  uuid.UUID
			APIType models.CaptchaType
			KeepID  uint
			Total   int
			Success int
			Failed  int
			N       int
		}

		var dupes []dupe
		err := tx.Model(&models.DailyAPIStat{}).
			Select("user_id, api_type, MIN(id) AS keep_id, SUM(total_requests) AS total, SUM(successful_requests) AS success, SUM(failed_requests) AS failed, COUNT(*) AS n").
			Where("date = ?", day).
			Group("user_id, api_type").
			Having("COUNT(*) > 1").
			Scan(&dupes).Error
		if err != nil {
			return err
		}

		for _, d := range dupes {
			err := tx.Model(&models.DailyAPIStat{}).
				Where("id = ?", d.KeepID).
				Updates(map[string]interface{}{
					"total_requests":      d.Total,
					"successful_requests": d.Success,
					"failed_requests":     d.Failed,
				}).Error
			if err != nil {
				return err
			}

			result := tx.Where("date = ? AND user_id = ? AND api_type = ? AND id <> ?",
				day, d.UserID, d.APIType, d.KeepID).
				Delete(&models.DailyAPIStat{})
			if result.Error != nil {
				return result.Error
			}
			deleted += result.RowsAffected
		}

		return nil
	})

	return deleted, err
}

func (r *statsRepository) RecomputeErrorStats(ctx context.Context, date time.Time) error {
	day := DateOf(date)
	next := day.AddDate(0, 0, 1)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date = ?", day).Delete(&models.ErrorStatDaily{}).Error; err != nil {
			return err
		}

		type bucket struct {
			StatusCode int
			Count      int
		}
		var buckets []bucket
		err := tx.Model(&models.RequestLog{}).
			Select("status_code, COUNT(*) AS count").
			Where("timestamp >= ? AND timestamp < ? AND status_code >= ?", day, next, 400).
			Group("status_code").
			Scan(&buckets).Error
		if err != nil {
			return err
		}

		for _, b := range buckets {
			row := models.ErrorStatDaily{Date: day, StatusCode: b.StatusCode, Count: b.Count}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *statsRepository) RecomputeEndpointUsage(ctx context.Context, date time.Time) error {
	day := DateOf(date)
	next := day.AddDate(0, 0, 1)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date = ?", day).Delete(&models.EndpointUsageDaily{}).Error; err != nil {
			return err
		}

		type bucket struct {
			Endpoint string
			Requests int
			AvgMs    float64
		}
		var buckets []bucket
		err := tx.Model(&models.RequestLog{}).
			Select("endpoint, COUNT(*) AS requests, AVG(response_time_ms) AS avg_ms").
			Where("timestamp >= ? AND timestamp < ?", day, next).
			Group("endpoint").
			Scan(&buckets).Error
		if err != nil {
			return err
		}

		for _, b := range buckets {
			row := models.EndpointUsageDaily{
				Date:     day,
				Endpoint: b.Endpoint,
				Requests: b.Requests,
				AvgMs:    int(b.AvgMs),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *statsRepository) ListErrorStats(ctx context.Context, from, to time.Time) ([]models.ErrorStatDaily, error) {
	var rows []models.ErrorStatDaily
	err := r.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", DateOf(from), DateOf(to)).
		Order("date ASC").
		Find(&rows).Error
	return rows, err
}

func (r *statsRepository) ListEndpointUsage(ctx context.Context, from, to time.Time) ([]models.EndpointUsageDaily, error) {
	var rows []models.EndpointUsageDaily
	err := r.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", DateOf(from), DateOf(to)).
		Order("date ASC").
		Find(&rows).Error
	return rows, err
}
