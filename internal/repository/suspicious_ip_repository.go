package repository

import (
	"context"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SuspiciousIPFilter narrows the paginated listing. KeyIDs always scopes the
// query to keys the caller owns; an empty set matches nothing.
type SuspiciousIPFilter struct {
	KeyIDs    []string
	IsBlocked *bool
	Page      int
	Limit     int
}

// SuspiciousIPStats are the aggregate totals over a set of keys.
type SuspiciousIPStats struct {
	TotalSuspiciousIPs  int64 `json:"total_suspicious_ips"`
	BlockedIPs          int64 `json:"blocked_ips"`
	ActiveSuspiciousIPs int64 `json:"active_suspicious_ips"`
	RecentViolations24h int64 `gorm:"column:recent_violations_24h" json:"recent_violations_24h"`
}

// SuspiciousIPKeyStats is the same breakdown grouped by key.
type SuspiciousIPKeyStats struct {
	APIKeyID            string `gorm:"column:api_key" json:"api_key"`
	TotalSuspiciousIPs  int64  `json:"total_suspicious_ips"`
	BlockedIPs          int64  `json:"blocked_ips"`
	ActiveSuspiciousIPs int64  `json:"active_suspicious_ips"`
	RecentViolations24h int64  `gorm:"column:recent_violations_24h" json:"recent_violations_24h"`
}

type SuspiciousIPRepository interface {
	// RecordViolation inserts the first violation for (keyID, ip) or, on
	// conflict, bumps the counter and last-seen stamp in place.
	RecordViolation(ctx context.Context, keyID, ip string, now time.Time) error
	List(ctx context.Context, filter SuspiciousIPFilter) ([]models.SuspiciousIP, int64, error)
	Stats(ctx context.Context, keyIDs []string, recentSince time.Time) (SuspiciousIPStats, error)
	StatsByKey(ctx context.Context, keyIDs []string, recentSince time.Time) ([]SuspiciousIPKeyStats, error)
	// SetBlocked flips the block flag for one address across the given keys
	// and reports how many rows it touched.
	SetBlocked(ctx context.Context, keyIDs []string, ip string, blocked bool, reason string) (int64, error)
	Delete(ctx context.Context, keyIDs []string, id uint) error
}

type suspiciousIPRepository struct {
	db *gorm.DB
}

func NewSuspiciousIPRepository(db *gorm.DB) SuspiciousIPRepository {
	return &suspiciousIPRepository{db: db}
}

func (r *suspiciousIPRepository) RecordViolation(ctx context.Context, keyID, ip string, now time.Time) error {
	row := models.SuspiciousIP{
		APIKeyID:           keyID,
		IPAddress:          ip,
		ViolationCount:     1,
		FirstViolationTime: now,
		LastViolationTime:  now,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "api_key"}, {Name: "ip_address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"violation_count":     gorm.Expr("violation_count + 1"),
			"last_violation_time": now,
			"updated_at":          now,
		}),
	}).Create(&row).Error
}

func (r *suspiciousIPRepository) List(ctx context.Context, filter SuspiciousIPFilter) ([]models.SuspiciousIP, int64, error) {
	if len(filter.KeyIDs) == 0 {
		return []models.SuspiciousIP{}, 0, nil
	}

	query := r.db.WithContext(ctx).Model(&models.SuspiciousIP{}).
		Where("api_key IN ?", filter.KeyIDs)
	if filter.IsBlocked != nil {
		query = query.Where("is_blocked = ?", *filter.IsBlocked)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count suspicious IPs")
	}

	var rows []models.SuspiciousIP
	err := query.
		Order("last_violation_time DESC").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list suspicious IPs")
	}

	return rows, total, nil
}

const suspiciousStatsSelect = `
	COUNT(*) AS total_suspicious_ips,
	SUM(CASE WHEN is_blocked = ? THEN 1 ELSE 0 END) AS blocked_ips,
	SUM(CASE WHEN is_blocked = ? THEN 1 ELSE 0 END) AS active_suspicious_ips,
	SUM(CASE WHEN last_violation_time >= ? THEN 1 ELSE 0 END) AS recent_violations_24h`

func (r *suspiciousIPRepository) Stats(ctx context.Context, keyIDs []string, recentSince time.Time) (SuspiciousIPStats, error) {
	var stats SuspiciousIPStats
	if len(keyIDs) == 0 {
		return stats, nil
	}

	err := r.db.WithContext(ctx).Model(&models.SuspiciousIP{}).
		Select(suspiciousStatsSelect, true, false, recentSince).
		Where("api_key IN ?", keyIDs).
		Scan(&stats).Error
	if err != nil {
		return SuspiciousIPStats{}, errors.Wrap(err, "failed to aggregate suspicious IP stats")
	}

	return stats, nil
}

func (r *suspiciousIPRepository) StatsByKey(ctx context.Context, keyIDs []string, recentSince time.Time) ([]SuspiciousIPKeyStats, error) {
	if len(keyIDs) == 0 {
		return []SuspiciousIPKeyStats{}, nil
	}

	var stats []SuspiciousIPKeyStats
	err := r.db.WithContext(ctx).Model(&models.SuspiciousIP{}).
		Select("api_key, "+suspiciousStatsSelect, true, false, recentSince).
		Where("api_key IN ?", keyIDs).
		Group("api_key").
		Order("total_suspicious_ips DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate per-key suspicious IP stats")
	}

	return stats, nil
}

func (r *suspiciousIPRepository) SetBlocked(ctx context.Context, keyIDs []string, ip string, blocked bool, reason string) (int64, error) {
	if len(keyIDs) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Model(&models.SuspiciousIP{}).
		Where("ip_address = ? AND api_key IN ?", ip, keyIDs).
		Updates(map[string]interface{}{
			"is_blocked":   blocked,
			"block_reason": reason,
			"updated_at":   time.Now(),
		})

	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to update suspicious IP block state")
	}

	return result.RowsAffected, nil
}

func (r *suspiciousIPRepository) Delete(ctx context.Context, keyIDs []string, id uint) error {
	if len(keyIDs) == 0 {
		return errors.ErrNotFound
	}

	result := r.db.WithContext(ctx).
		Where("id = ? AND api_key IN ?", id, keyIDs).
		Delete(&models.SuspiciousIP{})

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete suspicious IP")
	}

	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}

	return nil
}
