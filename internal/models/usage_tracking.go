package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageTracking is the durable counter row: one record per user per calendar
// day, holding the three window counters and their reset stamps. Rows are
// created lazily on first use of a day and zeroed in place, never deleted,
// when a window boundary passes.
type UsageTracking struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_usage_user_date" json:"user_id"`
	TrackingDate      time.Time `gorm:"type:date;not null;uniqueIndex:idx_usage_user_date" json:"tracking_date"`
	PerMinuteCount    int       `gorm:"not null;default:0" json:"per_minute_count"`
	PerDayCount       int       `gorm:"not null;default:0" json:"per_day_count"`
	PerMonthCount     int       `gorm:"not null;default:0" json:"per_month_count"`
	PerMinuteResetAt  time.Time `json:"per_minute_reset_at"`
	PerDayResetAt     time.Time `json:"per_day_reset_at"`
	PerMonthResetAt   time.Time `json:"per_month_reset_at"`
	LastUpdated       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_updated"`
}

func (UsageTracking) TableName() string {
	return "user_usage_tracking"
}
