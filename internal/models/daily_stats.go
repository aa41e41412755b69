package models

import (
	"time"

	"github.com/google/uuid"
)

// DailyAPIStat is the per-user per-day per-api-type rollup the dashboards
// read. Rows are written by the usage middleware and recomputed by the
// sweeper's daily rollup step.
type DailyAPIStat struct {
	ID                 uint        `gorm:"primarykey" json:"id"`
	UserID             uuid.UUID   `gorm:"type:uuid;not null;index:idx_daily_stat,unique" json:"user_id"`
	Date               time.Time   `gorm:"type:date;not null;index:idx_daily_stat,unique" json:"date"`
	APIType            CaptchaType `gorm:"type:varchar(50);not null;index:idx_daily_stat,unique" json:"api_type"`
	TotalRequests      int         `gorm:"not null;default:0" json:"total_requests"`
	SuccessfulRequests int         `gorm:"not null;default:0" json:"successful_requests"`
	FailedRequests     int         `gorm:"not null;default:0" json:"failed_requests"`
	AvgResponseTimeMs  float64     `gorm:"not null;default:0" json:"avg_response_time"`
	CreatedAt          time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DailyAPIStat) TableName() string {
	return "daily_user_api_stats"
}

// ErrorStatDaily aggregates error responses by status code per day.
type ErrorStatDaily struct {
	Date       time.Time `gorm:"type:date;primaryKey" json:"date"`
	StatusCode int       `gorm:"primaryKey" json:"status_code"`
	Count      int       `gorm:"not null;default:0" json:"count"`
}

func (ErrorStatDaily) TableName() string {
	return "error_stats_daily"
}

// EndpointUsageDaily aggregates request volume and latency per endpoint per day.
type EndpointUsageDaily struct {
	Date     time.Time `gorm:"type:date;primaryKey" json:"date"`
	Endpoint string    `gorm:"type:varchar(255);primaryKey" json:"endpoint"`
	Requests int       `gorm:"not null;default:0" json:"requests"`
	AvgMs    int       `gorm:"not null;default:0" json:"avg_ms"`
}

func (EndpointUsageDaily) TableName() string {
	return "endpoint_usage_daily"
}
