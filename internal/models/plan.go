package models

import (
	"time"

	"gorm.io/gorm"
)

// Plan limit fields of zero mean "no limit configured" for that window.
type Plan struct {
	ID                  uint           `gorm:"primarykey" json:"id"`
	Name                string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	DisplayName         string         `gorm:"type:varchar(100)" json:"display_name"`
	PriceMonthly        int            `gorm:"not null;default:0" json:"price_monthly"`
	MonthlyRequestLimit int            `gorm:"not null;default:0" json:"monthly_request_limit"`
	RateLimitPerMinute  int            `gorm:"not null;default:0" json:"rate_limit_per_minute"`
	IsActive            bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Plan) TableName() string {
	return "plans"
}
