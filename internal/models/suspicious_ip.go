package models

import "time"

// SuspiciousIP records repeated rate-limit violations from a single client
// address against one API key. Rows are keyed by (api_key, ip_address);
// every further violation bumps the counter and the last-seen stamp.
type SuspiciousIP struct {
	ID                 uint      `gorm:"primarykey" json:"id"`
	APIKeyID           string    `gorm:"column:api_key;type:varchar(50);not null;uniqueIndex:idx_suspicious_key_ip" json:"api_key"`
	IPAddress          string    `gorm:"type:varchar(45);not null;uniqueIndex:idx_suspicious_key_ip" json:"ip_address"`
	ViolationCount     int       `gorm:"not null;default:1" json:"violation_count"`
	FirstViolationTime time.Time `gorm:"not null" json:"first_violation_time"`
	LastViolationTime  time.Time `gorm:"not null;index" json:"last_violation_time"`
	IsBlocked          bool      `gorm:"not null;default:false" json:"is_blocked"`
	BlockReason        string    `gorm:"type:varchar(255)" json:"block_reason,omitempty"`
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SuspiciousIP) TableName() string {
	return "suspicious_ips"
}
