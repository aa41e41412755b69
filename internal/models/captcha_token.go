package models

import (
	"time"

	"github.com/google/uuid"
)

type CaptchaType string

const (
	CaptchaImage       CaptchaType = "imagecaptcha"
	CaptchaHandwriting CaptchaType = "handwritingcaptcha"
	CaptchaAbstract    CaptchaType = "abstractcaptcha"
)

// CaptchaToken is a one-time challenge token issued by next-captcha and
// consumed by verify-captcha.
type CaptchaToken struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	TokenID       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"token_id"`
	APIKeyID      uint       `gorm:"not null;index" json:"api_key_id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	CaptchaType   CaptchaType `gorm:"type:varchar(50);not null" json:"captcha_type"`
	ChallengeData JSON       `gorm:"type:text" json:"challenge_data,omitempty"`
	ExpiresAt     time.Time  `gorm:"not null;index" json:"expires_at"`
	IsUsed        bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt        *time.Time `gorm:"default:null" json:"used_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CaptchaToken) TableName() string {
	return "captcha_tokens"
}

func (t *CaptchaToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
