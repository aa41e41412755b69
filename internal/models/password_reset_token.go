package models

import (
	"time"

	"github.com/google/uuid"
)

// PasswordResetToken stores only the sha256 of the emailed token.
type PasswordResetToken struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	TokenSHA256 string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
	Used        bool      `gorm:"not null;default:false" json:"used"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}
