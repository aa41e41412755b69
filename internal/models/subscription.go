package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

type Subscription struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	PlanID    uint               `gorm:"not null;index" json:"plan_id"`
	StartDate time.Time          `gorm:"not null" json:"start_date"`
	EndDate   *time.Time         `gorm:"default:null" json:"end_date"`
	Status    SubscriptionStatus `gorm:"type:varchar(50);not null" json:"status"`
	CreatedAt time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt     `gorm:"index" json:"-"`
	Plan      Plan               `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	User      User               `gorm:"foreignKey:UserID" json:"-"`
}

func (Subscription) TableName() string {
	return "user_subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}

	return nil
}

func (s *Subscription) BeforeUpdate(tx *gorm.DB) error {
	s.UpdatedAt = time.Now()
	return nil
}
