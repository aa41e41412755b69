package repository

import (
	"context"
	"errors"
	"time"

	"captcha-gateway-api/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	CancelActive(ctx context.Context, userID uuid.UUID) error
	GetSubscriptionHistory(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("active subscription already exists")
)

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{
		db: db,
	}
}

func (r *subscriptionRepository) Create(ctx context.Context, subscription *models.Subscription) error {
	// Check for an active subscription
	existingSub, err := r.GetActiveByUserID(ctx, subscription.UserID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return err
	}
	if existingSub != nil {
		return ErrSubscriptionExists
	}

	if err := r.db.WithContext(ctx).Create(subscription).Error; err != nil {
		return err
	}

	return nil
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription

	err := r.db.WithContext(ctx).Preload("Plan").First(&subscription, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}

	return &subscription, err
}

func (r *subscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription

	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ? AND status = ? AND (end_date IS NULL OR end_date > ?)",
			userID, models.SubscriptionActive, time.Now()).
		Order("created_at DESC").
		First(&subscription).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}

	return &subscription, err
}

func (r *subscriptionRepository) CancelActive(ctx context.Context, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
		Updates(map[string]interface{}{
			"status":     models.SubscriptionCancelled,
			"end_date":   time.Now(),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func (r *subscriptionRepository) GetSubscriptionHistory(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error) {
	var subscriptions []*models.Subscription

	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subscriptions).Error

	return subscriptions, err
}
