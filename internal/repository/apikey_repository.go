package repository

import (
	"context"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type APIKeyRepository interface {
	Create(ctx context.Context, apiKey *models.APIKey) error
	GetByKeyID(ctx context.Context, keyID string) (*models.APIKey, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	SetActive(ctx context.Context, userID uuid.UUID, keyID string, active bool) error
	DeleteByKeyID(ctx context.Context, userID uuid.UUID, keyID string) error
	// BumpUsage increments usage_count and stamps last_used_at in place.
	BumpUsage(ctx context.Context, id uint) error
}

type apiKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	result := r.db.WithContext(ctx).Create(apiKey)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to create API key")
	}
	return nil
}

func (r *apiKeyRepository) GetByKeyID(ctx context.Context, keyID string) (*models.APIKey, error) {
	var apiKey models.APIKey
	result := r.db.WithContext(ctx).First(&apiKey, "key_id = ?", keyID)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to get API key")
	}

	return &apiKey, nil
}

func (r *apiKeyRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error
	return keys, err
}

func (r *apiKeyRepository) SetActive(ctx context.Context, userID uuid.UUID, keyID string, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("key_id = ? AND user_id = ?", keyID, userID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update API key state")
	}

	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}

	return nil
}

func (r *apiKeyRepository) DeleteByKeyID(ctx context.Context, userID uuid.UUID, keyID string) error {
	result := r.db.WithContext(ctx).
		Delete(&models.APIKey{}, "key_id = ? AND user_id = ?", keyID, userID)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete API key")
	}

	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}

	return nil
}

func (r *apiKeyRepository) BumpUsage(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": time.Now(),
		}).Error
}
