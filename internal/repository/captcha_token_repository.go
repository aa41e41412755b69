package repository

import (
	"context"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/pkg/errors"

	"gorm.io/gorm"
)

type CaptchaTokenRepository interface {
	Create(ctx context.Context, token *models.CaptchaToken) error
	// Consume loads the token for the given API key, validates expiry and
	// single-use, and marks it used, all inside one transaction.
	Consume(ctx context.Context, tokenID string, apiKeyID uint) (*models.CaptchaToken, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type captchaTokenRepository struct {
	db *gorm.DB
}

func NewCaptchaTokenRepository(db *gorm.DB) CaptchaTokenRepository {
	return &captchaTokenRepository{db: db}
}

func (r *captchaTokenRepository) Create(ctx context.Context, token *models.CaptchaToken) error {
	result := r.db.WithContext(ctx).Create(token)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to create captcha token")
	}
	return nil
}

func (r *captchaTokenRepository) Consume(ctx context.Context, tokenID string, apiKeyID uint) (*models.CaptchaToken, error) {
	var token models.CaptchaToken

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token_id = ? AND api_key_id = ?", tokenID, apiKeyID).First(&token).Error
		if err == gorm.ErrRecordNotFound {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}

		if token.IsExpired() {
			return errors.ErrTokenExpired
		}
		if token.IsUsed {
			return errors.ErrTokenUsed
		}

		now := time.Now()
		return tx.Model(&models.CaptchaToken{}).
			Where("id = ?", token.ID).
			Updates(map[string]interface{}{
				"is_used": true,
				"used_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	return &token, nil
}

func (r *captchaTokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ? OR is_used = ?", now, true).
		Delete(&models.CaptchaToken{})
	return result.RowsAffected, result.Error
}
