package repository

import (
	"context"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/pkg/errors"

	"gorm.io/gorm"
)

type ResetTokenRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	GetByHash(ctx context.Context, tokenSHA256 string) (*models.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id uint) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type resetTokenRepository struct {
	db *gorm.DB
}

func NewResetTokenRepository(db *gorm.DB) ResetTokenRepository {
	return &resetTokenRepository{db: db}
}

func (r *resetTokenRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	result := r.db.WithContext(ctx).Create(token)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to create reset token")
	}
	return nil
}

func (r *resetTokenRepository) GetByHash(ctx context.Context, tokenSHA256 string) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken
	result := r.db.WithContext(ctx).First(&token, "token_sha256 = ?", tokenSHA256)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to get reset token")
	}

	return &token, nil
}

func (r *resetTokenRepository) MarkUsed(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.PasswordResetToken{}).
		Where("id = ?", id).
		Update("used", true)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark reset token used")
	}

	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}

	return nil
}

func (r *resetTokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ? OR used = ?", now, true).
		Delete(&models.PasswordResetToken{})
	return result.RowsAffected, result.Error
}
