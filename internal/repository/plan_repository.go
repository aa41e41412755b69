package repository

import (
	"context"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/pkg/errors"

	"gorm.io/gorm"
)

type PlanRepository interface {
	Create(ctx context.Context, plan *models.Plan) error
	GetByID(ctx context.Context, id uint) (*models.Plan, error)
	GetByName(ctx context.Context, name string) (*models.Plan, error)
	ListActive(ctx context.Context) ([]models.Plan, error)
	Update(ctx context.Context, plan *models.Plan) error
	Delete(ctx context.Context, id uint) error
	SeedDefaults(ctx context.Context, plans []models.Plan) error
}

type planRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) Create(ctx context.Context, plan *models.Plan) error {
	result := r.db.WithContext(ctx).Create(plan)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to create plan")
	}
	return nil
}

func (r *planRepository) GetByID(ctx context.Context, id uint) (*models.Plan, error) {
	var plan models.Plan
	result := r.db.WithContext(ctx).First(&plan, "id = ?", id)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to get plan by ID")
	}

	return &plan, nil
}

func (r *planRepository) GetByName(ctx context.Context, name string) (*models.Plan, error) {
	var plan models.Plan
	result := r.db.WithContext(ctx).First(&plan, "name = ?", name)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to get plan by name")
	}

	return &plan, nil
}

func (r *planRepository) ListActive(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price_monthly ASC").
		Find(&plans).Error
	return plans, err
}

func (r *planRepository) Update(ctx context.Context, plan *models.Plan) error {
	result := r.db.WithContext(ctx).Model(&models.Plan{}).
		Where("id = ?", plan.ID).
		Updates(map[string]interface{}{
			"display_name":          plan.DisplayName,
			"price_monthly":         plan.PriceMonthly,
			"monthly_request_limit": plan.MonthlyRequestLimit,
			"rate_limit_per_minute": plan.RateLimitPerMinute,
			"is_active":             plan.IsActive,
		})

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update plan")
	}

	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}

	return nil
}

func (r *planRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Plan{}, "id = ?", id)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete plan")
	}

	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}

	return nil
}

// SeedDefaults inserts the default plan set if the table is empty.
func (r *planRepository) SeedDefaults(ctx context.Context, plans []models.Plan) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Plan{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&plans).Error
}
