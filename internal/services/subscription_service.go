package services

import (
	"context"
	"errors"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/repository"

	"github.com/google/uuid"
)

type SubscriptionService interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	Current(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	// ChangePlan closes the current subscription row and opens a new one on
	// the named plan, so the billing history stays append-only.
	ChangePlan(ctx context.Context, userID uuid.UUID, planName string) (*models.Subscription, error)
	AssignPlan(ctx context.Context, userID uuid.UUID, planID uint) (*models.Subscription, error)
	History(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error)
}

type subscriptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	planRepo         repository.PlanRepository
}

func NewSubscriptionService(subscriptionRepo repository.SubscriptionRepository, planRepo repository.PlanRepository) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
	}
}

func (s *subscriptionService) ListPlans(ctx context.Context) ([]models.Plan, error) {
	return s.planRepo.ListActive(ctx)
}

func (s *subscriptionService) Current(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return s.subscriptionRepo.GetActiveByUserID(ctx, userID)
}

func (s *subscriptionService) ChangePlan(ctx context.Context, userID uuid.UUID, planName string) (*models.Subscription, error) {
	plan, err := s.planRepo.GetByName(ctx, planName)
	if err != nil {
		return nil, err
	}
	return s.switchTo(ctx, userID, plan.ID)
}

func (s *subscriptionService) AssignPlan(ctx context.Context, userID uuid.UUID, planID uint) (*models.Subscription, error) {
	if _, err := s.planRepo.GetByID(ctx, planID); err != nil {
		return nil, err
	}
	return s.switchTo(ctx, userID, planID)
}

func (s *subscriptionService) switchTo(ctx context.Context, userID uuid.UUID, planID uint) (*models.Subscription, error) {
	current, err := s.subscriptionRepo.GetActiveByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, err
	}
	if current != nil && current.PlanID == planID {
		return current, nil
	}

	if current != nil {
		if err := s.subscriptionRepo.CancelActive(ctx, userID); err != nil {
			return nil, err
		}
	}

	subscription := &models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    planID,
		StartDate: time.Now(),
		Status:    models.SubscriptionActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.subscriptionRepo.Create(ctx, subscription); err != nil {
		return nil, err
	}

	return s.subscriptionRepo.GetActiveByUserID(ctx, userID)
}

func (s *subscriptionService) History(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error) {
	return s.subscriptionRepo.GetSubscriptionHistory(ctx, userID)
}
