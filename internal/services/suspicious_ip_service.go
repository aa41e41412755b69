package services

import (
	"context"
	"errors"
	"time"

	"captcha-gateway-api/internal/logger"
	"captcha-gateway-api/internal/models"
	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrKeyNotOwned is returned when a caller filters by a key that does not
// belong to them.
var ErrKeyNotOwned = errors.New("api key not owned by caller")

const (
	suspiciousIPDefaultLimit = 20
	suspiciousIPMaxLimit     = 100
	recentViolationWindow    = 24 * time.Hour
)

// SuspiciousIPListOptions are the caller-facing listing knobs. Page and Limit
// are clamped to sane values; KeyID, when set, must be owned by the caller.
type SuspiciousIPListOptions struct {
	Page      int
	Limit     int
	IsBlocked *bool
	KeyID     string
}

// SuspiciousIPPage is the paginated listing envelope.
type SuspiciousIPPage struct {
	SuspiciousIPs []models.SuspiciousIP `json:"suspicious_ips"`
	TotalCount    int64                 `json:"total_count"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	TotalPages    int                   `json:"total_pages"`
}

// SuspiciousIPReport combines the account-wide totals with a per-key
// breakdown.
type SuspiciousIPReport struct {
	repository.SuspiciousIPStats
	APIKeyStats []repository.SuspiciousIPKeyStats `json:"api_key_stats"`
}

// SuspiciousIPService tracks clients that keep running into the rate limiter
// and lets key owners inspect, block and unblock them. Everything is scoped
// to the caller's own active keys.
type SuspiciousIPService interface {
	// RecordViolation folds one rate-limit denial into the tracker. It never
	// fails the request: a write error is logged and dropped.
	RecordViolation(ctx context.Context, keyID, ip string)
	List(ctx context.Context, userID uuid.UUID, opts SuspiciousIPListOptions) (*SuspiciousIPPage, error)
	Stats(ctx context.Context, userID uuid.UUID, keyID string) (*SuspiciousIPReport, error)
	BlockIP(ctx context.Context, userID uuid.UUID, ip, reason string) (int64, error)
	UnblockIP(ctx context.Context, userID uuid.UUID, ip string) (int64, error)
	Delete(ctx context.Context, userID uuid.UUID, id uint) error
}

type suspiciousIPService struct {
	suspiciousIPRepo repository.SuspiciousIPRepository
	apiKeyRepo       repository.APIKeyRepository
}

func NewSuspiciousIPService(
	suspiciousIPRepo repository.SuspiciousIPRepository,
	apiKeyRepo repository.APIKeyRepository,
) SuspiciousIPService {
	return &suspiciousIPService{
		suspiciousIPRepo: suspiciousIPRepo,
		apiKeyRepo:       apiKeyRepo,
	}
}

func (s *suspiciousIPService) RecordViolation(ctx context.Context, keyID, ip string) {
	if ip == "" {
		return
	}
	if err := s.suspiciousIPRepo.RecordViolation(ctx, keyID, ip, time.Now()); err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"key_id": keyID,
			"ip":     ip,
			"error":  err.Error(),
		}).Warn("failed to record rate-limit violation")
	}
}

func (s *suspiciousIPService) List(ctx context.Context, userID uuid.UUID, opts SuspiciousIPListOptions) (*SuspiciousIPPage, error) {
	keyIDs, err := s.ownedKeyIDs(ctx, userID, opts.KeyID)
	if err != nil {
		return nil, err
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 || opts.Limit > suspiciousIPMaxLimit {
		opts.Limit = suspiciousIPDefaultLimit
	}

	rows, total, err := s.suspiciousIPRepo.List(ctx, repository.SuspiciousIPFilter{
		KeyIDs:    keyIDs,
		IsBlocked: opts.IsBlocked,
		Page:      opts.Page,
		Limit:     opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(opts.Limit) - 1) / int64(opts.Limit))
	return &SuspiciousIPPage{
		SuspiciousIPs: rows,
		TotalCount:    total,
		Page:          opts.Page,
		Limit:         opts.Limit,
		TotalPages:    totalPages,
	}, nil
}

func (s *suspiciousIPService) Stats(ctx context.Context, userID uuid.UUID, keyID string) (*SuspiciousIPReport, error) {
	keyIDs, err := s.ownedKeyIDs(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}

	since := time.Now().Add(-recentViolationWindow)
	totals, err := s.suspiciousIPRepo.Stats(ctx, keyIDs, since)
	if err != nil {
		return nil, err
	}
	byKey, err := s.suspiciousIPRepo.StatsByKey(ctx, keyIDs, since)
	if err != nil {
		return nil, err
	}

	return &SuspiciousIPReport{
		SuspiciousIPStats: totals,
		APIKeyStats:       byKey,
	}, nil
}

func (s *suspiciousIPService) BlockIP(ctx context.Context, userID uuid.UUID, ip, reason string) (int64, error) {
	return s.setBlocked(ctx, userID, ip, true, reason)
}

func (s *suspiciousIPService) UnblockIP(ctx context.Context, userID uuid.UUID, ip string) (int64, error) {
	return s.setBlocked(ctx, userID, ip, false, "")
}

func (s *suspiciousIPService) setBlocked(ctx context.Context, userID uuid.UUID, ip string, blocked bool, reason string) (int64, error) {
	keyIDs, err := s.ownedKeyIDs(ctx, userID, "")
	if err != nil {
		return 0, err
	}

	affected, err := s.suspiciousIPRepo.SetBlocked(ctx, keyIDs, ip, blocked, reason)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, apperrors.ErrNotFound
	}
	return affected, nil
}

func (s *suspiciousIPService) Delete(ctx context.Context, userID uuid.UUID, id uint) error {
	keyIDs, err := s.ownedKeyIDs(ctx, userID, "")
	if err != nil {
		return err
	}
	return s.suspiciousIPRepo.Delete(ctx, keyIDs, id)
}

// ownedKeyIDs resolves the caller's active key IDs. A non-empty filterKey
// narrows the set to that one key and fails with ErrKeyNotOwned when it does
// not belong to the caller.
func (s *suspiciousIPService) ownedKeyIDs(ctx context.Context, userID uuid.UUID, filterKey string) ([]string, error) {
	keys, err := s.apiKeyRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	keyIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if key.IsActive {
			keyIDs = append(keyIDs, key.KeyID)
		}
	}

	if filterKey == "" {
		return keyIDs, nil
	}
	for _, keyID := range keyIDs {
		if keyID == filterKey {
			return []string{filterKey}, nil
		}
	}
	return nil, ErrKeyNotOwned
}
