package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"captcha-gateway-api/internal/models"
	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/repository"

	"github.com/google/uuid"
)

const (
	keyIDPrefix  = "rc_live_"
	secretPrefix = "rc_sk_"

	defaultRateLimitPerMinute = 100
	defaultRateLimitPerDay    = 10000
)

var ErrInvalidAPIKey = errors.New("invalid API key")

type APIKeyService interface {
	// CreateKey mints a key pair for the user. The plaintext secret is
	// returned exactly once and only its sha256 is persisted.
	CreateKey(ctx context.Context, userID uuid.UUID, name, description string) (*models.APIKey, string, error)
	ListKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	SetKeyActive(ctx context.Context, userID uuid.UUID, keyID string, active bool) error
	DeleteKey(ctx context.Context, userID uuid.UUID, keyID string) error

	// VerifyKey authenticates a data-plane request by key id alone.
	VerifyKey(ctx context.Context, keyID string) (*models.APIKey, error)
	// VerifyKeySecret additionally checks the secret, for server-to-server
	// callers that present both halves.
	VerifyKeySecret(ctx context.Context, keyID, secret string) (*models.APIKey, error)
	TouchKey(ctx context.Context, key *models.APIKey)
}

type apiKeyService struct {
	apiKeyRepo repository.APIKeyRepository
	userRepo   repository.UserRepository
}

func NewAPIKeyService(apiKeyRepo repository.APIKeyRepository, userRepo repository.UserRepository) APIKeyService {
	return &apiKeyService{
		apiKeyRepo: apiKeyRepo,
		userRepo:   userRepo,
	}
}

func (s *apiKeyService) CreateKey(ctx context.Context, userID uuid.UUID, name, description string) (*models.APIKey, string, error) {
	keyID, err := randomHex(16)
	if err != nil {
		return nil, "", err
	}
	rawSecret, err := randomHex(32)
	if err != nil {
		return nil, "", err
	}

	secret := secretPrefix + rawSecret

	apiKey := &models.APIKey{
		KeyID:              keyIDPrefix + keyID,
		SecretHash:         hashSecret(secret),
		UserID:             userID,
		Name:               name,
		Description:        description,
		IsActive:           true,
		RateLimitPerMinute: defaultRateLimitPerMinute,
		RateLimitPerDay:    defaultRateLimitPerDay,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}

	if err := s.apiKeyRepo.Create(ctx, apiKey); err != nil {
		return nil, "", err
	}

	return apiKey, secret, nil
}

func (s *apiKeyService) ListKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.apiKeyRepo.ListByUserID(ctx, userID)
}

func (s *apiKeyService) SetKeyActive(ctx context.Context, userID uuid.UUID, keyID string, active bool) error {
	return s.apiKeyRepo.SetActive(ctx, userID, keyID, active)
}

func (s *apiKeyService) DeleteKey(ctx context.Context, userID uuid.UUID, keyID string) error {
	return s.apiKeyRepo.DeleteByKeyID(ctx, userID, keyID)
}

func (s *apiKeyService) VerifyKey(ctx context.Context, keyID string) (*models.APIKey, error) {
	apiKey, err := s.apiKeyRepo.GetByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, err
	}

	if !apiKey.IsValid() {
		return nil, ErrInvalidAPIKey
	}

	user, err := s.userRepo.GetByID(ctx, apiKey.UserID)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	if !user.IsActive {
		return nil, ErrInvalidAPIKey
	}

	return apiKey, nil
}

func (s *apiKeyService) VerifyKeySecret(ctx context.Context, keyID, secret string) (*models.APIKey, error) {
	apiKey, err := s.VerifyKey(ctx, keyID)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(apiKey.SecretHash), []byte(hashSecret(secret))) != 1 {
		return nil, ErrInvalidAPIKey
	}

	return apiKey, nil
}

// TouchKey bumps the usage counter best-effort; failures are swallowed so a
// stats hiccup never affects the request.
func (s *apiKeyService) TouchKey(ctx context.Context, key *models.APIKey) {
	_ = s.apiKeyRepo.BumpUsage(ctx, key.ID)
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
