package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"captcha-gateway-api/internal/models"
	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/repository"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const (
	UserContextKey         contextKey = "user"
	SubscriptionContextKey contextKey = "subscription"
	APIKeyContextKey       contextKey = "api_key"
	PlanContextKey         contextKey = "plan"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnauthorized       = errors.New("user is not authorized as admin")
)

const resetTokenTTL = 30 * time.Minute

type AuthService interface {
	Register(ctx context.Context, email, username, password, fullName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	VerifyToken(token string) (*models.User, *models.Subscription, error)
	VerifyTokenAdmin(token string) (*models.User, *models.Subscription, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, fullName, contact, password string) error
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetCurrentSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
}

type authService struct {
	userRepo         repository.UserRepository
	subscriptionRepo repository.SubscriptionRepository
	planRepo         repository.PlanRepository
	resetTokenRepo   repository.ResetTokenRepository
	apiKeyService    APIKeyService
	jwtSecret        string
}

func NewAuthService(
	userRepo repository.UserRepository,
	subscriptionRepo repository.SubscriptionRepository,
	planRepo repository.PlanRepository,
	resetTokenRepo repository.ResetTokenRepository,
	apiKeyService APIKeyService,
	jwtSecret string,
) AuthService {
	return &authService{
		userRepo:         userRepo,
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		resetTokenRepo:   resetTokenRepo,
		apiKeyService:    apiKeyService,
		jwtSecret:        jwtSecret,
	}
}

// Register creates the user with a bcrypt-hashed password, assigns a first
// API key and puts the account on the Free plan.
func (s *authService) Register(ctx context.Context, email, username, password, fullName string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		FullName:     fullName,
		PasswordHash: string(hashedPassword),
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	if _, _, err := s.apiKeyService.CreateKey(ctx, user.ID, "default", ""); err != nil {
		return user, err
	}

	freePlan, err := s.planRepo.GetByName(ctx, "Free")
	if err != nil {
		return user, err
	}

	subscription := &models.Subscription{
		ID:        uuid.New(),
		UserID:    user.ID,
		PlanID:    freePlan.ID,
		StartDate: time.Now(),
		Status:    models.SubscriptionActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.subscriptionRepo.Create(ctx, subscription); err != nil {
		return user, err
	}

	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if !user.IsActive {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID.String(),
		"is_admin": user.IsAdmin,
		"exp":      time.Now().Add(time.Hour * 24).Unix(),
	})

	return token.SignedString([]byte(s.jwtSecret))
}

func (s *authService) VerifyToken(tokenString string) (*models.User, *models.Subscription, error) {
	user, err := s.parseToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	subscription, err := s.subscriptionRepo.GetActiveByUserID(context.Background(), user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return user, nil, nil
		}
		return nil, nil, err
	}

	return user, subscription, nil
}

func (s *authService) VerifyTokenAdmin(tokenString string) (*models.User, *models.Subscription, error) {
	user, err := s.parseToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	if !user.IsAdmin {
		return nil, nil, ErrUnauthorized
	}

	subscription, err := s.subscriptionRepo.GetActiveByUserID(context.Background(), user.ID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, nil, err
	}

	return user, subscription, nil
}

func (s *authService) parseToken(tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	rawID, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(context.Background(), userID)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInvalidToken
	}

	return user, nil
}

func (s *authService) UpdateUser(ctx context.Context, userID uuid.UUID, fullName, contact, password string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if fullName != "" {
		user.FullName = fullName
	}
	if contact != "" {
		user.Contact = contact
	}

	if password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		user.PasswordHash = string(hashedPassword)
	}

	user.UpdatedAt = time.Now()
	return s.userRepo.Update(ctx, user)
}

func (s *authService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *authService) GetCurrentSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return s.subscriptionRepo.GetActiveByUserID(ctx, userID)
}

// ForgotPassword issues a one-time reset token. Only the sha256 of the token
// is stored; the raw token goes out by mail. An unknown email returns
// successfully with an empty token so the endpoint cannot be used to probe
// for accounts.
func (s *authService) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	rawToken := uuid.NewString() + uuid.NewString()
	sum := sha256.Sum256([]byte(rawToken))

	token := &models.PasswordResetToken{
		UserID:      user.ID,
		TokenSHA256: hex.EncodeToString(sum[:]),
		ExpiresAt:   time.Now().Add(resetTokenTTL),
	}
	if err := s.resetTokenRepo.Create(ctx, token); err != nil {
		return "", err
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "https://dashboard.example.com"
	}
	resetURL := fmt.Sprintf("%s/forgot-password?token=%s", frontendURL, rawToken)

	// Mail failure is not fatal: the token is valid and the caller may retry.
	_ = s.sendPasswordResetEmail(user.Email, resetURL)

	return rawToken, nil
}

func (s *authService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < 8 {
		return apperrors.ErrInvalidInput
	}

	sum := sha256.Sum256([]byte(rawToken))
	token, err := s.resetTokenRepo.GetByHash(ctx, hex.EncodeToString(sum[:]))
	if err != nil {
		return ErrInvalidToken
	}

	if token.Used {
		return apperrors.ErrTokenUsed
	}
	if time.Now().After(token.ExpiresAt) {
		return apperrors.ErrTokenExpired
	}

	user, err := s.userRepo.GetByID(ctx, token.UserID)
	if err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user.PasswordHash = string(hashedPassword)
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	return s.resetTokenRepo.MarkUsed(ctx, token.ID)
}

func (s *authService) sendPasswordResetEmail(email, resetURL string) error {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		return nil
	}

	from := mail.NewEmail("Captcha Gateway", "noreply@captcha-gateway.dev")
	subject := "Password reset"
	to := mail.NewEmail("", email)

	htmlContent := fmt.Sprintf(`
		<html>
		<body>
			<p>A password reset was requested for your account.</p>
			<p><a href="%s">Reset your password</a></p>
			<p>If you did not request this, you can ignore this mail.</p>
		</body>
		</html>
	`, resetURL)

	message := mail.NewSingleEmail(from, subject, to, "", htmlContent)
	client := sendgrid.NewSendClient(apiKey)
	response, err := client.Send(message)
	if err != nil {
		return err
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("error sending email: %v", response.Body)
	}

	return nil
}

// Helper function to add user and subscription to context
func WithUserAndSubscriptionContext(ctx context.Context, user *models.User, subscription *models.Subscription) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return context.WithValue(ctx, SubscriptionContextKey, subscription)
}

// Helper function to get user from context
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// Helper function to get subscription from context
func SubscriptionFromContext(ctx context.Context) (*models.Subscription, bool) {
	subscription, ok := ctx.Value(SubscriptionContextKey).(*models.Subscription)
	return subscription, ok
}

func WithAPIKeyContext(ctx context.Context, key *models.APIKey, plan *models.Plan) context.Context {
	ctx = context.WithValue(ctx, APIKeyContextKey, key)
	return context.WithValue(ctx, PlanContextKey, plan)
}

func APIKeyFromContext(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(APIKeyContextKey).(*models.APIKey)
	return key, ok
}

func PlanFromContext(ctx context.Context) (*models.Plan, bool) {
	plan, ok := ctx.Value(PlanContextKey).(*models.Plan)
	return plan, ok
}
