package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuthService accepts exactly one token; admin verification additionally
// requires the stub user to carry the admin flag.
type stubAuthService struct {
	token string
	user  *models.User
}

func (s *stubAuthService) VerifyToken(token string) (*models.User, *models.Subscription, error) {
	if token != s.token {
		return nil, nil, services.ErrInvalidToken
	}
	return s.user, nil, nil
}

func (s *stubAuthService) VerifyTokenAdmin(token string) (*models.User, *models.Subscription, error) {
	user, subscription, err := s.VerifyToken(token)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsAdmin {
		return nil, nil, services.ErrUnauthorized
	}
	return user, subscription, nil
}

func (s *stubAuthService) Register(ctx context.Context, email, username, password, fullName string) (*models.User, error) {
	return nil, nil
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (string, error) {
	return "", nil
}

func (s *stubAuthService) UpdateUser(ctx context.Context, userID uuid.UUID, fullName, contact, password string) error {
	return nil
}

func (s *stubAuthService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.user, nil
}

func (s *stubAuthService) GetCurrentSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return nil, nil
}

func (s *stubAuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	return "", nil
}

func (s *stubAuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	return nil
}

func userEcho(t *testing.T, wantID uuid.UUID) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := services.UserFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, wantID, user.ID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareBearerToken(t *testing.T) {
	userID := uuid.New()
	auth := &stubAuthService{token: "good-token", user: &models.User{ID: userID, IsActive: true}}
	guarded := AuthMiddleware(auth)(userEcho(t, userID))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid bearer", "Bearer good-token", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good-token", http.StatusUnauthorized},
		{"scheme only", "Bearer ", http.StatusUnauthorized},
		{"bad token", "Bearer other-token", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			guarded.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAdminMiddlewareRejectsNonAdmin(t *testing.T) {
	auth := &stubAuthService{token: "good-token", user: &models.User{ID: uuid.New(), IsActive: true}}
	guarded := AdminMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	guarded.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminMiddlewareAllowsAdmin(t *testing.T) {
	userID := uuid.New()
	auth := &stubAuthService{token: "good-token", user: &models.User{ID: userID, IsActive: true, IsAdmin: true}}
	guarded := AdminMiddleware(auth)(userEcho(t, userID))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	guarded.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
