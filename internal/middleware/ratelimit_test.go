package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/ratelimit"
	"captcha-gateway-api/internal/repository"
	"captcha-gateway-api/internal/services"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMeteredStack(t *testing.T) (services.UsageService, repository.UsageRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UsageTracking{}))

	usageRepo := repository.NewUsageRepository(db)
	return services.NewUsageService(usageRepo), usageRepo
}

// meteredHandler mimics the data plane: the rate limiter runs in front, and an
// accepted request is folded into the counter store afterwards.
func meteredHandler(usageService services.UsageService, key *models.APIKey, plan *models.Plan) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		usageService.Record(r.Context(), key.UserID)
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimitMiddleware(usageService, nil)(inner)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithAPIKeyContext(r.Context(), key, plan)
		limited.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestMinuteLimitDeniesSixthRequest(t *testing.T) {
	usageService, _ := newMeteredStack(t)

	key := &models.APIKey{
		ID:                 1,
		KeyID:              "rc_live_test",
		UserID:             uuid.New(),
		IsActive:           true,
		RateLimitPerMinute: 5,
	}

	handler := meteredHandler(usageService, key, nil)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/next-captcha", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/next-captcha", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body["detail"])
}

func TestMonthlyCapDeniesEvenWithLowMinuteCount(t *testing.T) {
	usageService, usageRepo := newMeteredStack(t)

	key := &models.APIKey{
		ID:                 1,
		KeyID:              "rc_live_test",
		UserID:             uuid.New(),
		IsActive:           true,
		RateLimitPerMinute: 1000,
	}
	plan := &models.Plan{Name: "starter", MonthlyRequestLimit: 100}

	// 100 requests already recorded this period, minute window since reset.
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, usageRepo.Increment(ctx, key.UserID, time.Now()))
	}
	row, err := usageRepo.GetForDate(ctx, key.UserID, time.Now())
	require.NoError(t, err)
	require.NoError(t, usageRepo.ResetWindow(ctx, row.ID, ratelimit.WindowMinute, time.Now()))

	handler := meteredHandler(usageService, key, plan)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/next-captcha", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body["detail"])
}

// failingUsageService simulates a counter store outage.
type failingUsageService struct{}

func (failingUsageService) Record(ctx context.Context, userID uuid.UUID) {}

func (failingUsageService) CountersFor(ctx context.Context, userID uuid.UUID, now time.Time) (ratelimit.Counts, error) {
	return ratelimit.Counts{}, assert.AnError
}

func (failingUsageService) Row(ctx context.Context, userID uuid.UUID, now time.Time) (*models.UsageTracking, error) {
	return nil, assert.AnError
}

func TestCounterReadErrorFailsOpen(t *testing.T) {
	usageService := failingUsageService{}

	key := &models.APIKey{
		ID:                 1,
		KeyID:              "rc_live_test",
		UserID:             uuid.New(),
		IsActive:           true,
		RateLimitPerMinute: 1,
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimitMiddleware(usageService, nil)(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/next-captcha", nil)
	req = req.WithContext(services.WithAPIKeyContext(req.Context(), key, nil))
	limited.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDenialRecordsSuspiciousIP(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UsageTracking{}, &models.APIKey{}, &models.SuspiciousIP{}))

	usageService := services.NewUsageService(repository.NewUsageRepository(db))
	suspiciousIPRepo := repository.NewSuspiciousIPRepository(db)
	suspiciousIPService := services.NewSuspiciousIPService(suspiciousIPRepo, repository.NewAPIKeyRepository(db))

	key := &models.APIKey{
		ID:                 1,
		KeyID:              "rc_live_test",
		UserID:             uuid.New(),
		IsActive:           true,
		RateLimitPerMinute: 1,
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		usageService.Record(r.Context(), key.UserID)
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimitMiddleware(usageService, suspiciousIPService)(inner)

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/next-captcha", nil)
		req.RemoteAddr = "203.0.113.7:51234"
		req = req.WithContext(services.WithAPIKeyContext(req.Context(), key, nil))
		limited.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send().Code)
	require.Equal(t, http.StatusTooManyRequests, send().Code)
	require.Equal(t, http.StatusTooManyRequests, send().Code)

	var row models.SuspiciousIP
	require.NoError(t, db.First(&row, "api_key = ?", key.KeyID).Error)
	assert.Equal(t, "203.0.113.7", row.IPAddress)
	assert.Equal(t, 2, row.ViolationCount)
}

func TestMissingKeyContextIsUnauthorized(t *testing.T) {
	usageService, _ := newMeteredStack(t)

	limited := RateLimitMiddleware(usageService, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/next-captcha", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
