package services

import (
	"context"
	"testing"

	"captcha-gateway-api/internal/models"
	apperrors "captcha-gateway-api/internal/pkg/errors"
	"captcha-gateway-api/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSuspiciousIPService(t *testing.T) (SuspiciousIPService, repository.APIKeyRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.APIKey{}, &models.SuspiciousIP{}))

	apiKeyRepo := repository.NewAPIKeyRepository(db)
	return NewSuspiciousIPService(repository.NewSuspiciousIPRepository(db), apiKeyRepo), apiKeyRepo
}

func seedKey(t *testing.T, apiKeyRepo repository.APIKeyRepository, userID uuid.UUID, keyID string, active bool) {
	t.Helper()
	require.NoError(t, apiKeyRepo.Create(context.Background(), &models.APIKey{
		KeyID:      keyID,
		SecretHash: "irrelevant",
		UserID:     userID,
		Name:       "test key",
		IsActive:   active,
	}))
}

func TestListScopesToCallerKeys(t *testing.T) {
	svc, apiKeyRepo := newSuspiciousIPService(t)
	ctx := context.Background()

	owner := uuid.New()
	other := uuid.New()
	seedKey(t, apiKeyRepo, owner, "rc_live_mine", true)
	seedKey(t, apiKeyRepo, other, "rc_live_theirs", true)

	svc.RecordViolation(ctx, "rc_live_mine", "203.0.113.1")
	svc.RecordViolation(ctx, "rc_live_theirs", "203.0.113.2")

	page, err := svc.List(ctx, owner, SuspiciousIPListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalCount)
	require.Len(t, page.SuspiciousIPs, 1)
	assert.Equal(t, "rc_live_mine", page.SuspiciousIPs[0].APIKeyID)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, 1, page.TotalPages)
}

func TestListRejectsForeignKeyFilter(t *testing.T) {
	svc, apiKeyRepo := newSuspiciousIPService(t)
	ctx := context.Background()

	owner := uuid.New()
	other := uuid.New()
	seedKey(t, apiKeyRepo, owner, "rc_live_mine", true)
	seedKey(t, apiKeyRepo, other, "rc_live_theirs", true)

	_, err := svc.List(ctx, owner, SuspiciousIPListOptions{KeyID: "rc_live_theirs"})
	assert.ErrorIs(t, err, ErrKeyNotOwned)

	_, err = svc.Stats(ctx, owner, "rc_live_theirs")
	assert.ErrorIs(t, err, ErrKeyNotOwned)
}

func TestListIgnoresInactiveKeys(t *testing.T) {
	svc, apiKeyRepo := newSuspiciousIPService(t)
	ctx := context.Background()

	owner := uuid.New()
	seedKey(t, apiKeyRepo, owner, "rc_live_disabled", false)
	svc.RecordViolation(ctx, "rc_live_disabled", "203.0.113.1")

	page, err := svc.List(ctx, owner, SuspiciousIPListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.TotalCount)
}

func TestStatsEmptyWithoutKeys(t *testing.T) {
	svc, _ := newSuspiciousIPService(t)

	report, err := svc.Stats(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	assert.EqualValues(t, 0, report.TotalSuspiciousIPs)
	assert.Empty(t, report.APIKeyStats)
}

func TestBlockAndUnblockRoundtrip(t *testing.T) {
	svc, apiKeyRepo := newSuspiciousIPService(t)
	ctx := context.Background()

	owner := uuid.New()
	seedKey(t, apiKeyRepo, owner, "rc_live_mine", true)
	svc.RecordViolation(ctx, "rc_live_mine", "203.0.113.7")

	affected, err := svc.BlockIP(ctx, owner, "203.0.113.7", "scripted abuse")
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	blocked := true
	page, err := svc.List(ctx, owner, SuspiciousIPListOptions{IsBlocked: &blocked})
	require.NoError(t, err)
	require.Len(t, page.SuspiciousIPs, 1)
	assert.Equal(t, "scripted abuse", page.SuspiciousIPs[0].BlockReason)

	_, err = svc.UnblockIP(ctx, owner, "203.0.113.7")
	require.NoError(t, err)

	page, err = svc.List(ctx, owner, SuspiciousIPListOptions{IsBlocked: &blocked})
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.TotalCount)
}

func TestBlockUnknownIPIsNotFound(t *testing.T) {
	svc, apiKeyRepo := newSuspiciousIPService(t)
	ctx := context.Background()

	owner := uuid.New()
	seedKey(t, apiKeyRepo, owner, "rc_live_mine", true)

	_, err := svc.BlockIP(ctx, owner, "203.0.113.99", "abuse")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStatsRecentWindow(t *testing.T) {
	svc, apiKeyRepo := newSuspiciousIPService(t)
	ctx := context.Background()

	owner := uuid.New()
	seedKey(t, apiKeyRepo, owner, "rc_live_mine", true)
	svc.RecordViolation(ctx, "rc_live_mine", "203.0.113.1")
	svc.RecordViolation(ctx, "rc_live_mine", "203.0.113.2")

	report, err := svc.Stats(ctx, owner, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.TotalSuspiciousIPs)
	assert.EqualValues(t, 2, report.RecentViolations24h)
	require.Len(t, report.APIKeyStats, 1)
	assert.Equal(t, "rc_live_mine", report.APIKeyStats[0].APIKeyID)
}
