package repository

import (
	"context"
	"testing"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/ratelimit"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.UsageTracking{}))
	return db
}

func TestIncrementCreatesRowWithAllCountersAtOne(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	require.NoError(t, repo.Increment(ctx, userID, now))

	row, err := repo.GetForDate(ctx, userID, now)
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, 1, row.PerMinuteCount)
	assert.Equal(t, 1, row.PerDayCount)
	assert.Equal(t, 1, row.PerMonthCount)
}

func TestIncrementAccumulatesAcrossCalls(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	const n = 7
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Increment(ctx, userID, now))
	}

	row, err := repo.GetForDate(ctx, userID, now)
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, n, row.PerMinuteCount)
	assert.Equal(t, n, row.PerDayCount)
	assert.Equal(t, n, row.PerMonthCount)
}

func TestIncrementKeepsUsersSeparate(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	alice := uuid.New()
	bob := uuid.New()

	require.NoError(t, repo.Increment(ctx, alice, now))
	require.NoError(t, repo.Increment(ctx, alice, now))
	require.NoError(t, repo.Increment(ctx, bob, now))

	aliceRow, err := repo.GetForDate(ctx, alice, now)
	require.NoError(t, err)
	bobRow, err := repo.GetForDate(ctx, bob, now)
	require.NoError(t, err)

	assert.Equal(t, 2, aliceRow.PerDayCount)
	assert.Equal(t, 1, bobRow.PerDayCount)
}

func TestGetForDateMissingRowReturnsNil(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))

	row, err := repo.GetForDate(context.Background(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestResetWindowZeroesOnlyThatWindow(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Increment(ctx, userID, now))
	}

	row, err := repo.GetForDate(ctx, userID, now)
	require.NoError(t, err)

	resetAt := now.Add(time.Minute)
	require.NoError(t, repo.ResetWindow(ctx, row.ID, ratelimit.WindowMinute, resetAt))

	row, err = repo.GetForDate(ctx, userID, now)
	require.NoError(t, err)

	assert.Equal(t, 0, row.PerMinuteCount)
	assert.Equal(t, 3, row.PerDayCount)
	assert.Equal(t, 3, row.PerMonthCount)
	assert.WithinDuration(t, resetAt, row.PerMinuteResetAt, time.Second)
}

// A sweeper double-fire inside the same minute must be a no-op: the first
// reset stamps the window, so ShouldReset answers false the second time and
// no second zeroing happens.
func TestResetIsIdempotentWithinSameBoundary(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	require.NoError(t, repo.Increment(ctx, userID, now))

	row, err := repo.GetForDate(ctx, userID, now)
	require.NoError(t, err)

	tick := now.Add(2 * time.Minute)
	require.True(t, ratelimit.ShouldReset(ratelimit.WindowMinute, tick, row.PerMinuteResetAt))
	require.NoError(t, repo.ResetWindow(ctx, row.ID, ratelimit.WindowMinute, tick))

	// Requests land after the reset.
	require.NoError(t, repo.Increment(ctx, userID, now))

	row, err = repo.GetForDate(ctx, userID, now)
	require.NoError(t, err)
	require.Equal(t, 1, row.PerMinuteCount)

	// Second fire in the same minute: policy says no.
	assert.False(t, ratelimit.ShouldReset(ratelimit.WindowMinute, tick, row.PerMinuteResetAt))

	row, err = repo.GetForDate(ctx, userID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, row.PerMinuteCount)
}

func TestDeleteOlderThanPrunesHistory(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()

	old := time.Now().AddDate(0, 0, -40)
	today := time.Now()

	require.NoError(t, repo.Increment(ctx, userID, old))
	require.NoError(t, repo.Increment(ctx, userID, today))

	deleted, err := repo.DeleteOlderThan(ctx, today.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	row, err := repo.GetForDate(ctx, userID, today)
	require.NoError(t, err)
	assert.NotNil(t, row)
}
