package repository

import (
	"context"
	"testing"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/pkg/errors"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSuspiciousIPRepo(t *testing.T) SuspiciousIPRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SuspiciousIP{}))

	return NewSuspiciousIPRepository(db)
}

func TestRecordViolationCreatesThenIncrements(t *testing.T) {
	repo := newSuspiciousIPRepo(t)
	ctx := context.Background()

	first := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.7", first))

	later := first.Add(5 * time.Minute)
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.7", later))

	rows, total, err := repo.List(ctx, SuspiciousIPFilter{KeyIDs: []string{"rc_live_a"}, Page: 1, Limit: 20})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, rows, 1)

	assert.Equal(t, 2, rows[0].ViolationCount)
	assert.Equal(t, first.Unix(), rows[0].FirstViolationTime.Unix())
	assert.Equal(t, later.Unix(), rows[0].LastViolationTime.Unix())
}

func TestRecordViolationKeepsKeysSeparate(t *testing.T) {
	repo := newSuspiciousIPRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.7", now))
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_b", "203.0.113.7", now))

	_, total, err := repo.List(ctx, SuspiciousIPFilter{KeyIDs: []string{"rc_live_a"}, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestListOrdersByLastViolationAndPaginates(t *testing.T) {
	repo := newSuspiciousIPRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.1", base))
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.2", base.Add(time.Minute)))
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.3", base.Add(2*time.Minute)))

	rows, total, err := repo.List(ctx, SuspiciousIPFilter{KeyIDs: []string{"rc_live_a"}, Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "203.0.113.3", rows[0].IPAddress)
	assert.Equal(t, "203.0.113.2", rows[1].IPAddress)

	rows, _, err = repo.List(ctx, SuspiciousIPFilter{KeyIDs: []string{"rc_live_a"}, Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "203.0.113.1", rows[0].IPAddress)
}

func TestListFiltersByBlockedState(t *testing.T) {
	repo := newSuspiciousIPRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.1", now))
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.2", now))

	affected, err := repo.SetBlocked(ctx, []string{"rc_live_a"}, "203.0.113.1", true, "abuse")
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	blocked := true
	rows, total, err := repo.List(ctx, SuspiciousIPFilter{KeyIDs: []string{"rc_live_a"}, IsBlocked: &blocked, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "203.0.113.1", rows[0].IPAddress)
	assert.Equal(t, "abuse", rows[0].BlockReason)
}

func TestSetBlockedOnlyTouchesGivenKeys(t *testing.T) {
	repo := newSuspiciousIPRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.RecordViolation(ctx, "rc_live_mine", "203.0.113.7", now))
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_theirs", "203.0.113.7", now))

	affected, err := repo.SetBlocked(ctx, []string{"rc_live_mine"}, "203.0.113.7", true, "abuse")
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	blocked := true
	_, total, err := repo.List(ctx, SuspiciousIPFilter{KeyIDs: []string{"rc_live_theirs"}, IsBlocked: &blocked, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestStatsCountsBlockedAndRecent(t *testing.T) {
	repo := newSuspiciousIPRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.1", now))
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_a", "203.0.113.2", now.Add(-48*time.Hour)))
	require.NoError(t, repo.RecordViolation(ctx, "rc_live_b", "203.0.113.3", now))

	_, err := repo.SetBlocked(ctx, []string{"rc_live_a"}, "203.0.113.1", true, "abuse")
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, []string{"rc_live_a", "rc_live_b"}, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalSuspiciousIPs)
	assert.EqualValues(t, 1, stats.BlockedIPs)
	assert.EqualValues(t, 2, stats.ActiveSuspiciousIPs)
	assert.EqualValues(t, 2, stats.RecentViolations24h)

	byKey, err := repo.StatsByKey(ctx, []string{"rc_live_a", "rc_live_b"}, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, byKey, 2)
	assert.Equal(t, "rc_live_a", byKey[0].APIKeyID)
	assert.EqualValues(t, 2, byKey[0].TotalSuspiciousIPs)
}

func TestDeleteRequiresOwnedKey(t *testing.T) {
	repo := newSuspiciousIPRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordViolation(ctx, "rc_live_theirs", "203.0.113.7", time.Now()))

	rows, _, err := repo.List(ctx, SuspiciousIPFilter{KeyIDs: []string{"rc_live_theirs"}, Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	err = repo.Delete(ctx, []string{"rc_live_mine"}, rows[0].ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, []string{"rc_live_theirs"}, rows[0].ID))
}
