package services

import (
	"context"
	"testing"
	"time"

	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSweeperDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.UsageTracking{},
		&models.CaptchaToken{},
		&models.PasswordResetToken{},
		&models.RequestLog{},
		&models.DailyAPIStat{},
		&models.ErrorStatDaily{},
		&models.EndpointUsageDaily{},
	))
	return db
}

func newSweeper(db *gorm.DB) (*SweeperService, repository.UsageRepository) {
	usageRepo := repository.NewUsageRepository(db)
	return NewSweeperService(
		usageRepo,
		repository.NewCaptchaTokenRepository(db),
		repository.NewResetTokenRepository(db),
		repository.NewStatsRepository(db),
		time.Minute,
	), usageRepo
}

func TestTickResetsExpiredMinuteWindow(t *testing.T) {
	db := newSweeperDB(t)
	sweeper, usageRepo := newSweeper(db)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, usageRepo.Increment(ctx, userID, time.Now()))
	require.NoError(t, usageRepo.Increment(ctx, userID, time.Now()))

	// Backdate the minute stamp so the boundary has passed; day and month
	// stamps stay current.
	row, err := usageRepo.GetForDate(ctx, userID, time.Now())
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.UsageTracking{}).
		Where("id = ?", row.ID).
		Update("per_minute_reset_at", time.Now().Add(-2*time.Minute)).Error)

	sweeper.Tick(ctx, time.Now())

	row, err = usageRepo.GetForDate(ctx, userID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, row.PerMinuteCount)
	assert.Equal(t, 2, row.PerDayCount)
	assert.Equal(t, 2, row.PerMonthCount)
}

func TestTickDoubleFireWithinSameMinuteIsNoOp(t *testing.T) {
	db := newSweeperDB(t)
	sweeper, usageRepo := newSweeper(db)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, usageRepo.Increment(ctx, userID, time.Now()))

	row, err := usageRepo.GetForDate(ctx, userID, time.Now())
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.UsageTracking{}).
		Where("id = ?", row.ID).
		Update("per_minute_reset_at", time.Now().Add(-2*time.Minute)).Error)

	tick := time.Now()
	sweeper.Tick(ctx, tick)

	// Traffic lands between the two fires.
	require.NoError(t, usageRepo.Increment(ctx, userID, time.Now()))

	sweeper.Tick(ctx, tick)

	row, err = usageRepo.GetForDate(ctx, userID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, row.PerMinuteCount, "second fire in the same minute must not zero again")
}

func TestTickPurgesDeadTokens(t *testing.T) {
	db := newSweeperDB(t)
	sweeper, _ := newSweeper(db)
	ctx := context.Background()
	userID := uuid.New()

	expired := models.CaptchaToken{
		TokenID:     "tok-expired",
		APIKeyID:    1,
		UserID:      userID,
		CaptchaType: models.CaptchaImage,
		ExpiresAt:   time.Now().Add(-time.Hour),
	}
	live := models.CaptchaToken{
		TokenID:     "tok-live",
		APIKeyID:    1,
		UserID:      userID,
		CaptchaType: models.CaptchaImage,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&live).Error)

	usedReset := models.PasswordResetToken{
		UserID:      userID,
		TokenSHA256: "aa",
		ExpiresAt:   time.Now().Add(time.Hour),
		Used:        true,
	}
	require.NoError(t, db.Create(&usedReset).Error)

	sweeper.Tick(ctx, time.Now())

	var captchaTokens []models.CaptchaToken
	require.NoError(t, db.Find(&captchaTokens).Error)
	require.Len(t, captchaTokens, 1)
	assert.Equal(t, "tok-live", captchaTokens[0].TokenID)

	var resetCount int64
	require.NoError(t, db.Model(&models.PasswordResetToken{}).Count(&resetCount).Error)
	assert.Equal(t, int64(0), resetCount)
}

// A failure in the reset sweep must not stop the token purge.
func TestTickStepFailureDoesNotStarveOtherSteps(t *testing.T) {
	db := newSweeperDB(t)
	sweeper, _ := newSweeper(db)
	ctx := context.Background()

	require.NoError(t, db.Migrator().DropTable(&models.UsageTracking{}))

	expired := models.CaptchaToken{
		TokenID:     "tok-expired",
		APIKeyID:    1,
		UserID:      uuid.New(),
		CaptchaType: models.CaptchaImage,
		ExpiresAt:   time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(&expired).Error)

	sweeper.Tick(ctx, time.Now())

	var count int64
	require.NoError(t, db.Model(&models.CaptchaToken{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestDailyRollupRunsOncePostMidnight(t *testing.T) {
	db := newSweeperDB(t)
	sweeper, _ := newSweeper(db)
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	logTime := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 12, 0, 0, 0, time.UTC)

	logs := []models.RequestLog{
		{UserID: "u1", Endpoint: "/api/next-captcha", Method: "POST", Status: models.StatusSuccess, StatusCode: 200, ResponseTimeMs: 10, Timestamp: logTime},
		{UserID: "u1", Endpoint: "/api/next-captcha", Method: "POST", Status: models.StatusError, StatusCode: 429, ResponseTimeMs: 2, Timestamp: logTime},
		{UserID: "u2", Endpoint: "/api/verify-captcha", Method: "POST", Status: models.StatusError, StatusCode: 429, ResponseTimeMs: 3, Timestamp: logTime},
	}
	for i := range logs {
		require.NoError(t, db.Create(&logs[i]).Error)
	}

	// First sweep after midnight UTC.
	tick := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day()+1, 0, 1, 0, 0, time.UTC)
	sweeper.Tick(ctx, tick)

	var errorStats []models.ErrorStatDaily
	require.NoError(t, db.Find(&errorStats).Error)
	require.Len(t, errorStats, 1)
	assert.Equal(t, 429, errorStats[0].StatusCode)
	assert.Equal(t, 2, errorStats[0].Count)

	var endpointRows []models.EndpointUsageDaily
	require.NoError(t, db.Order("endpoint").Find(&endpointRows).Error)
	require.Len(t, endpointRows, 2)
	assert.Equal(t, 2, endpointRows[0].Requests)
	assert.Equal(t, 1, endpointRows[1].Requests)
}
