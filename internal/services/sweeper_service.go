package services

import (
	"context"
	"fmt"
	"time"

	"captcha-gateway-api/internal/logger"
	"captcha-gateway-api/internal/metrics"
	"captcha-gateway-api/internal/ratelimit"
	"captcha-gateway-api/internal/repository"

	"github.com/sirupsen/logrus"
)

const DefaultSweepInterval = 60 * time.Second

// SweeperService is the single background maintenance loop: it applies window
// resets to the counter store, purges dead tokens, and once a day rebuilds the
// stat rollups. One instance, sequential ticks, runs until the context is
// cancelled.
type SweeperService struct {
	usageRepo        repository.UsageRepository
	captchaTokenRepo repository.CaptchaTokenRepository
	resetTokenRepo   repository.ResetTokenRepository
	statsRepo        repository.StatsRepository

	interval      time.Duration
	lastRollupDay time.Time
}

func NewSweeperService(
	usageRepo repository.UsageRepository,
	captchaTokenRepo repository.CaptchaTokenRepository,
	resetTokenRepo repository.ResetTokenRepository,
	statsRepo repository.StatsRepository,
	interval time.Duration,
) *SweeperService {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SweeperService{
		usageRepo:        usageRepo,
		captchaTokenRepo: captchaTokenRepo,
		resetTokenRepo:   resetTokenRepo,
		statsRepo:        statsRepo,
		interval:         interval,
	}
}

func (s *SweeperService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.Logger.WithField("interval", s.interval.String()).Info("sweeper started")

		for {
			select {
			case <-ctx.Done():
				logger.Logger.Info("sweeper stopped")
				return
			case <-ticker.C:
				s.Tick(ctx, time.Now())
			}
		}
	}()
}

// Tick runs one sweep. Each step is recovered independently so a failure in
// one never starves the others, and the loop itself never dies.
func (s *SweeperService) Tick(ctx context.Context, now time.Time) {
	s.runStep(ctx, "window_resets", func(ctx context.Context) error {
		return s.sweepWindowResets(ctx, now)
	})
	s.runStep(ctx, "token_purge", func(ctx context.Context) error {
		return s.purgeTokens(ctx, now)
	})

	// The rollup rebuild runs once per calendar day, on the first sweep after
	// midnight UTC.
	day := repository.DateOf(now)
	if now.UTC().Hour() == 0 && !day.Equal(s.lastRollupDay) {
		s.runStep(ctx, "daily_rollup", func(ctx context.Context) error {
			return s.rebuildRollups(ctx, now)
		})
		s.lastRollupDay = day
	}
}

func (s *SweeperService) runStep(ctx context.Context, step string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SweeperTicks.WithLabelValues(step, "panic").Inc()
			logger.Logger.WithFields(logrus.Fields{
				"step":  step,
				"panic": fmt.Sprint(r),
			}).Error("sweeper step panicked")
		}
	}()

	if err := fn(ctx); err != nil {
		metrics.SweeperTicks.WithLabelValues(step, "error").Inc()
		logger.Logger.WithFields(logrus.Fields{
			"step":  step,
			"error": err.Error(),
		}).Error("sweeper step failed")
		return
	}
	metrics.SweeperTicks.WithLabelValues(step, "ok").Inc()
}

func (s *SweeperService) sweepWindowResets(ctx context.Context, now time.Time) error {
	rows, err := s.usageRepo.ListForDate(ctx, now)
	if err != nil {
		return err
	}

	for _, row := range rows {
		checks := []struct {
			window    ratelimit.Window
			lastReset time.Time
		}{
			{ratelimit.WindowMinute, row.PerMinuteResetAt},
			{ratelimit.WindowDay, row.PerDayResetAt},
			{ratelimit.WindowMonth, row.PerMonthResetAt},
		}

		for _, c := range checks {
			if !ratelimit.ShouldReset(c.window, now, c.lastReset) {
				continue
			}
			if err := s.usageRepo.ResetWindow(ctx, row.ID, c.window, now); err != nil {
				logger.Logger.WithFields(logrus.Fields{
					"usage_id": row.ID,
					"window":   c.window.String(),
					"error":    err.Error(),
				}).Warn("window reset failed")
			}
		}
	}
	return nil
}

func (s *SweeperService) purgeTokens(ctx context.Context, now time.Time) error {
	captchaPurged, err := s.captchaTokenRepo.PurgeExpired(ctx, now)
	if err != nil {
		return err
	}
	resetPurged, err := s.resetTokenRepo.PurgeExpired(ctx, now)
	if err != nil {
		return err
	}

	if captchaPurged > 0 || resetPurged > 0 {
		logger.Logger.WithFields(logrus.Fields{
			"captcha_tokens": captchaPurged,
			"reset_tokens":   resetPurged,
		}).Info("purged expired tokens")
	}
	return nil
}

// rebuildRollups dedupes yesterday's daily stat rows and recomputes the error
// and endpoint rollups from the raw request logs.
func (s *SweeperService) rebuildRollups(ctx context.Context, now time.Time) error {
	yesterday := now.AddDate(0, 0, -1)

	deleted, err := s.statsRepo.DedupeDailyStats(ctx, yesterday)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Logger.WithField("rows", deleted).Info("deduplicated daily stat rows")
	}

	if err := s.statsRepo.RecomputeErrorStats(ctx, yesterday); err != nil {
		return err
	}
	return s.statsRepo.RecomputeEndpointUsage(ctx, yesterday)
}
