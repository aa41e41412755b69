package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func TestShouldReset_Minute(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		lastReset time.Time
		want      bool
	}{
		{"same minute", ts(2025, 6, 10, 12, 30, 45), ts(2025, 6, 10, 12, 30, 2), false},
		{"next minute", ts(2025, 6, 10, 12, 31, 0), ts(2025, 6, 10, 12, 30, 59), true},
		{"same wall minute next hour", ts(2025, 6, 10, 13, 30, 0), ts(2025, 6, 10, 12, 30, 0), true},
		{"zero last reset", ts(2025, 6, 10, 12, 30, 0), time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldReset(WindowMinute, tt.now, tt.lastReset))
		})
	}
}

func TestShouldReset_Day(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		lastReset time.Time
		want      bool
	}{
		{"same day", ts(2025, 6, 10, 23, 59, 0), ts(2025, 6, 10, 0, 1, 0), false},
		{"midnight crossed", ts(2025, 6, 11, 0, 0, 30), ts(2025, 6, 10, 23, 59, 0), true},
		{"same day number different month", ts(2025, 7, 10, 1, 0, 0), ts(2025, 6, 10, 1, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldReset(WindowDay, tt.now, tt.lastReset))
		})
	}
}

func TestShouldReset_Month(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		lastReset time.Time
		want      bool
	}{
		{"same month", ts(2025, 6, 30, 0, 0, 0), ts(2025, 6, 1, 0, 0, 0), false},
		{"first of next month", ts(2025, 7, 1, 0, 0, 10), ts(2025, 6, 30, 23, 0, 0), true},
		{"same month different year", ts(2026, 6, 1, 0, 0, 0), ts(2025, 6, 1, 0, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldReset(WindowMonth, tt.now, tt.lastReset))
		})
	}
}

func TestShouldReset_IdempotentWithinBoundary(t *testing.T) {
	// After a reset stamps lastReset to now, a second evaluation inside the
	// same boundary must not reset again.
	now := ts(2025, 6, 10, 12, 31, 5)

	assert.True(t, ShouldReset(WindowMinute, now, ts(2025, 6, 10, 12, 30, 0)))

	// Sweeper stamped the reset; the simulated double-fire in the same minute
	// is a no-op.
	stamped := now
	again := ts(2025, 6, 10, 12, 31, 40)
	assert.False(t, ShouldReset(WindowMinute, again, stamped))
}

func TestWindowString(t *testing.T) {
	assert.Equal(t, "minute", WindowMinute.String())
	assert.Equal(t, "day", WindowDay.String())
	assert.Equal(t, "month", WindowMonth.String())
}
