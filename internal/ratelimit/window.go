package ratelimit

import "time"

// Window is one of the three rolling accounting periods.
type Window int

const (
	WindowMinute Window = iota
	WindowDay
	WindowMonth
)

func (w Window) String() string {
	switch w {
	case WindowMinute:
		return "minute"
	case WindowDay:
		return "day"
	case WindowMonth:
		return "month"
	}
	return "unknown"
}

// ShouldReset reports whether the window's counter should be zeroed: true iff
// a new minute/day/month has started since lastReset. Stamping the reset time
// per window makes a second call inside the same boundary a no-op, so a
// double-fired sweeper tick cannot reset twice. A zero lastReset always
// resets, which initializes the stamp on rows created before stamping began.
func ShouldReset(w Window, now, lastReset time.Time) bool {
	if lastReset.IsZero() {
		return true
	}
	switch w {
	case WindowMinute:
		return !now.Truncate(time.Minute).Equal(lastReset.Truncate(time.Minute))
	case WindowDay:
		ny, nm, nd := now.Date()
		ly, lm, ld := lastReset.Date()
		return ny != ly || nm != lm || nd != ld
	case WindowMonth:
		ny, nm, _ := now.Date()
		ly, lm, _ := lastReset.Date()
		return ny != ly || nm != lm
	}
	return false
}
