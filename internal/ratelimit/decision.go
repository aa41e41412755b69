// Package ratelimit holds the pure decision logic for the gateway's
// three-window accounting model: the allow/deny evaluator and the calendar
// window reset policy. Nothing in this package touches storage, so the
// middleware and the sweeper can both reuse it and tests can drive it
// directly.
package ratelimit

// Reason explains a denial. The zero-ish value ReasonOK means allowed.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonMinuteExceeded Reason = "minute_exceeded"
	ReasonDayExceeded    Reason = "day_exceeded"
	ReasonMonthExceeded  Reason = "month_exceeded"
)

// Limits are the configured caps for each window. A value of zero (or below)
// means no limit is configured for that window and its check is skipped.
type Limits struct {
	PerMinute int
	PerDay    int
	PerMonth  int
}

// Counts are the current counter values for each window.
type Counts struct {
	Minute int
	Day    int
	Month  int
}

// Decision is the ephemeral result of an evaluation; it is never persisted.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Evaluate compares each window's count against its limit in the fixed order
// minute, day, month, and denies on the first window that has reached
// capacity (count >= limit). Windows without a configured limit are skipped.
func Evaluate(limits Limits, counts Counts) Decision {
	if limits.PerMinute > 0 && counts.Minute >= limits.PerMinute {
		return Decision{Allowed: false, Reason: ReasonMinuteExceeded}
	}
	if limits.PerDay > 0 && counts.Day >= limits.PerDay {
		return Decision{Allowed: false, Reason: ReasonDayExceeded}
	}
	if limits.PerMonth > 0 && counts.Month >= limits.PerMonth {
		return Decision{Allowed: false, Reason: ReasonMonthExceeded}
	}
	return Decision{Allowed: true, Reason: ReasonOK}
}
