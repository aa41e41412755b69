// Package metrics registers the gateway's Prometheus collectors. Everything
// is registered once via promauto at init and exposed by promhttp in main.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled HTTP requests by endpoint and status class.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Handled HTTP requests.",
	}, []string{"endpoint", "status"})

	// RateLimitDenials counts 429 responses by denial reason.
	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rate_limit_denials_total",
		Help: "Requests denied by the rate limit evaluator.",
	}, []string{"reason"})

	// UsageRecordFailures counts swallowed metering write errors.
	UsageRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_usage_record_failures_total",
		Help: "Usage recorder writes that failed and were dropped.",
	})

	// SweeperTicks counts sweeper iterations by outcome of each step.
	SweeperTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sweeper_steps_total",
		Help: "Sweeper maintenance steps executed.",
	}, []string{"step", "outcome"})
)
