// Package metrics holds the process-wide Prometheus collectors for the gate
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts completed requests by route and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedgate_requests_total",
		Help: "Total HTTP requests processed, by route and status code",
	}, []string{"route", "code"})

	// GateDecisions counts gate verdicts: gate is one of rate_limit,
	// wallet_auth, payment, admin; outcome is allow or the rejection reason.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedgate_gate_decisions_total",
		Help: "Gate decisions by gate and outcome",
	}, []string{"gate", "outcome"})

	// RateLimitRejections counts requests rejected with 429.
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedgate_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter",
	})

	// RateLimitFailOpen counts requests allowed through because the store
	// was unavailable.
	RateLimitFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedgate_rate_limit_fail_open_total",
		Help: "Requests allowed because the rate limit store was unavailable",
	})

	// StoreErrors counts failed store operations by operation name.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedgate_store_errors_total",
		Help: "Failed store operations by operation",
	}, []string{"op"})

	// SettlementsTotal counts facilitator settlements by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedgate_settlements_total",
		Help: "Payment settlements by outcome",
	}, []string{"outcome"})
)
