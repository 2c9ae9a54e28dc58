package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitBlockTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mdstream",
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"scope", "key"},
	)

	CBRejectTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mdstream",
			Name:      "circuitbreaker_reject_total",
			Help:      "Calls rejected by an open or saturated circuit breaker.",
		},
		[]string{"breaker", "reason"},
	)

	CBState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mdstream",
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (1 for the current state).",
		},
		[]string{"breaker", "state"}, // state: closed/open/half_open
	)
)
