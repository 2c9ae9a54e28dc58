package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RedisCmdDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mdstream",
		Name:      "redis_cmd_duration_seconds",
		Help:      "Redis command latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms ~ 16s
	}, []string{"cmd", "status"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mdstream",
		Name:      "redis_errors_total",
		Help:      "Redis errors",
	}, []string{"cmd"})
)
