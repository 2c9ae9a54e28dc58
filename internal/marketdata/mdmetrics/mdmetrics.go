package mdmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const ns = "mdstream"

var (
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "frames_total",
		Help:      "Upstream websocket frames received, by frame type",
	}, []string{"type"}) // text/binary

	DecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "decoded_total",
		Help:      "Messages decoded, by kind",
	}, []string{"kind"})

	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "decode_errors_total",
		Help:      "Frames that failed to decode, by reason",
	}, []string{"reason"})

	PublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "published_total",
		Help:      "Messages handed to the distributor",
	})

	DroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "subscriber_dropped_total",
		Help:      "Messages overwritten in a full subscriber buffer",
	})

	LaggedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "subscriber_lagged_total",
		Help:      "Lag signals observed by internal consumers",
	}, []string{"consumer"})

	RemovedSubscribersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "subscriber_removed_total",
		Help:      "Closed subscriptions pruned on publish",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "subscribers",
		Help:      "Active distributor subscriptions",
	})

	SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "session_state",
		Help:      "Session state: 0 idle, 1 starting, 2 running, 3 stopping",
	})

	ConnectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "connect_total",
		Help:      "Upstream connect attempts, by result",
	}, []string{"result"}) // ok/error

	StatsSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "stats_symbols",
		Help:      "Symbols with live statistics",
	})

	RelayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "relay_total",
		Help:      "Messages republished to the broker, by result",
	}, []string{"result"}) // ok/error/rejected

	StatsCacheFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "stats_cache_flush_total",
		Help:      "Stats snapshots written to redis, by result",
	}, []string{"result"})
)

func OnDecodeError(reason string) {
	DecodeErrorsTotal.WithLabelValues(reason).Inc()
}
