package mdmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Downstream websocket gateway.
var (
	WSConns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "ws_conns",
		Help:      "Active downstream websocket connections",
	})
	WSConnOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_conn_open_total",
		Help:      "Downstream websocket connections opened",
	})
	WSConnCloseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_conn_close_total",
		Help:      "Downstream websocket connections closed, by close code and reason",
	}, []string{"code", "reason"})

	WSSubOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_sub_ops_total",
		Help:      "Topic subscription operations",
	}, []string{"op"}) // sub/unsub

	WSMsgsOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_msgs_out_total",
		Help:      "Downstream messages written",
	})
	WSBytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_bytes_out_total",
		Help:      "Downstream bytes written",
	})
	WSWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_write_errors_total",
		Help:      "Downstream write errors",
	})
	WSDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_dropped_total",
		Help:      "Downstream messages dropped",
	}, []string{"why"})

	WSPingSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_ping_sent_total",
		Help:      "Pings sent",
	})
	WSPongRecvTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ws_pong_recv_total",
		Help:      "Pongs received",
	})

	WSWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "ws_write_duration_seconds",
		Help:      "Duration of one downstream write",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms -> ~4s
	})
)

func OnWSOpen() {
	WSConns.Inc()
	WSConnOpenTotal.Inc()
}

func OnWSClose(code int, reason string) {
	WSConns.Dec()
	WSConnCloseTotal.WithLabelValues(strconv.Itoa(code), reason).Inc()
}

func ObserveWSWrite(bytes int, dur time.Duration, err error) {
	WSWriteDuration.Observe(dur.Seconds())
	if err != nil {
		WSWriteErrorsTotal.Inc()
		return
	}
	WSMsgsOutTotal.Inc()
	WSBytesOutTotal.Add(float64(bytes))
}
