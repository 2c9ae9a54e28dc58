// Package statscache mirrors the latest per-symbol statistics into redis so
// other services can read them without subscribing to the stream. It holds
// current state only, never history.
package statscache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/pkg/logger"
)

// Source is anything that can list current statistics (stats.Aggregator).
type Source interface {
	Snapshot() []model.MarketStats
}

// Leader gates writes when several replicas share one redis.
type Leader interface {
	TryAcquireMaster(ctx context.Context, key string, ttl time.Duration) bool
}

type Config struct {
	Prefix   string
	TTL      time.Duration
	Interval time.Duration
}

type Writer struct {
	src    Source
	store  Store
	cfg    Config
	leader Leader
}

type Option func(*Writer)

// WithLeader makes only the lease holder write.
func WithLeader(l Leader) Option {
	return func(w *Writer) { w.leader = l }
}

func NewWriter(src Source, store Store, cfg Config, opts ...Option) *Writer {
	if cfg.Prefix == "" {
		cfg.Prefix = "md"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	w := &Writer{src: src, store: store, cfg: cfg}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func Key(prefix, symbol string) string { return prefix + ":stats:" + symbol }

func (w *Writer) leaderKey() string { return w.cfg.Prefix + ":stats:leader" }

// Flush writes every symbol once and returns how many were written.
func (w *Writer) Flush(ctx context.Context) (int, error) {
	if w.leader != nil && !w.leader.TryAcquireMaster(ctx, w.leaderKey(), 3*w.cfg.Interval) {
		return 0, nil
	}
	n := 0
	for _, s := range w.src.Snapshot() {
		fields, err := toFields(s)
		if err != nil {
			return n, err
		}
		if err := w.store.Put(ctx, Key(w.cfg.Prefix, s.Symbol), fields, w.cfg.TTL); err != nil {
			mdmetrics.StatsCacheFlushTotal.WithLabelValues("error").Inc()
			return n, fmt.Errorf("statscache: put %s: %w", s.Symbol, err)
		}
		n++
	}
	mdmetrics.StatsCacheFlushTotal.WithLabelValues("ok").Inc()
	return n, nil
}

// Run flushes every Interval until ctx is done. Errors are logged and the
// next tick tries again.
func (w *Writer) Run(ctx context.Context) error {
	t := time.NewTicker(w.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Flush(ctx); err != nil && ctx.Err() == nil {
				logger.Warn(ctx, "stats cache flush failed", zap.Error(err))
			}
		}
	}
}

// Read loads one symbol's cached stats.
func Read(ctx context.Context, store Store, prefix, symbol string) (codec.StatsView, error) {
	m, err := store.Get(ctx, Key(prefix, symbol))
	if err != nil {
		return codec.StatsView{}, err
	}
	var v codec.StatsView
	if err := json.Unmarshal([]byte(m["json"]), &v); err != nil {
		return codec.StatsView{}, fmt.Errorf("statscache: %s: %w", symbol, err)
	}
	return v, nil
}

// toFields flattens stats for redis-cli readability and keeps the full JSON
// view under "json". high/low are empty before the first trade.
func toFields(s model.MarketStats) (map[string]interface{}, error) {
	view := codec.NewStatsView(s)
	b, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	f := map[string]interface{}{
		"symbol":       s.Symbol,
		"trade_count":  strconv.FormatUint(s.TradeCount, 10),
		"total_volume": formatFloat(s.TotalVolume),
		"vwap":         formatFloat(s.VWAP),
		"last_price":   formatFloat(s.LastPrice),
		"high":         "",
		"low":          "",
		"last_update":  "",
		"json":         string(b),
	}
	if view.High != nil {
		f["high"] = formatFloat(*view.High)
	}
	if view.Low != nil {
		f["low"] = formatFloat(*view.Low)
	}
	if s.LastUpdate != nil {
		f["last_update"] = s.LastUpdate.UTC().Format(time.RFC3339Nano)
	}
	return f, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
