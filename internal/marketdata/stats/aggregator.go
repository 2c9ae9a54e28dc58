package stats

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
	"mdstream.com/internal/marketdata/distributor"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/pkg/logger"
)

// Aggregator keeps running statistics per symbol. Writers hold the lock for
// one O(1) update and readers get copies, so a read never sees half a trade.
type Aggregator struct {
	mu      sync.RWMutex
	symbols map[string]*model.MarketStats

	// Optional hook run after each trade is folded in, outside the lock.
	onUpdate func(model.MarketStats)
}

type Option func(*Aggregator)

// WithOnUpdate registers fn to receive a copy of a symbol's stats after every
// trade. fn runs on the updating goroutine and must not block.
func WithOnUpdate(fn func(model.MarketStats)) Option {
	return func(a *Aggregator) { a.onUpdate = fn }
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{symbols: make(map[string]*model.MarketStats)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds msg in. Only trades change statistics.
func (a *Aggregator) Apply(msg model.Message) {
	if t, ok := msg.AsTrade(); ok {
		a.UpdateWithTrade(t)
	}
}

func (a *Aggregator) UpdateWithTrade(t model.Trade) {
	a.mu.Lock()
	s, ok := a.symbols[t.Symbol]
	if !ok {
		ns := model.NewMarketStats(t.Symbol)
		s = &ns
		a.symbols[t.Symbol] = s
		mdmetrics.StatsSymbols.Set(float64(len(a.symbols)))
	}
	s.ApplyTrade(t)
	out := s.Clone()
	a.mu.Unlock()

	if a.onUpdate != nil {
		a.onUpdate(out)
	}
}

// Get returns a copy of symbol's stats. A symbol that never traded yields an
// empty record with HasTrades() == false.
func (a *Aggregator) Get(symbol string) model.MarketStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.symbols[symbol]; ok {
		return s.Clone()
	}
	return model.NewMarketStats(symbol)
}

// Lookup is Get that also reports whether the symbol has traded.
func (a *Aggregator) Lookup(symbol string) (model.MarketStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.symbols[symbol]; ok {
		return s.Clone(), true
	}
	return model.NewMarketStats(symbol), false
}

// Snapshot copies every symbol's stats, sorted by symbol.
func (a *Aggregator) Snapshot() []model.MarketStats {
	a.mu.RLock()
	out := make([]model.MarketStats, 0, len(a.symbols))
	for _, s := range a.symbols {
		out = append(out, s.Clone())
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (a *Aggregator) Symbols() []string {
	a.mu.RLock()
	out := make([]string, 0, len(a.symbols))
	for sym := range a.symbols {
		out = append(out, sym)
	}
	a.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.symbols)
}

// Run applies every message from sub until ctx is done or the stream ends.
// A lag is logged and counted; the aggregate then reflects only the trades
// that were delivered.
func (a *Aggregator) Run(ctx context.Context, sub *distributor.Subscription) error {
	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			var lag *distributor.LaggedError
			switch {
			case errors.As(err, &lag):
				mdmetrics.LaggedTotal.WithLabelValues("stats").Inc()
				logger.Warn(ctx, "stats consumer lagged", zap.Uint64("missed", lag.Missed))
				continue
			case errors.Is(err, distributor.ErrClosed):
				return nil
			default:
				return err
			}
		}
		a.Apply(msg)
	}
}
