package model

import (
	"math"
	"time"
)

// MarketStats is the cumulative session history of one symbol.
//
// high/low start at -Inf/+Inf and stay private: before the first trade High and
// Low report ok=false instead of leaking the sentinels.
type MarketStats struct {
	Symbol      string
	TradeCount  uint64
	TotalVolume float64
	VWAP        float64
	LastPrice   float64
	LastUpdate  *time.Time

	high float64
	low  float64
}

func NewMarketStats(symbol string) MarketStats {
	return MarketStats{
		Symbol: symbol,
		high:   math.Inf(-1),
		low:    math.Inf(1),
	}
}

func (s MarketStats) HasTrades() bool {
	return s.TradeCount > 0
}

func (s MarketStats) High() (float64, bool) {
	if !s.HasTrades() {
		return 0, false
	}
	return s.high, true
}

func (s MarketStats) Low() (float64, bool) {
	if !s.HasTrades() {
		return 0, false
	}
	return s.low, true
}

// Notional is the traded value implied by VWAP and volume.
func (s MarketStats) Notional() float64 {
	return s.VWAP * s.TotalVolume
}

// ApplyTrade folds one trade into the running figures in O(1).
// VWAP uses the pre-update volume as the prior weight.
func (s *MarketStats) ApplyTrade(t Trade) {
	if s.TradeCount == 0 {
		s.high = math.Inf(-1)
		s.low = math.Inf(1)
	}
	prevVolume := s.TotalVolume

	s.TradeCount++
	s.TotalVolume = prevVolume + t.Quantity
	if s.TotalVolume != 0 {
		s.VWAP = (s.VWAP*prevVolume + t.Price*t.Quantity) / s.TotalVolume
	}

	if t.Price > s.high {
		s.high = t.Price
	}
	if t.Price < s.low {
		s.low = t.Price
	}

	s.LastPrice = t.Price
	ts := t.Timestamp
	s.LastUpdate = &ts
}

// Clone returns a copy that shares no memory with s.
func (s MarketStats) Clone() MarketStats {
	if s.LastUpdate != nil {
		ts := *s.LastUpdate
		s.LastUpdate = &ts
	}
	return s
}
