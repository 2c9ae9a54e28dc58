package codec

import (
	"time"

	"github.com/segmentio/encoding/json"
	"mdstream.com/internal/marketdata/model"
)

// StatsView is the outward JSON form of model.MarketStats.
// High/Low are null until the symbol has traded.
type StatsView struct {
	Symbol      string     `json:"symbol"`
	TradeCount  uint64     `json:"trade_count"`
	TotalVolume float64    `json:"total_volume"`
	VWAP        float64    `json:"vwap"`
	High        *float64   `json:"high"`
	Low         *float64   `json:"low"`
	LastPrice   float64    `json:"last_price"`
	LastUpdate  *time.Time `json:"last_update"`
}

func NewStatsView(s model.MarketStats) StatsView {
	v := StatsView{
		Symbol:      s.Symbol,
		TradeCount:  s.TradeCount,
		TotalVolume: s.TotalVolume,
		VWAP:        s.VWAP,
		LastPrice:   s.LastPrice,
		LastUpdate:  s.LastUpdate,
	}
	if hi, ok := s.High(); ok {
		v.High = &hi
	}
	if lo, ok := s.Low(); ok {
		v.Low = &lo
	}
	return v
}

func EncodeStats(s model.MarketStats) ([]byte, error) {
	return json.Marshal(NewStatsView(s))
}
