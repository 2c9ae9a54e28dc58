package model

import "time"

type PriceLevel struct {
	Price      float64
	Size       float64
	OrderCount uint32
}

// OrderBookSnapshot is a full depth picture for one symbol.
// Bids[0] is the best bid and Asks[0] the best ask; the producer owns the sort
// order and nothing downstream re-sorts.
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

func (b OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

func (b OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

func (b OrderBookSnapshot) Spread() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

func (b OrderBookSnapshot) MidPrice() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

func (b OrderBookSnapshot) TotalBidVolume() float64 {
	return sumSize(b.Bids)
}

func (b OrderBookSnapshot) TotalAskVolume() float64 {
	return sumSize(b.Asks)
}

// Depth returns the number of bid and ask levels.
func (b OrderBookSnapshot) Depth() (bids, asks int) {
	return len(b.Bids), len(b.Asks)
}

func sumSize(levels []PriceLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Size
	}
	return total
}
