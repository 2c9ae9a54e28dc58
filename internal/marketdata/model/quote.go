package model

import "time"

// Quote is the top of book (BBO).
//
// AskPrice >= BidPrice holds for a healthy book but is not enforced here:
// upstream data can be crossed and consumers are expected to tolerate it.
type Quote struct {
	Symbol    string
	BidPrice  float64
	BidSize   float64
	AskPrice  float64
	AskSize   float64
	Timestamp time.Time
}

func (q Quote) Spread() float64 {
	return q.AskPrice - q.BidPrice
}

func (q Quote) MidPrice() float64 {
	return (q.BidPrice + q.AskPrice) / 2
}

// Crossed reports bid > ask.
func (q Quote) Crossed() bool {
	return q.BidPrice > q.AskPrice
}
