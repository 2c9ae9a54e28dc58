package model

import "time"

type Side uint8

const (
	SideUnknown Side = iota
	SideBuy          // aggressor bought
	SideSell         // aggressor sold
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// ParseSide accepts the wire spelling ("Buy"/"Sell") and the upper/lower case
// variants most venues use.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "Buy", "BUY", "buy", "b", "B":
		return SideBuy, true
	case "Sell", "SELL", "sell", "s", "S":
		return SideSell, true
	default:
		return SideUnknown, false
	}
}

// Trade is a single execution print. Passed by value; never mutated after decode.
type Trade struct {
	Symbol    string
	Price     float64
	Quantity  float64
	Side      Side
	Timestamp time.Time
	TradeID   string
}

// Notional is price * quantity.
func (t Trade) Notional() float64 {
	return t.Price * t.Quantity
}
