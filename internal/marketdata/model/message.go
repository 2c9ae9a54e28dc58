package model

import "time"

// Kind is the discriminator of Message. String() is the wire tag.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTrade
	KindQuote
	KindOrderBook
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "Trade"
	case KindQuote:
		return "Quote"
	case KindOrderBook:
		return "OrderBook"
	case KindHeartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}

// Message is the closed union of everything the upstream feed can carry.
// Exactly one payload pointer matches Kind; Heartbeat has none.
//
// Messages are shared between all subscribers of a distributor, so payloads
// must be treated as read-only.
type Message struct {
	Kind  Kind
	Trade *Trade
	Quote *Quote
	Book  *OrderBookSnapshot
}

func NewTrade(t Trade) Message {
	return Message{Kind: KindTrade, Trade: &t}
}

func NewQuote(q Quote) Message {
	return Message{Kind: KindQuote, Quote: &q}
}

func NewOrderBook(b OrderBookSnapshot) Message {
	return Message{Kind: KindOrderBook, Book: &b}
}

func NewHeartbeat() Message {
	return Message{Kind: KindHeartbeat}
}

// Symbol returns the instrument of the payload, "" for heartbeats.
func (m Message) Symbol() string {
	switch m.Kind {
	case KindTrade:
		if m.Trade != nil {
			return m.Trade.Symbol
		}
	case KindQuote:
		if m.Quote != nil {
			return m.Quote.Symbol
		}
	case KindOrderBook:
		if m.Book != nil {
			return m.Book.Symbol
		}
	}
	return ""
}

// Timestamp returns the event time of the payload, zero for heartbeats.
func (m Message) Timestamp() time.Time {
	switch m.Kind {
	case KindTrade:
		if m.Trade != nil {
			return m.Trade.Timestamp
		}
	case KindQuote:
		if m.Quote != nil {
			return m.Quote.Timestamp
		}
	case KindOrderBook:
		if m.Book != nil {
			return m.Book.Timestamp
		}
	}
	return time.Time{}
}

func (m Message) AsTrade() (Trade, bool) {
	if m.Kind != KindTrade || m.Trade == nil {
		return Trade{}, false
	}
	return *m.Trade, true
}

func (m Message) AsQuote() (Quote, bool) {
	if m.Kind != KindQuote || m.Quote == nil {
		return Quote{}, false
	}
	return *m.Quote, true
}

func (m Message) AsOrderBook() (OrderBookSnapshot, bool) {
	if m.Kind != KindOrderBook || m.Book == nil {
		return OrderBookSnapshot{}, false
	}
	return *m.Book, true
}

func (m Message) IsHeartbeat() bool {
	return m.Kind == KindHeartbeat
}
