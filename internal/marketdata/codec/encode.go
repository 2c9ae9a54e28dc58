package codec

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	"mdstream.com/internal/marketdata/model"
)

type tradeWire struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Side      string    `json:"side"`
	Timestamp time.Time `json:"timestamp"`
	TradeID   string    `json:"trade_id"`
}

type quoteWire struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	BidSize   float64   `json:"bid_size"`
	AskPrice  float64   `json:"ask_price"`
	AskSize   float64   `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

type levelWire struct {
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	NumOrders uint32  `json:"num_orders"`
}

type bookWire struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol"`
	Bids      []levelWire `json:"bids"`
	Asks      []levelWire `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

type heartbeatWire struct {
	Type string `json:"type"`
}

type subscribeWire struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// Encode writes m in the same tagged shape Decode reads.
func Encode(m model.Message) ([]byte, error) {
	switch m.Kind {
	case model.KindTrade:
		if m.Trade == nil {
			break
		}
		t := m.Trade
		return json.Marshal(tradeWire{
			Type:      TypeTrade,
			Symbol:    t.Symbol,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Side:      t.Side.String(),
			Timestamp: t.Timestamp,
			TradeID:   t.TradeID,
		})
	case model.KindQuote:
		if m.Quote == nil {
			break
		}
		q := m.Quote
		return json.Marshal(quoteWire{
			Type:      TypeQuote,
			Symbol:    q.Symbol,
			BidPrice:  q.BidPrice,
			BidSize:   q.BidSize,
			AskPrice:  q.AskPrice,
			AskSize:   q.AskSize,
			Timestamp: q.Timestamp,
		})
	case model.KindOrderBook:
		if m.Book == nil {
			break
		}
		b := m.Book
		return json.Marshal(bookWire{
			Type:      TypeOrderBook,
			Symbol:    b.Symbol,
			Bids:      toLevelWire(b.Bids),
			Asks:      toLevelWire(b.Asks),
			Timestamp: b.Timestamp,
		})
	case model.KindHeartbeat:
		return json.Marshal(heartbeatWire{Type: TypeHeartbeat})
	}
	return nil, fmt.Errorf("%w: kind=%s", ErrUnencodable, m.Kind)
}

// MustEncode is Encode for fixtures and simulators where m is known to be valid.
func MustEncode(m model.Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

// EncodeSubscribe builds the control message sent right after connect.
func EncodeSubscribe(channels []string) ([]byte, error) {
	if channels == nil {
		channels = []string{}
	}
	return json.Marshal(subscribeWire{Type: TypeSubscribe, Channels: channels})
}

// DecodeSubscribe parses a subscribe request; used by the simulated feed.
func DecodeSubscribe(payload []byte) ([]string, error) {
	var req subscribeWire
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, newDecodeError(payload, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if req.Type != TypeSubscribe {
		return nil, newDecodeError(payload, fmt.Errorf("%w: %q", ErrUnknownType, req.Type))
	}
	return req.Channels, nil
}

func toLevelWire(levels []model.PriceLevel) []levelWire {
	out := make([]levelWire, len(levels))
	for i, l := range levels {
		out[i] = levelWire{Price: l.Price, Size: l.Size, NumOrders: l.OrderCount}
	}
	return out
}
