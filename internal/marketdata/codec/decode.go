package codec

import (
	"fmt"

	"github.com/segmentio/encoding/json"
	"mdstream.com/internal/marketdata/model"
)

// Wire discriminators. They match model.Kind.String().
const (
	TypeTrade     = "Trade"
	TypeQuote     = "Quote"
	TypeOrderBook = "OrderBook"
	TypeHeartbeat = "Heartbeat"
	TypeSubscribe = "subscribe"
)

type decodeFunc func(f fields) (model.Message, error)

// One decoder per variant. Anything not listed here is ErrUnknownType.
var decoders = map[string]decodeFunc{
	TypeTrade:     decodeTrade,
	TypeQuote:     decodeQuote,
	TypeOrderBook: decodeOrderBook,
	TypeHeartbeat: decodeHeartbeat,
}

// Decode turns one upstream frame into exactly one Message.
// Every failure is a *DecodeError; Decode never panics on bad input.
func Decode(payload []byte) (model.Message, error) {
	var f fields
	if err := json.Unmarshal(payload, &f); err != nil {
		return model.Message{}, newDecodeError(payload, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if f == nil {
		return model.Message{}, newDecodeError(payload, fmt.Errorf("%w: not an object", ErrMalformed))
	}

	raw, ok := f["type"]
	if !ok {
		return model.Message{}, newDecodeError(payload, ErrMissingType)
	}
	var typ string
	if err := json.Unmarshal(raw, &typ); err != nil {
		return model.Message{}, newDecodeError(payload, fmt.Errorf("%w: type is not a string", ErrMissingType))
	}

	decode, ok := decoders[typ]
	if !ok {
		return model.Message{}, newDecodeError(payload, fmt.Errorf("%w: %q", ErrUnknownType, typ))
	}
	msg, err := decode(f)
	if err != nil {
		return model.Message{}, newDecodeError(payload, fmt.Errorf("%s: %w", typ, err))
	}
	return msg, nil
}

func decodeTrade(f fields) (model.Message, error) {
	var (
		t   model.Trade
		err error
	)
	if t.Symbol, err = f.str("symbol"); err != nil {
		return model.Message{}, err
	}
	if t.Price, err = f.num("price"); err != nil {
		return model.Message{}, err
	}
	if t.Quantity, err = f.num("quantity"); err != nil {
		return model.Message{}, err
	}
	if t.Side, err = f.side("side"); err != nil {
		return model.Message{}, err
	}
	if t.Timestamp, err = f.timestamp("timestamp"); err != nil {
		return model.Message{}, err
	}
	if t.TradeID, err = f.str("trade_id"); err != nil {
		return model.Message{}, err
	}
	return model.NewTrade(t), nil
}

func decodeQuote(f fields) (model.Message, error) {
	var (
		q   model.Quote
		err error
	)
	if q.Symbol, err = f.str("symbol"); err != nil {
		return model.Message{}, err
	}
	if q.BidPrice, err = f.num("bid_price"); err != nil {
		return model.Message{}, err
	}
	if q.BidSize, err = f.num("bid_size"); err != nil {
		return model.Message{}, err
	}
	if q.AskPrice, err = f.num("ask_price"); err != nil {
		return model.Message{}, err
	}
	if q.AskSize, err = f.num("ask_size"); err != nil {
		return model.Message{}, err
	}
	if q.Timestamp, err = f.timestamp("timestamp"); err != nil {
		return model.Message{}, err
	}
	return model.NewQuote(q), nil
}

func decodeOrderBook(f fields) (model.Message, error) {
	var (
		b   model.OrderBookSnapshot
		err error
	)
	if b.Symbol, err = f.str("symbol"); err != nil {
		return model.Message{}, err
	}
	if b.Bids, err = f.levels("bids"); err != nil {
		return model.Message{}, err
	}
	if b.Asks, err = f.levels("asks"); err != nil {
		return model.Message{}, err
	}
	if b.Timestamp, err = f.timestamp("timestamp"); err != nil {
		return model.Message{}, err
	}
	return model.NewOrderBook(b), nil
}

// Heartbeat has no payload; extra keys are ignored.
func decodeHeartbeat(fields) (model.Message, error) {
	return model.NewHeartbeat(), nil
}
