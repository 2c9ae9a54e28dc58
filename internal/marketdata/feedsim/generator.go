package feedsim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"mdstream.com/internal/marketdata/model"
)

// Channel names a client may list in its subscribe request.
const (
	ChannelTrades    = "trades"
	ChannelQuotes    = "quotes"
	ChannelOrderBook = "orderbook"
	ChannelHeartbeat = "heartbeat"
)

var channelKind = map[string]model.Kind{
	ChannelTrades:    model.KindTrade,
	ChannelQuotes:    model.KindQuote,
	ChannelOrderBook: model.KindOrderBook,
	ChannelHeartbeat: model.KindHeartbeat,
}

var startPrice = map[string]float64{
	"BTCUSD": 50000,
	"ETHUSD": 3000,
	"SOLUSD": 150,
}

// Generator produces a plausible random walk per symbol. It is not safe for
// concurrent use; each connection gets its own.
type Generator struct {
	rng     *rand.Rand
	symbols []string
	mid     map[string]float64
	seq     uint64
	now     func() time.Time
}

func NewGenerator(symbols []string, seed int64) *Generator {
	if len(symbols) == 0 {
		symbols = []string{"BTCUSD"}
	}
	g := &Generator{
		rng:     rand.New(rand.NewSource(seed)),
		symbols: symbols,
		mid:     make(map[string]float64, len(symbols)),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, s := range symbols {
		p, ok := startPrice[s]
		if !ok {
			p = 100
		}
		g.mid[s] = p
	}
	return g
}

// Next returns the next message; roughly half are trades, one in twenty is a
// heartbeat, the rest quotes and books.
func (g *Generator) Next() model.Message {
	g.seq++
	sym := g.symbols[g.rng.Intn(len(g.symbols))]
	mid := g.step(sym)
	ts := g.now()

	switch r := g.rng.Intn(20); {
	case r == 0:
		return model.NewHeartbeat()
	case r < 11:
		side := model.SideBuy
		if g.rng.Intn(2) == 0 {
			side = model.SideSell
		}
		return model.NewTrade(model.Trade{
			Symbol:    sym,
			Price:     round(mid, 2),
			Quantity:  round(0.001+g.rng.Float64()*2, 4),
			Side:      side,
			Timestamp: ts,
			TradeID:   fmt.Sprintf("%s-%d", sym, g.seq),
		})
	case r < 16:
		half := mid * 0.0001
		return model.NewQuote(model.Quote{
			Symbol:    sym,
			BidPrice:  round(mid-half, 2),
			BidSize:   round(g.rng.Float64()*5, 4),
			AskPrice:  round(mid+half, 2),
			AskSize:   round(g.rng.Float64()*5, 4),
			Timestamp: ts,
		})
	default:
		return model.NewOrderBook(g.book(sym, mid, ts))
	}
}

// NextFor is Next restricted to the kinds the channels name. No channels means
// every kind.
func (g *Generator) NextFor(channels []string) model.Message {
	if len(channels) == 0 {
		return g.Next()
	}
	allowed := make(map[model.Kind]bool, len(channels))
	for _, c := range channels {
		if k, ok := channelKind[c]; ok {
			allowed[k] = true
		}
	}
	if len(allowed) == 0 {
		return g.Next()
	}
	for {
		if m := g.Next(); allowed[m.Kind] {
			return m
		}
	}
}

func (g *Generator) step(sym string) float64 {
	mid := g.mid[sym] * (1 + (g.rng.Float64()-0.5)*0.002)
	g.mid[sym] = mid
	return mid
}

func (g *Generator) book(sym string, mid float64, ts time.Time) model.OrderBookSnapshot {
	const depth = 5
	tick := math.Max(mid*0.0001, 0.01)
	b := model.OrderBookSnapshot{
		Symbol:    sym,
		Bids:      make([]model.PriceLevel, depth),
		Asks:      make([]model.PriceLevel, depth),
		Timestamp: ts,
	}
	for i := 0; i < depth; i++ {
		off := tick * float64(i+1)
		b.Bids[i] = model.PriceLevel{Price: round(mid-off, 2), Size: round(g.rng.Float64()*10, 4), OrderCount: uint32(1 + g.rng.Intn(9))}
		b.Asks[i] = model.PriceLevel{Price: round(mid+off, 2), Size: round(g.rng.Float64()*10, 4), OrderCount: uint32(1 + g.rng.Intn(9))}
	}
	return b
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
