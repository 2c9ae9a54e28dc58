package ws

import (
	"strings"

	"github.com/segmentio/encoding/json"
	"mdstream.com/internal/marketdata/model"
)

// ClientMsg is what a downstream client sends.
type ClientMsg struct {
	Type   string   `json:"type"`   // "sub" | "unsub"
	Topics []string `json:"topics"` // e.g. trade:BTCUSD, stats:ETHUSD
}

// ServerMsg wraps every payload pushed to clients. Data is the message in its
// wire form (the same JSON the upstream sends) or a stats view.
type ServerMsg struct {
	Type  string          `json:"type"` // trade | quote | book | stats
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

const (
	ChanTrade = "trade"
	ChanQuote = "quote"
	ChanBook  = "book"
	ChanStats = "stats"
)

func Topic(channel, symbol string) string {
	return channel + ":" + normalizeSymbol(symbol)
}

// TopicFor maps a message to its topic. Heartbeats have none.
func TopicFor(m model.Message) (channel, topic string, ok bool) {
	switch m.Kind {
	case model.KindTrade:
		channel = ChanTrade
	case model.KindQuote:
		channel = ChanQuote
	case model.KindOrderBook:
		channel = ChanBook
	default:
		return "", "", false
	}
	return channel, Topic(channel, m.Symbol()), true
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// normalizeTopics upper-cases the symbol part so "trade:btcusd" works and
// drops topics on unknown channels.
func normalizeTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		ch, sym, ok := strings.Cut(t, ":")
		sym = normalizeSymbol(sym)
		if !ok || sym == "" {
			continue
		}
		switch ch = strings.ToLower(strings.TrimSpace(ch)); ch {
		case ChanTrade, ChanQuote, ChanBook, ChanStats:
			out = append(out, ch+":"+sym)
		}
	}
	return out
}
