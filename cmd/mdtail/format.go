package main

import (
	"fmt"
	"io"
	"time"

	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/model"
)

// describe renders one message per line: books as a depth summary, the rest
// in wire form.
func describe(msg model.Message) (string, error) {
	if b, ok := msg.AsOrderBook(); ok {
		bids, asks := b.Depth()
		line := fmt.Sprintf("book %s bids=%d asks=%d", b.Symbol, bids, asks)
		if spread, ok := b.Spread(); ok {
			mid, _ := b.MidPrice()
			line += fmt.Sprintf(" mid=%g spread=%g", mid, spread)
		}
		return line, nil
	}
	out, err := codec.Encode(msg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type statsSource interface {
	AllStatistics() []model.MarketStats
}

// settledStats waits until the session's own aggregator has counted at least
// trades, since it consumes on a separate subscription.
func settledStats(src statsSource, trades uint64, wait time.Duration) []model.MarketStats {
	deadline := time.Now().Add(wait)
	for {
		all := src.AllStatistics()
		var n uint64
		for _, st := range all {
			n += st.TradeCount
		}
		if n >= trades || time.Now().After(deadline) {
			return all
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func printStats(w io.Writer, all []model.MarketStats) error {
	if _, err := fmt.Fprintln(w, "-- statistics"); err != nil {
		return err
	}
	for _, st := range all {
		b, err := codec.EncodeStats(st)
		if err != nil {
			return fmt.Errorf("stats %s: %w", st.Symbol, err)
		}
		if _, err := fmt.Fprintln(w, string(b)); err != nil {
			return err
		}
	}
	return nil
}
