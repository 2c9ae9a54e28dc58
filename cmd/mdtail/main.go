// Command mdtail connects to a feed, prints messages until it has seen the
// requested number of trades and then prints per-symbol statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mdstream.com/internal/marketdata/distributor"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/internal/marketdata/session"
	"mdstream.com/internal/marketdata/transport"
	"mdstream.com/pkg/logger"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:9100/feed", "feed websocket url")
	trades := flag.Int("trades", 10, "stop after this many trades")
	tr := flag.String("transport", transport.Gorilla, "gorilla or coder")
	verbose := flag.Bool("v", false, "log to stdout")
	flag.Parse()

	if *verbose {
		logger.InitWithFile("mdtail", "debug", "-")
		defer logger.Sync()
	}
	if err := run(*url, *tr, *trades); err != nil {
		fmt.Fprintln(os.Stderr, "mdtail:", err)
		os.Exit(1)
	}
}

func run(url, tr string, want int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer, err := transport.NewDialer(tr, transport.Options{HandshakeTimeout: 10 * time.Second})
	if err != nil {
		return err
	}
	s := session.New(session.Config{URL: url, Channels: []string{"trades", "quotes", "orderbook"}}, session.WithDialer(dialer))
	defer s.Close()
	sub := s.Subscribe()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = s.Start(connectCtx)
	cancel()
	if err != nil {
		return err
	}

	// Recv has no end-of-run signal, so tie it to the session's Done.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		select {
		case <-s.Done():
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	var seen uint64
	for seen < uint64(want) {
		msg, err := sub.Recv(runCtx)
		var lag *distributor.LaggedError
		switch {
		case errors.As(err, &lag):
			fmt.Printf("-- lagged, missed %d\n", lag.Missed)
			continue
		case err != nil && ctx.Err() == nil && runCtx.Err() != nil:
			fmt.Println("-- upstream closed:", s.Err())
			return printStats(os.Stdout, settledStats(s, seen, time.Second))
		case err != nil:
			return err
		}
		if msg.Kind == model.KindTrade {
			seen++
		}
		line, err := describe(msg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "-- skip:", err)
			continue
		}
		fmt.Println(line)
	}

	s.Stop()
	return printStats(os.Stdout, settledStats(s, seen, time.Second))
}
