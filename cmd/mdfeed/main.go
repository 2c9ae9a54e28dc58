// Command mdfeed serves a simulated market data feed on /feed.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"mdstream.com/internal/marketdata/conf"
	"mdstream.com/internal/marketdata/feedsim"
	"mdstream.com/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := conf.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.InitWithFile("mdfeed", cfg.Log.Level, "-")
	defer logger.Sync()

	fs := &feedsim.Server{
		Symbols:  cfg.Feed.Symbols,
		Seed:     cfg.Feed.Seed,
		Interval: cfg.Feed.Interval,
	}
	mux := http.NewServeMux()
	mux.Handle("/feed", fs)
	srv := &http.Server{Addr: cfg.Feed.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info(ctx, "feed listening", zap.String("addr", srv.Addr), zap.Strings("symbols", fs.Symbols))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "feed serve", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "feed shutdown", zap.Error(err))
	}
	logger.Info(shutdownCtx, "feed exit", zap.Int("connections", fs.Connections()))
}
