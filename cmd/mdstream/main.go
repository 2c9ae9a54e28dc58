package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"mdstream.com/internal/marketdata/app"
	"mdstream.com/internal/marketdata/conf"
	"mdstream.com/pkg/logger"
	"mdstream.com/pkg/trace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := conf.LoadAndWatch(func(c *conf.Config) {
		logger.SetLevel(c.Log.Level)
		logger.Info(context.Background(), "config reloaded", zap.String("log_level", c.Log.Level))
	})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.InitWithFile(conf.Service, cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	if cfg.Trace.Enabled {
		shutdownTrace, err := trace.Init(ctx, conf.Service, trace.Config{
			Endpoint:    cfg.Trace.Endpoint,
			Insecure:    cfg.Trace.Insecure,
			SampleRatio: cfg.Trace.SampleRatio,
		})
		if err != nil {
			logger.Fatal(ctx, "init trace", zap.Error(err))
		}
		defer func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTrace(c); err != nil {
				logger.Warn(c, "trace shutdown", zap.Error(err))
			}
		}()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "init", zap.Error(err))
	}
	defer a.Close()

	logger.Info(ctx, "mdstream starting",
		zap.String("upstream", cfg.Session.URL),
		zap.Strings("channels", cfg.Session.Channels),
		zap.String("http", cfg.HTTP.Addr),
	)
	if err := a.Run(ctx); err != nil {
		logger.Error(ctx, "mdstream exited", zap.Error(err))
		return
	}
	logger.Info(ctx, "mdstream exit")
}
