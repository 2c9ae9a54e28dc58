package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"mdstream.com/internal/marketdata/api"
	"mdstream.com/internal/marketdata/conf"
	"mdstream.com/internal/marketdata/relay"
	"mdstream.com/internal/marketdata/session"
	"mdstream.com/internal/marketdata/stats"
	"mdstream.com/internal/marketdata/statscache"
	"mdstream.com/internal/marketdata/transport"
	"mdstream.com/internal/marketdata/ws"
	"mdstream.com/pkg/logger"
	"mdstream.com/pkg/xredis"
)

// App wires one session to its downstream consumers: the websocket gateway,
// the broker relay, the redis stats cache and the HTTP API.
type App struct {
	cfg *conf.Config

	Session *session.Session
	hub     *ws.Hub
	bridge  *ws.Bridge
	relay   *relay.Relay
	broker  relay.Broker
	writer  *statscache.Writer
	closers []func() error
}

// New builds every enabled component. Nothing connects to the upstream until
// Run.
func New(ctx context.Context, cfg *conf.Config) (*App, error) {
	a := &App{cfg: cfg}

	dialer, err := transport.NewDialer(cfg.Session.Transport, transport.Options{
		ReadLimit:        cfg.Session.ReadLimit,
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		PongWait:         cfg.Session.PongWait,
	})
	if err != nil {
		return nil, err
	}

	var statsOpts []stats.Option
	if cfg.Gateway.Enabled {
		a.hub = ws.NewHub()
		a.bridge = ws.NewBridge(a.hub)
		statsOpts = append(statsOpts, stats.WithOnUpdate(a.bridge.PublishStats))
	}

	a.Session = session.New(session.Config{
		URL:            cfg.Session.URL,
		Channels:       cfg.Session.Channels,
		BufferSize:     cfg.Session.BufferSize,
		DecodeLogRate:  cfg.Session.DecodeLogRate,
		DecodeLogBurst: cfg.Session.DecodeLogBurst,
	}, session.WithDialer(dialer), session.WithStatsOptions(statsOpts...))

	if cfg.Relay.Enabled {
		if err := a.initRelay(); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.StatsCache.Enabled {
		if err := a.initStatsCache(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) initRelay() error {
	rc := a.cfg.Relay
	switch rc.Broker {
	case "", "mem":
		a.broker = relay.NewMemBroker(256)
	case "nats":
		nb, err := relay.NewNatsBroker(rc.NatsURL)
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		a.broker = nb
	default:
		return fmt.Errorf("relay: unknown broker %q", rc.Broker)
	}
	a.closers = append(a.closers, a.broker.Close)
	a.relay = relay.New(a.broker, relay.Config{
		Prefix:       rc.SubjectPrefix,
		TripFailures: rc.TripFailures,
		OpenTimeout:  rc.BreakerTTL,
	})
	return nil
}

func (a *App) initStatsCache(ctx context.Context) error {
	sc := a.cfg.StatsCache
	rdb, err := xredis.New(ctx, &xredis.Config{Addr: sc.Addr, Password: sc.Password, DB: sc.DB})
	if err != nil {
		return fmt.Errorf("stats cache: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	lock := xredis.NewLeaderLock(rdb)
	logger.Info(ctx, "stats cache ready", zap.String("addr", sc.Addr), zap.String("node", lock.ID()))
	a.writer = statscache.NewWriter(a.Session.Aggregator(), statscache.NewRedisStore(rdb), statscache.Config{
		Prefix:   sc.Prefix,
		TTL:      sc.TTL,
		Interval: sc.Interval,
	}, statscache.WithLeader(lock))
	return nil
}

// Handler is the HTTP surface: /api, /ws and /metrics.
func (a *App) Handler(ctx context.Context) http.Handler {
	opt := api.Options{Market: a.Session, Prom: true}
	if a.hub != nil {
		srv := ws.NewServer(ctx, a.hub)
		gc := a.cfg.Gateway
		if gc.PingPeriod > 0 && gc.PongWait > gc.PingPeriod {
			srv.PingPeriod, srv.PongWait = gc.PingPeriod, gc.PongWait
		}
		if gc.WriteWait > 0 {
			srv.WriteWait = gc.WriteWait
		}
		opt.WS = srv.ServeWS
	}
	return api.NewRouter(ctx, a.cfg.HTTP, opt)
}

// Run starts the session and every consumer, then serves HTTP until ctx is
// done. A failed initial connect is logged, not fatal: POST
// /api/session/start retries it.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.bridge != nil {
		sub := a.Session.Subscribe()
		g.Go(func() error { return a.bridge.Run(gctx, sub) })
	}
	if a.relay != nil {
		sub := a.Session.Subscribe()
		g.Go(func() error { return a.relay.Run(gctx, sub) })
	}
	if a.writer != nil {
		g.Go(func() error { return a.writer.Run(gctx) })
	}

	srv := api.NewServer(a.cfg.HTTP.Addr, a.Handler(gctx))
	g.Go(func() error {
		logger.Info(gctx, "http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	connectCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
	if err := a.Session.Start(connectCtx); err != nil {
		logger.Warn(gctx, "initial connect failed", zap.Error(err))
	}
	cancel()

	g.Go(func() error {
		<-gctx.Done()
		a.Session.Stop()
		ttl := a.cfg.HTTP.ShutdownTTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ttl)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Close ends the session for good and releases broker and redis clients.
func (a *App) Close() {
	a.Session.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn(context.Background(), "close", zap.Error(err))
		}
	}
	a.closers = nil
}
