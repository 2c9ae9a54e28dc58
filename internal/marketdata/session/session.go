package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/distributor"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/internal/marketdata/stats"
	"mdstream.com/internal/marketdata/transport"
	"mdstream.com/pkg/logger"
	"mdstream.com/pkg/safe"
)

const tracerName = "mdstream.com/internal/marketdata/session"

type Config struct {
	URL      string
	Channels []string
	// Ring size of every subscription, the internal stats one included.
	BufferSize int
	// Decode failures logged per second; the rest are only counted.
	DecodeLogRate  float64
	DecodeLogBurst int
}

type Option func(*Session)

func WithDialer(d transport.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithStatsOptions configures the aggregator the session creates.
func WithStatsOptions(opts ...stats.Option) Option {
	return func(s *Session) { s.statsOpts = append(s.statsOpts, opts...) }
}

// Session owns one upstream connection at a time, decodes every frame and
// publishes it to the distributor. An internal subscription feeds the
// statistics aggregator. No reconnect: once the connection ends the session
// is Idle and may be started again.
type Session struct {
	cfg       Config
	dialer    transport.Dialer
	statsOpts []stats.Option

	dist        *distributor.Distributor
	agg         *stats.Aggregator
	statsCancel context.CancelFunc
	statsDone   chan struct{}

	decodeLog    *rate.Limiter
	decodeErrors atomic.Uint64
	suppressed   atomic.Uint64

	state atomic.Int32

	mu     sync.Mutex // guards the per-run fields below
	conn   transport.Conn
	stopCh chan struct{}
	done   chan struct{}
	runErr error

	closeOnce sync.Once
}

func New(cfg Config, opts ...Option) *Session {
	if cfg.DecodeLogRate <= 0 {
		cfg.DecodeLogRate = 1
	}
	if cfg.DecodeLogBurst <= 0 {
		cfg.DecodeLogBurst = 5
	}
	s := &Session{
		cfg:       cfg,
		dialer:    &transport.GorillaDialer{ReadLimit: 1 << 20},
		decodeLog: rate.NewLimiter(rate.Limit(cfg.DecodeLogRate), cfg.DecodeLogBurst),
		done:      make(chan struct{}),
	}
	close(s.done)
	for _, opt := range opts {
		opt(s)
	}

	s.dist = distributor.New(cfg.BufferSize, distributor.WithName("session"))
	s.agg = stats.NewAggregator(s.statsOpts...)

	var ctx context.Context
	ctx, s.statsCancel = context.WithCancel(context.Background())
	s.statsDone = make(chan struct{})
	statsSub := s.dist.Subscribe()
	safe.GoCtx(ctx, func(ctx context.Context) {
		defer close(s.statsDone)
		if err := s.agg.Run(ctx, statsSub); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "stats consumer stopped", zap.Error(err))
		}
	})

	mdmetrics.SessionState.Set(float64(StateIdle))
	return s
}

// Start connects, sends the subscribe request and launches the read loop.
// ctx bounds the connect only; the loop runs until Stop or until the upstream
// goes away. Calling Start while not Idle logs a warning and does nothing.
func (s *Session) Start(ctx context.Context) error {
	if !s.transition(StateIdle, StateStarting) {
		logger.Warn(ctx, "session start ignored", zap.String("state", s.State().String()))
		return nil
	}

	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "session.start", trace.WithAttributes(
		attribute.String("upstream.url", s.cfg.URL),
		attribute.StringSlice("upstream.channels", s.cfg.Channels),
	))
	defer span.End()

	conn, err := s.connect(spanCtx)
	if err != nil {
		mdmetrics.ConnectTotal.WithLabelValues("error").Inc()
		s.setState(StateIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	mdmetrics.ConnectTotal.WithLabelValues("ok").Inc()

	stop := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.stopCh = stop
	s.done = done
	s.runErr = nil
	s.mu.Unlock()

	if !s.transition(StateStarting, StateRunning) {
		// Stop arrived while connecting.
		s.finish(conn, done, nil)
		span.SetStatus(codes.Error, ErrStopped.Error())
		return ErrStopped
	}

	logger.Info(ctx, "session running",
		zap.String("url", s.cfg.URL),
		zap.Strings("channels", s.cfg.Channels),
	)
	safe.GoCtx(context.WithoutCancel(ctx), func(ctx context.Context) {
		s.readLoop(ctx, conn, stop, done)
	})
	return nil
}

// connect dials and sends the subscribe request, each step in its own span.
func (s *Session) connect(ctx context.Context) (transport.Conn, error) {
	tracer := otel.Tracer(tracerName)

	dialCtx, dialSpan := tracer.Start(ctx, "session.dial")
	conn, err := s.dialer.Dial(dialCtx, s.cfg.URL)
	if err != nil {
		dialSpan.SetStatus(codes.Error, err.Error())
	}
	dialSpan.End()
	if err != nil {
		return nil, &ConnectionError{Op: "dial", URL: s.cfg.URL, Err: err}
	}

	subCtx, subSpan := tracer.Start(ctx, "session.subscribe")
	defer subSpan.End()
	req, err := codec.EncodeSubscribe(s.cfg.Channels)
	if err == nil {
		err = conn.Write(subCtx, transport.MessageText, req)
	}
	if err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Op: "subscribe", URL: s.cfg.URL, Err: err}
	}
	return conn, nil
}

func (s *Session) readLoop(ctx context.Context, conn transport.Conn, stop <-chan struct{}, done chan struct{}) {
	var runErr error
	defer func() { s.finish(conn, done, runErr) }()

	for {
		select {
		case <-stop:
			return
		default:
		}

		typ, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-stop:
				logger.Info(ctx, "session stopped", zap.String("url", s.cfg.URL))
			default:
				runErr = err
				if errors.Is(err, transport.ErrClosed) {
					logger.Info(ctx, "upstream closed", zap.String("url", s.cfg.URL), zap.Error(err))
				} else {
					logger.Warn(ctx, "upstream read failed", zap.String("url", s.cfg.URL), zap.Error(err))
				}
			}
			return
		}
		mdmetrics.FramesTotal.WithLabelValues(typ.String()).Inc()

		msg, err := codec.Decode(data)
		if err != nil {
			s.onDecodeError(ctx, err)
			continue
		}
		mdmetrics.DecodedTotal.WithLabelValues(msg.Kind.String()).Inc()
		s.dist.Publish(msg)
	}
}

// finish tears down one run. Idle is set before done closes so a caller woken
// by Done already sees IsRunning() == false.
func (s *Session) finish(conn transport.Conn, done chan struct{}, runErr error) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.stopCh = nil
	}
	s.runErr = runErr
	s.mu.Unlock()
	s.setState(StateIdle)
	close(done)
}

func (s *Session) onDecodeError(ctx context.Context, err error) {
	s.decodeErrors.Add(1)
	reason := "other"
	var de *codec.DecodeError
	if errors.As(err, &de) {
		reason = de.Label()
	}
	mdmetrics.OnDecodeError(reason)

	if !s.decodeLog.Allow() {
		s.suppressed.Add(1)
		return
	}
	logger.Warn(ctx, "dropping undecodable frame",
		zap.String("reason", reason),
		zap.Uint64("suppressed", s.suppressed.Swap(0)),
		zap.Error(err),
	)
}

// Stop ends the current run. It is idempotent, safe from any state and from
// any goroutine, and returns without waiting; use Done to wait.
func (s *Session) Stop() {
	for {
		st := s.State()
		if st == StateIdle || st == StateStopping {
			return
		}
		if s.transition(st, StateStopping) {
			break
		}
	}

	s.mu.Lock()
	stop, conn := s.stopCh, s.conn
	s.stopCh = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		// Unblocks a pending Read; run off-goroutine so Stop never waits on I/O.
		safe.Go(func() { _ = conn.Close() })
	}
}

// Close stops the session for good: subscribers drain and then see
// distributor.ErrClosed, and the stats consumer exits.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Stop()
		s.dist.Close()
		<-s.statsDone
		s.statsCancel()
	})
}

func (s *Session) IsRunning() bool { return s.State() == StateRunning }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed when the current (or last) run has fully ended.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err is why the last run ended: nil after Stop, the read error otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

func (s *Session) URL() string { return s.cfg.URL }

func (s *Session) Channels() []string { return append([]string(nil), s.cfg.Channels...) }

// Subscribe returns a new subscription to messages published from now on.
func (s *Session) Subscribe() *distributor.Subscription { return s.dist.Subscribe() }

func (s *Session) Unsubscribe(sub *distributor.Subscription) { s.dist.Unsubscribe(sub) }

// Statistics returns a copy of symbol's statistics; HasTrades() is false for a
// symbol that has not traded.
func (s *Session) Statistics(symbol string) model.MarketStats { return s.agg.Get(symbol) }

func (s *Session) AllStatistics() []model.MarketStats { return s.agg.Snapshot() }

func (s *Session) Distributor() *distributor.Distributor { return s.dist }

// SubscriberCount includes the internal stats consumer.
func (s *Session) SubscriberCount() int { return s.dist.SubscriberCount() }

func (s *Session) Aggregator() *stats.Aggregator { return s.agg }

// DecodeErrors counts frames dropped because they did not decode.
func (s *Session) DecodeErrors() uint64 { return s.decodeErrors.Load() }

func (s *Session) transition(from, to State) bool {
	if s.state.CompareAndSwap(int32(from), int32(to)) {
		mdmetrics.SessionState.Set(float64(to))
		return true
	}
	return false
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	mdmetrics.SessionState.Set(float64(st))
}
