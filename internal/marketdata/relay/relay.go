package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/distributor"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/pkg/logger"
	"mdstream.com/pkg/ratelimit"
)

const breakerName = "relay"

// Relay republishes the session stream to a Broker under
// <prefix>.<kind>.<symbol>, for example "md.trade.BTCUSD". Publishing goes
// through a circuit breaker so a dead broker costs one rejected call per
// message instead of a timeout.
type Relay struct {
	broker   Broker
	prefix   string
	breakers *ratelimit.Manager
	errLog   *rate.Limiter
}

type Config struct {
	Prefix       string
	TripFailures uint32
	OpenTimeout  time.Duration
}

func New(b Broker, cfg Config) *Relay {
	if cfg.Prefix == "" {
		cfg.Prefix = "md"
	}
	return &Relay{
		broker: b,
		prefix: cfg.Prefix,
		breakers: ratelimit.NewManager(ratelimit.Rule{
			TripConsecutiveFailures: cfg.TripFailures,
			Timeout:                 cfg.OpenTimeout,
			MaxRequests:             1,
		}, nil),
		errLog: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// Subject is where msg is published.
func (r *Relay) Subject(msg model.Message) string {
	kind := strings.ToLower(msg.Kind.String())
	if msg.IsHeartbeat() {
		return r.prefix + "." + kind
	}
	return r.prefix + "." + kind + "." + subjectToken(msg.Symbol())
}

// Forward encodes and publishes one message.
func (r *Relay) Forward(ctx context.Context, msg model.Message) error {
	payload, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	subject := r.Subject(msg)
	err = r.breakers.Do(breakerName, func() error {
		return r.broker.Publish(ctx, subject, payload)
	})
	switch {
	case err == nil:
		mdmetrics.RelayTotal.WithLabelValues("ok").Inc()
	case ratelimit.Rejected(err):
		mdmetrics.RelayTotal.WithLabelValues("rejected").Inc()
	default:
		mdmetrics.RelayTotal.WithLabelValues("error").Inc()
	}
	return err
}

// Run forwards every message from sub until ctx is done or the stream ends.
// Broker failures are counted and logged (sampled) but never stop the relay.
func (r *Relay) Run(ctx context.Context, sub *distributor.Subscription) error {
	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			var lag *distributor.LaggedError
			switch {
			case errors.As(err, &lag):
				mdmetrics.LaggedTotal.WithLabelValues("relay").Inc()
				logger.Warn(ctx, "relay lagged", zap.Uint64("missed", lag.Missed))
				continue
			case errors.Is(err, distributor.ErrClosed):
				return nil
			default:
				return err
			}
		}
		if err := r.Forward(ctx, msg); err != nil && r.errLog.Allow() {
			logger.Warn(ctx, "relay publish failed",
				zap.String("subject", r.Subject(msg)),
				zap.Error(err),
			)
		}
	}
}

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
