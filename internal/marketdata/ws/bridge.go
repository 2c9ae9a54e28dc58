package ws

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"mdstream.com/internal/marketdata/codec"
	"mdstream.com/internal/marketdata/distributor"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/pkg/logger"
)

// Bridge turns the session stream into hub topics.
type Bridge struct {
	hub    *Hub
	errLog *rate.Limiter
}

func NewBridge(h *Hub) *Bridge {
	return &Bridge{hub: h, errLog: rate.NewLimiter(rate.Every(time.Second), 5)}
}

// PublishMessage pushes one market message to its topic. Heartbeats are
// not forwarded.
func (b *Bridge) PublishMessage(m model.Message) error {
	channel, topic, ok := TopicFor(m)
	if !ok {
		return nil
	}
	data, err := codec.Encode(m)
	if err != nil {
		return err
	}
	return b.publish(channel, topic, data)
}

// PublishStats pushes a symbol's statistics to stats:<symbol>. It matches
// stats.WithOnUpdate so the aggregator can drive it directly.
func (b *Bridge) PublishStats(s model.MarketStats) {
	topic := Topic(ChanStats, s.Symbol)
	data, err := codec.EncodeStats(s)
	if err == nil {
		err = b.publish(ChanStats, topic, data)
	}
	if err != nil {
		b.dropped(context.Background(), topic, err)
	}
}

// dropped counts every message the bridge could not encode; logs are sampled.
func (b *Bridge) dropped(ctx context.Context, topic string, err error) {
	mdmetrics.WSDroppedTotal.WithLabelValues("encode_error").Inc()
	if b.errLog.Allow() {
		logger.Warn(ctx, "ws bridge encode", zap.String("topic", topic), zap.Error(err))
	}
}

func (b *Bridge) publish(channel, topic string, data []byte) error {
	out, err := json.Marshal(ServerMsg{Type: channel, Topic: topic, Data: data})
	if err != nil {
		return err
	}
	b.hub.Publish(topic, out)
	return nil
}

// Run forwards sub until ctx is done or the stream ends.
func (b *Bridge) Run(ctx context.Context, sub *distributor.Subscription) error {
	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			var lag *distributor.LaggedError
			switch {
			case errors.As(err, &lag):
				mdmetrics.LaggedTotal.WithLabelValues("ws_bridge").Inc()
				logger.Warn(ctx, "ws bridge lagged", zap.Uint64("missed", lag.Missed))
				continue
			case errors.Is(err, distributor.ErrClosed):
				return nil
			default:
				return err
			}
		}
		if err := b.PublishMessage(msg); err != nil {
			_, topic, _ := TopicFor(msg)
			b.dropped(ctx, topic, err)
		}
	}
}
