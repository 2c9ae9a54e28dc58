package relay

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
)

type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(url string, opts ...nats.Option) (*NatsBroker, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBroker{nc: nc}, nil
}

func (b *NatsBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.nc.Publish(subject, payload)
}

func (b *NatsBroker) Subscribe(ctx context.Context, subjects []string) (<-chan Message, error) {
	out := make(chan Message, 8192)
	subs := make([]*nats.Subscription, 0, len(subjects))

	// A callback may still be running after Unsubscribe; closing out is
	// serialised against it.
	var (
		mu     sync.Mutex
		closed bool
	)

	for _, subj := range subjects {
		sub, err := b.nc.Subscribe(subj, func(m *nats.Msg) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			// Never block the NATS callback goroutine.
			select {
			case out <- Message{Subject: m.Subject, Payload: m.Data}:
			default:
			}
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

func (b *NatsBroker) Close() error {
	if b.nc == nil {
		return nil
	}
	err := b.nc.Drain()
	b.nc.Close()
	return err
}
