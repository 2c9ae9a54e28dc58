package distributor

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/internal/marketdata/model"
	"mdstream.com/pkg/logger"
)

// DefaultCapacity is the per-subscriber ring size used when New gets <= 0.
const DefaultCapacity = 1024

// Distributor fans every published message out to all current subscriptions.
// Publish never waits on a subscriber: each one has its own bounded ring and a
// slow reader only loses its own oldest messages.
type Distributor struct {
	capacity int
	name     string

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

type Option func(*Distributor)

// WithName labels log lines from this distributor.
func WithName(name string) Option {
	return func(d *Distributor) { d.name = name }
}

func New(capacity int, opts ...Option) *Distributor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	d := &Distributor{
		capacity: capacity,
		name:     "default",
		subs:     make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Distributor) Capacity() int { return d.capacity }

// Subscribe registers a new subscription. It only sees messages published
// after this call. Subscribing to a closed distributor yields an ended
// subscription whose Recv returns ErrClosed.
func (d *Distributor) Subscribe() *Subscription {
	sub := newSubscription(d.capacity)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		sub.end()
		return sub
	}
	d.subs[sub] = struct{}{}
	mdmetrics.Subscribers.Inc()
	return sub
}

// Unsubscribe removes sub immediately and closes it. Unknown or already
// removed subscriptions are ignored.
func (d *Distributor) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	if _, ok := d.subs[sub]; ok {
		delete(d.subs, sub)
		mdmetrics.Subscribers.Dec()
	}
	d.mu.Unlock()
	sub.Close()
}

// Publish hands msg to every subscription and returns how many took it.
// Subscriptions found closed are removed; the rest are unaffected.
func (d *Distributor) Publish(msg model.Message) int {
	var (
		delivered int
		failed    []*PublishError
		stale     []*Subscription
	)

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return 0
	}
	for sub := range d.subs {
		if err := sub.push(msg); err != nil {
			failed = append(failed, &PublishError{SubscriptionID: sub.id, Err: err})
			stale = append(stale, sub)
			continue
		}
		delivered++
	}
	d.mu.RUnlock()
	mdmetrics.PublishedTotal.Inc()

	if len(stale) > 0 {
		d.prune(stale, failed)
	}
	return delivered
}

func (d *Distributor) prune(stale []*Subscription, failed []*PublishError) {
	d.mu.Lock()
	for _, sub := range stale {
		if _, ok := d.subs[sub]; ok {
			delete(d.subs, sub)
			mdmetrics.Subscribers.Dec()
			mdmetrics.RemovedSubscribersTotal.Inc()
		}
	}
	d.mu.Unlock()

	for _, err := range failed {
		logger.Warn(context.Background(), "removed closed subscription",
			zap.String("distributor", d.name),
			zap.String("subscription", err.SubscriptionID),
			zap.Error(err),
		)
	}
}

// SubscriberCount is the number of registered subscriptions, closed ones
// not yet pruned included.
func (d *Distributor) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Close ends the stream. Subscribers drain what they have buffered and then
// get ErrClosed. Later Publish calls are ignored.
func (d *Distributor) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = make(map[*Subscription]struct{})
	d.mu.Unlock()

	for sub := range subs {
		sub.end()
		mdmetrics.Subscribers.Dec()
	}
}

func (d *Distributor) Closed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}
