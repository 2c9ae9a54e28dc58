package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrBrokerClosed = errors.New("relay: broker closed")

// MemBroker is an in-process Broker for single-node runs and tests.
type MemBroker struct {
	mu     sync.RWMutex
	subs   map[*memSub]struct{}
	closed bool
	buffer int
}

type memSub struct {
	patterns []string
	ch       chan Message
	once     sync.Once
}

func NewMemBroker(buffer int) *MemBroker {
	if buffer <= 0 {
		buffer = 4096
	}
	return &MemBroker{subs: make(map[*memSub]struct{}), buffer: buffer}
}

func (b *MemBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	msg := Message{Subject: subject, Payload: payload}
	for s := range b.subs {
		if !s.matches(subject) {
			continue
		}
		select {
		case s.ch <- msg:
		default: // slow subscriber: drop
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, subjects []string) (<-chan Message, error) {
	s := &memSub{patterns: subjects, ch: make(chan Message, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(s)
	}()
	return s.ch, nil
}

func (b *MemBroker) remove(s *memSub) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

func (b *MemBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[*memSub]struct{})
	b.mu.Unlock()
	for s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
	return nil
}

func (s *memSub) matches(subject string) bool {
	for _, p := range s.patterns {
		if matchSubject(p, subject) {
			return true
		}
	}
	return false
}

// matchSubject follows NATS token rules: "*" matches one token, a trailing
// ">" matches one or more.
func matchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" && i == len(pt)-1 {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
