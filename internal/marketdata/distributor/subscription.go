package distributor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/internal/marketdata/model"
)

// Subscription is one consumer's view of the stream: a fixed-size ring that
// keeps the most recent messages when the consumer falls behind.
type Subscription struct {
	id       string
	capacity int

	mu      sync.Mutex
	buf     []model.Message
	head    int
	n       int
	lagged  uint64 // overwritten since the last lag report
	dropped uint64 // overwritten in total
	closed  bool   // consumer closed it; buffer released
	ended   bool   // distributor closed; drain, then ErrClosed

	notify   chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

func newSubscription(capacity int) *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		capacity: capacity,
		buf:      make([]model.Message, capacity),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *Subscription) ID() string { return s.id }

// push never blocks. A full ring drops its oldest entry.
func (s *Subscription) push(msg model.Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.n == len(s.buf) {
		s.buf[s.head] = model.Message{}
		s.head = (s.head + 1) % len(s.buf)
		s.n--
		s.lagged++
		s.dropped++
		mdmetrics.DroppedTotal.Inc()
	}
	s.buf[(s.head+s.n)%len(s.buf)] = msg
	s.n++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Recv blocks until a message is available, the subscription lagged
// (*LaggedError), ctx is done, or the stream ended (ErrClosed).
func (s *Subscription) Recv(ctx context.Context) (model.Message, error) {
	for {
		msg, err := s.TryRecv()
		if err != ErrEmpty {
			return msg, err
		}
		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		}
	}
}

// TryRecv is Recv without waiting; it returns ErrEmpty when nothing is buffered.
func (s *Subscription) TryRecv() (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.Message{}, ErrClosed
	}
	if s.lagged > 0 {
		missed := s.lagged
		s.lagged = 0
		return model.Message{}, &LaggedError{Missed: missed}
	}
	if s.n == 0 {
		if s.ended {
			return model.Message{}, ErrClosed
		}
		return model.Message{}, ErrEmpty
	}
	msg := s.buf[s.head]
	s.buf[s.head] = model.Message{}
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return msg, nil
}

// Len is the number of buffered messages.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Cap is the ring size.
func (s *Subscription) Cap() int { return s.capacity }

// Dropped is the total number of messages this subscription lost to overflow.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Done is closed once the subscription is closed or the distributor shut down.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close releases the buffer. The distributor notices on its next publish and
// drops the subscription; use Distributor.Unsubscribe to remove it at once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.buf = nil
		s.head, s.n = 0, 0
	}
	s.mu.Unlock()
	s.wake()
}

// end marks the stream finished; buffered messages stay readable.
func (s *Subscription) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	s.doneOnce.Do(func() { close(s.done) })
}
