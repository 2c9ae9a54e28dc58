package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"mdstream.com/pkg/safe"
)

type bucket struct {
	*rate.Limiter
	touched atomic.Int64 // unix nano of last use
}

// Store hands out one token bucket per key (client ip + route in the HTTP
// middleware). Buckets idle for longer than ttl are swept by the janitor.
type Store struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewStore(r rate.Limit, burst int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		limit:   r,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
		buckets: make(map[string]*bucket, 1024),
	}
}

func (s *Store) get(key string) *bucket {
	now := s.now().UnixNano()
	s.mu.Lock()
	b := s.buckets[key]
	if b == nil {
		b = &bucket{Limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	s.mu.Unlock()
	b.touched.Store(now)
	return b
}

// Allow reports whether one more event for key may happen now.
func (s *Store) Allow(key string) bool { return s.get(key).Allow() }

// Wait blocks until key may proceed or ctx is done.
func (s *Store) Wait(ctx context.Context, key string) error { return s.get(key).Wait(ctx) }

// StartJanitor sweeps idle buckets every interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	safe.GoCtx(ctx, func(ctx context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.sweep()
			}
		}
	})
}

// Len is the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *Store) sweep() int {
	cut := s.now().Add(-s.ttl).UnixNano()
	removed := 0
	s.mu.Lock()
	for k, b := range s.buckets {
		if b.touched.Load() < cut {
			delete(s.buckets, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}
