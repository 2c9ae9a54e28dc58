package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"mdstream.com/pkg/metrics"
)

type Rule struct {
	// Requests let through while half-open (0 is treated as 1 by gobreaker).
	MaxRequests uint32

	// Counting window while closed.
	Interval time.Duration

	// >0 enables a rolling window with buckets of this size.
	BucketPeriod time.Duration

	// How long the breaker stays open before probing.
	Timeout time.Duration

	// Trip on either condition.
	TripConsecutiveFailures uint32
	TripFailureRate         float64 // 0..1
	TripMinRequests         uint32  // samples before the rate is considered
}

// Manager hands out one breaker per name, created lazily from the matching Rule.
type Manager struct {
	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[struct{}]

	defaultRule Rule
	rules       map[string]Rule

	// IsSuccessful decides which errors count against the breaker.
	// nil counts every non-nil error as a failure.
	IsSuccessful func(err error) bool
}

func NewManager(defaultRule Rule, perName map[string]Rule) *Manager {
	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 5
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 3 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 10 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}

	return &Manager{
		m:           make(map[string]*gobreaker.CircuitBreaker[struct{}], 16),
		defaultRule: defaultRule,
		rules:       perName,
	}
}

func (m *Manager) Get(name string) *gobreaker.CircuitBreaker[struct{}] {
	m.mu.RLock()
	cb := m.m[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb = m.m[name]; cb != nil {
		return cb
	}

	rule, ok := m.rules[name]
	if !ok {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:         name,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,

		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				failRate := float64(c.TotalFailures) / float64(c.Requests)
				return failRate >= rule.TripFailureRate
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(name, to.String()).Set(1)
		},
		IsSuccessful: m.IsSuccessful,
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	metrics.CBState.WithLabelValues(name, gobreaker.StateClosed.String()).Set(1)
	m.m[name] = cb
	return cb
}

// Do runs fn through the named breaker. Rejections are counted and returned
// as gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests.
func (m *Manager) Do(name string, fn func() error) error {
	_, err := m.Get(name).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		metrics.CBRejectTotal.WithLabelValues(name, "open").Inc()
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CBRejectTotal.WithLabelValues(name, "half_open_limit").Inc()
	}
	return err
}

// Rejected reports whether err came from the breaker rather than fn.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
