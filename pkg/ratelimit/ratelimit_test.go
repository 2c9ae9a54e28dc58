package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestStore_AllowPerKey(t *testing.T) {
	s := NewStore(rate.Every(time.Hour), 2, time.Minute)

	assert.True(t, s.Allow("a"))
	assert.True(t, s.Allow("a"))
	assert.False(t, s.Allow("a"), "burst exhausted")
	assert.True(t, s.Allow("b"), "keys are independent")
	assert.Equal(t, 2, s.Len())
}

func TestStore_SweepDropsIdleKeys(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(rate.Inf, 1, time.Minute)
	s.now = func() time.Time { return clock }

	s.Allow("idle")
	clock = clock.Add(50 * time.Second)
	s.Allow("busy")
	clock = clock.Add(20 * time.Second)

	assert.Equal(t, 1, s.sweep())
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Allow("busy"))
}

func TestManager_TripsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(Rule{TripConsecutiveFailures: 3, Timeout: time.Hour}, nil)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, m.Do("nats", func() error { return boom }), boom)
	}
	err := m.Do("nats", func() error {
		t.Fatal("fn must not run while open")
		return nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, Rejected(err))
	assert.Equal(t, gobreaker.StateOpen, m.Get("nats").State())

	assert.NoError(t, m.Do("redis", func() error { return nil }), "breakers are per name")
}

func TestManager_IsSuccessfulFilter(t *testing.T) {
	ignored := errors.New("not a dependency failure")
	m := NewManager(Rule{TripConsecutiveFailures: 1, Timeout: time.Hour}, nil)
	m.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, ignored) }

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, m.Do("x", func() error { return ignored }), ignored)
	}
	assert.Equal(t, gobreaker.StateClosed, m.Get("x").State())
}

func TestManager_PerNameRule(t *testing.T) {
	m := NewManager(Rule{TripConsecutiveFailures: 100}, map[string]Rule{
		"strict": {TripConsecutiveFailures: 1, Timeout: time.Hour, MaxRequests: 1, Interval: time.Minute},
	})
	_ = m.Do("strict", func() error { return errors.New("x") })
	assert.Equal(t, gobreaker.StateOpen, m.Get("strict").State())
	assert.Same(t, m.Get("strict"), m.Get("strict"))
}
