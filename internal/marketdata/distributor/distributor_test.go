package distributor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mdstream.com/internal/marketdata/model"
)

func trade(i int) model.Message {
	return model.NewTrade(model.Trade{
		Symbol:   "BTCUSD",
		Price:    float64(50000 + i),
		Quantity: 1,
		Side:     model.SideBuy,
		TradeID:  fmt.Sprint(i),
	})
}

func tradeID(t *testing.T, m model.Message) string {
	t.Helper()
	tr, ok := m.AsTrade()
	require.True(t, ok, "expected a trade, got %s", m.Kind)
	return tr.TradeID
}

func recv(t *testing.T, sub *Subscription) (model.Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return sub.Recv(ctx)
}

func TestPublish_PreservesOrderPerSubscriber(t *testing.T) {
	d := New(16)
	a, b := d.Subscribe(), d.Subscribe()

	for i := 0; i < 10; i++ {
		assert.Equal(t, 2, d.Publish(trade(i)))
	}
	for _, sub := range []*Subscription{a, b} {
		for i := 0; i < 10; i++ {
			m, err := recv(t, sub)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprint(i), tradeID(t, m))
		}
	}
}

func TestSubscribe_NoReplay(t *testing.T) {
	d := New(8)
	early := d.Subscribe()
	d.Publish(trade(0))
	late := d.Subscribe()
	d.Publish(trade(1))

	assert.Equal(t, 2, early.Len())
	m, err := late.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "1", tradeID(t, m))
	_, err = late.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPublish_NoSubscribers(t *testing.T) {
	d := New(4)
	assert.Equal(t, 0, d.Publish(trade(0)))
}

func TestSlowSubscriber_LagsWithoutAffectingFastOne(t *testing.T) {
	const capacity, total = 4, 10
	d := New(capacity)
	fast, stalled := d.Subscribe(), d.Subscribe()

	var got []string
	for i := 0; i < total; i++ {
		d.Publish(trade(i))
		m, err := fast.TryRecv()
		require.NoError(t, err)
		got = append(got, tradeID(t, m))
	}
	require.Len(t, got, total)
	assert.Equal(t, uint64(0), fast.Dropped())

	_, err := stalled.TryRecv()
	var lag *LaggedError
	require.True(t, errors.As(err, &lag), "first receive after overflow reports the lag")
	assert.Equal(t, uint64(total-capacity), lag.Missed)
	assert.Equal(t, uint64(total-capacity), stalled.Dropped())

	for i := total - capacity; i < total; i++ {
		m, err := stalled.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), tradeID(t, m))
	}
	_, err = stalled.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPublish_NeverBlocksOnStalledSubscriber(t *testing.T) {
	d := New(2)
	_ = d.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100000; i++ {
			d.Publish(trade(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}
}

func TestRecv_WaitsForPublish(t *testing.T) {
	d := New(4)
	sub := d.Subscribe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Publish(trade(7))
	}()
	m, err := recv(t, sub)
	require.NoError(t, err)
	assert.Equal(t, "7", tradeID(t, m))
}

func TestRecv_ContextCancel(t *testing.T) {
	d := New(4)
	sub := d.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnsubscribe(t *testing.T) {
	d := New(4)
	a, b := d.Subscribe(), d.Subscribe()
	d.Unsubscribe(a)
	d.Unsubscribe(a)

	assert.Equal(t, 1, d.SubscriberCount())
	assert.Equal(t, 1, d.Publish(trade(0)))
	_, err := a.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, b.Len())
}

func TestPublish_RemovesClosedSubscription(t *testing.T) {
	d := New(4)
	closed, open := d.Subscribe(), d.Subscribe()
	closed.Close()
	assert.Equal(t, 2, d.SubscriberCount(), "still registered until the next publish")

	assert.Equal(t, 1, d.Publish(trade(0)))
	assert.Equal(t, 1, d.SubscriberCount())

	m, err := open.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "0", tradeID(t, m))

	select {
	case <-closed.Done():
	default:
		t.Fatal("closed subscription should report done")
	}
}

func TestClose_DrainsThenEnds(t *testing.T) {
	d := New(4)
	sub := d.Subscribe()
	d.Publish(trade(0))
	d.Publish(trade(1))
	d.Close()
	d.Close()

	assert.Equal(t, 0, d.Publish(trade(2)))
	for i := 0; i < 2; i++ {
		m, err := recv(t, sub)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), tradeID(t, m))
	}
	_, err := recv(t, sub)
	assert.ErrorIs(t, err, ErrClosed)

	late := d.Subscribe()
	_, err = recv(t, late)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, d.Closed())
}

func TestClose_WakesBlockedReceiver(t *testing.T) {
	d := New(4)
	sub := d.Subscribe()
	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Recv(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	d.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("receiver not woken by Close")
	}
}

func TestConcurrentSubscribersSeeEverything(t *testing.T) {
	const subs, total = 8, 500
	d := New(total)

	var wg sync.WaitGroup
	counts := make([]int, subs)
	ready := make([]*Subscription, subs)
	for i := range ready {
		ready[i] = d.Subscribe()
	}
	for i, sub := range ready {
		wg.Add(1)
		go func(i int, sub *Subscription) {
			defer wg.Done()
			prev := -1
			for {
				m, err := sub.Recv(context.Background())
				if errors.Is(err, ErrClosed) {
					return
				}
				if !assert.NoError(t, err) {
					return
				}
				tr, _ := m.AsTrade()
				n := int(tr.Price) - 50000
				assert.Greater(t, n, prev)
				prev = n
				counts[i]++
			}
		}(i, sub)
	}
	for i := 0; i < total; i++ {
		d.Publish(trade(i))
	}
	d.Close()
	wg.Wait()

	for i, c := range counts {
		assert.Equal(t, total, c, "subscriber %d", i)
	}
}

func TestNew_DefaultCapacity(t *testing.T) {
	d := New(0, WithName("test"))
	assert.Equal(t, DefaultCapacity, d.Capacity())
	assert.Equal(t, DefaultCapacity, d.Subscribe().Cap())
}

func TestErrors(t *testing.T) {
	lag := &LaggedError{Missed: 3}
	assert.Contains(t, lag.Error(), "3 messages missed")

	pe := &PublishError{SubscriptionID: "abc", Err: ErrClosed}
	assert.ErrorIs(t, pe, ErrClosed)
	assert.Contains(t, pe.Error(), "abc")
}

func BenchmarkPublish_4Subscribers(b *testing.B) {
	d := New(1024)
	for i := 0; i < 4; i++ {
		d.Subscribe()
	}
	msg := trade(1)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d.Publish(msg)
	}
}
