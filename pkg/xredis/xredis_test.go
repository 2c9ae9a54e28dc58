package xredis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHook_PassesThrough(t *testing.T) {
	h := MetricsHook{}
	ctx := context.Background()
	cmd := redis.NewStatusCmd(ctx, "ping")

	called := false
	err := h.ProcessHook(func(ctx context.Context, c redis.Cmder) error {
		called = true
		return nil
	})(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, called)

	boom := errors.New("boom")
	err = h.ProcessPipelineHook(func(ctx context.Context, cmds []redis.Cmder) error {
		return boom
	})(ctx, []redis.Cmder{cmd})
	assert.ErrorIs(t, err, boom)

	err = h.ProcessHook(func(ctx context.Context, c redis.Cmder) error { return redis.Nil })(ctx, cmd)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(context.Background(), &Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestLeaderLock_UnreachableIsNotLeader(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()
	l := NewLeaderLock(rdb)
	assert.NotEmpty(t, l.ID())
	assert.False(t, l.TryAcquireMaster(context.Background(), "k", 1))
}
