package safe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"mdstream.com/pkg/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.ErrorLevel)
	prev := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = prev })
	return logs
}

func TestGo_RecoversPanic(t *testing.T) {
	logs := observe(t)
	done := make(chan struct{})
	Go(func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "goroutine panic recovered", logs.All()[0].Message)
}

func TestGoCtx_PassesContext(t *testing.T) {
	ctx := logger.WithTrace(context.Background(), "t-1")
	got := make(chan string, 1)
	GoCtx(ctx, func(ctx context.Context) {
		got <- ctx.Value(logger.TraceIdKey).(string)
	})
	select {
	case v := <-got:
		assert.Equal(t, "t-1", v)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestRun(t *testing.T) {
	logs := observe(t)
	assert.True(t, Run(context.Background(), func() {}))
	assert.False(t, Run(context.Background(), func() { panic("x") }))
	assert.Equal(t, 1, logs.Len())
}
