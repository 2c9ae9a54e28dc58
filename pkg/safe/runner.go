package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"mdstream.com/pkg/logger"
)

// Go runs fn on a new goroutine and logs instead of crashing if it panics.
func Go(fn func()) {
	go func() {
		defer recoverAndLog(context.Background())
		fn()
	}()
}

// GoCtx is Go for functions that take a context; ctx also tags the panic log.
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverAndLog(ctx)
		fn(ctx)
	}()
}

// Run calls fn on the current goroutine and turns a panic into a log entry.
// It reports whether fn returned normally.
func Run(ctx context.Context, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(ctx, r)
			ok = false
		}
	}()
	fn()
	return true
}

func recoverAndLog(ctx context.Context) {
	if r := recover(); r != nil {
		logPanic(ctx, r)
	}
}

func logPanic(ctx context.Context, r any) {
	logger.Error(ctx, "goroutine panic recovered",
		zap.Any("panic", r),
		zap.String("stack", string(debug.Stack())),
	)
}
