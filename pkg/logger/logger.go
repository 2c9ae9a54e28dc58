package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceIdKey is the context key the HTTP layer stores request ids under.
const TraceIdKey = "trace_id"

// Log is the process-wide logger. It discards everything until Init is called,
// so library packages and tests can log without setup.
var Log = zap.NewNop()

var level = zap.NewAtomicLevel()

// Init builds the logger for serviceName at level (debug, info, warn, error).
func Init(serviceName string, lvl string) {
	InitWithFile(serviceName, lvl, "")
}

// InitWithFile is Init with an explicit log file. An empty logFile means
// logs/<serviceName>.log; "-" disables the file sink.
func InitWithFile(serviceName string, lvl string, logFile string) {
	SetLevel(lvl)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	writeSyncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}

	if logFile == "" {
		logFile = filepath.Join("logs", serviceName+".log")
	}
	if logFile != "-" {
		// A missing or read-only log dir degrades to stdout only.
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
			file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				writeSyncers = append(writeSyncers, zapcore.AddSync(file))
			}
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		level,
	)

	// CallerSkip 1: the helpers below wrap Log.
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", serviceName))
}

// SetLevel changes the level of the logger built by Init at runtime. Unknown
// names fall back to info.
func SetLevel(lvl string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		l = zap.InfoLevel
	}
	level.SetLevel(l)
}

func Level() zapcore.Level { return level.Level() }

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Info(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Error(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Warn(msg, fields...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Debug(msg, fields...)
}

// Fatal logs and exits the process.
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Fatal(msg, fields...)
}

// WithTrace returns ctx carrying id under TraceIdKey.
func WithTrace(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIdKey, id)
}

func extractTrace(ctx context.Context, fields *[]zap.Field) {
	if ctx == nil {
		return
	}
	if traceID, ok := ctx.Value(TraceIdKey).(string); ok && traceID != "" {
		*fields = append(*fields, zap.String("trace_id", traceID))
	}
}

// Sync flushes buffered entries; call it deferred from main.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
