package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/danielortiz-dev/vendique-backend/pkg/env"
	"github.com/rs/zerolog"
)

// Options control construction of a Logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Output      io.Writer
}

// Logger writes JSON log lines and threads request-scoped fields through
// context.Context. Context carries zerolog's own logger value, so enriched
// entries survive across package boundaries without extra plumbing.
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	fields := zerolog.New(resolveOutput(opts.Output)).With().Timestamp().Str("service", opts.ServiceName)
	return &Logger{base: fields.Logger().Level(level), warnStack: opts.WarnStack}
}

// resolveOutput defaults to stdout and honors LOG_FORMAT=console for local
// development.
func resolveOutput(out io.Writer) io.Writer {
	if out == nil {
		out = os.Stdout
	}
	if env.Get("LOG_FORMAT", "json") == "console" {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}
	return out
}

// ParseLevel maps a config string onto a zerolog level, falling back to info.
func ParseLevel(value string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(value))
	if name == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) fromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &l.base
	}
	if entry := zerolog.Ctx(ctx); entry.GetLevel() != zerolog.Disabled {
		return entry
	}
	return &l.base
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	entry := l.fromContext(ctx).With().Interface(key, value).Logger()
	return entry.WithContext(ctx)
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	builder := l.fromContext(ctx).With()
	for k, v := range fields {
		builder = builder.Interface(k, v)
	}
	entry := builder.Logger()
	return entry.WithContext(ctx)
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithStoreID(ctx context.Context, storeID string) context.Context {
	return l.WithField(ctx, "store_id", storeID)
}

func (l *Logger) WithProductID(ctx context.Context, productID string) context.Context {
	return l.WithField(ctx, "product_id", productID)
}

func (l *Logger) WithReservationGroup(ctx context.Context, groupID string) context.Context {
	return l.WithField(ctx, "reservation_group_id", groupID)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.fromContext(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.fromContext(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", callStack())
	}
	event.Msg(msg)
}

// Error always carries a stack so a log line is enough to locate the caller.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.fromContext(ctx).Error().Str("stack", callStack())
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(msg)
}

func callStack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
