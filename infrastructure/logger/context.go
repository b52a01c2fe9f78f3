package logger

import (
	"context"
	"fmt"
	"os"
	"sync"
)

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx by WithContext.
// When ctx carries none it returns a shared stderr-backed logger at warn
// level, so warnings and errors still reach an operator instead of being
// discarded. It panics if ctx is nil.
// The request ID middleware stores a request-scoped logger for every HTTP
// request. Code outside a request (background goroutines, startup, the
// revalidation workers) should be handed a logger explicitly.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return fallbackLogger()
}

var (
	fallbackLog  Logger
	fallbackOnce sync.Once
)

// fallbackLogger builds the warn-level stderr logger once and reuses it.
// If even that fails it degrades to a no-op logger after printing to stderr.
func fallbackLogger() Logger {
	fallbackOnce.Do(func() {
		l, err := New(Config{Level: "warn", OutputPaths: []string{"stderr"}})
		if err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: failed to create fallback logger: %v\n", err)
			l = NewNop()
		}
		fallbackLog = l
	})
	return fallbackLog
}

// FromContextOr returns the logger stored in ctx, or def when there is none.
func FromContextOr(ctx context.Context, def Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return def
}
