package logger_test

import (
	"context"
	"testing"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{Level: "warn", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	ctx := logger.WithContext(context.Background(), l)
	assert.Same(t, l, logger.FromContext(ctx))
}

func TestFromContext_FallbackIsSingleton(t *testing.T) {
	t.Parallel()

	a := logger.FromContext(context.Background())
	b := logger.FromContext(context.Background())

	require.NotNil(t, a)
	assert.Same(t, a, b)

	// warn-level fallback must accept every level without panicking
	a.Debug("debug")
	a.Warn("warn", logger.String("key", "value"))
}

func TestWith_ReturnsDistinctLogger(t *testing.T) {
	t.Parallel()

	base, err := logger.New(logger.Config{Level: "error", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	child := base.With(logger.String("service", "resource-cache"))
	assert.NotSame(t, base, child)
}
