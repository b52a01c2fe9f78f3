package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	infragin "github.com/jonesrussell/north-cloud/resource-cache/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/config"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/resourcecache"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/telemetry"
)

const (
	defaultReadTimeout = 30 * time.Second
	// Negative disables the write timeout: SSE streams are long-lived and
	// origin fetches are not bounded.
	noWriteTimeout     = -1
	defaultIdleTimeout = 120 * time.Second
	healthCheckTimeout = 2 * time.Second
)

// Dependencies are the collaborators served over HTTP.
type Dependencies struct {
	Manager *resourcecache.Manager
	Broker  sse.Broker
	Metrics *telemetry.Metrics
	Logger  logger.Logger
	// RedisPing is set when partitions live in Redis.
	RedisPing func() error
}

// NewServer creates the HTTP server.
func NewServer(cfg *config.Config, deps Dependencies) *infragin.Server {
	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(deps.Logger).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithTimeouts(defaultReadTimeout, noWriteTimeout, defaultIdleTimeout).
		WithShutdownTimeout(cfg.Service.ShutdownTimeout).
		WithHealthCheck("storage", storageHealthCheck(deps.Manager))

	if deps.RedisPing != nil {
		builder = builder.WithRedisHealthCheck(deps.RedisPing)
	}

	return builder.
		WithRoutes(func(router *gin.Engine) {
			SetupRoutes(router, deps)
		}).
		Build()
}

func storageHealthCheck(m *resourcecache.Manager) infragin.HealthChecker {
	return func() infragin.CheckResult {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()

		start := time.Now()
		status, err := m.Status(ctx)
		latency := time.Since(start).String()
		if err != nil {
			return infragin.CheckResult{Status: infragin.HealthStatusUnhealthy, Message: err.Error(), Latency: latency}
		}
		if status.State != resourcecache.StateActive {
			return infragin.CheckResult{
				Status:  infragin.HealthStatusDegraded,
				Message: "cache is " + string(status.State),
				Latency: latency,
			}
		}
		return infragin.CheckResult{Status: infragin.HealthStatusHealthy, Message: "cache active", Latency: latency}
	}
}
