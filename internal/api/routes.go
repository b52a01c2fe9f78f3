package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/sse"
)

// SetupRoutes registers the service endpoints. Every request that matches
// none of them goes through the cache. Health routes are registered by the
// infrastructure gin builder.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	h := &handler{manager: deps.Manager, log: deps.Logger}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	sw := router.Group("/sw")
	sw.POST("/messages", h.postMessage)
	sw.GET("/status", h.status)
	sw.DELETE("/partitions/:name", h.clearPartition)
	if deps.Broker != nil {
		sw.GET("/events", sse.Handler(deps.Broker, deps.Logger,
			sse.WithFilter(sse.OnlyTypes(sse.EventTypeCacheUpdated)),
		))
	}

	router.NoRoute(h.proxy)
}
