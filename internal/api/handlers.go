package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/resourcecache"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
)

// Response headers describing how a proxied request was answered.
const (
	HeaderCacheRoute  = "X-Cache-Route"
	HeaderCacheSource = "X-Cache-Source"
)

type handler struct {
	manager *resourcecache.Manager
	log     logger.Logger
}

// proxy answers any site request through the resource cache.
func (h *handler) proxy(c *gin.Context) {
	ctx := c.Request.Context()

	res, err := h.manager.Handle(ctx, c.Request)
	if err != nil {
		h.proxyError(c, err)
		return
	}

	c.Header(HeaderCacheRoute, string(res.Route))
	c.Header(HeaderCacheSource, string(res.Source))
	if writeErr := res.Response.Write(c.Writer); writeErr != nil {
		logger.FromContextOr(ctx, h.log).Debug("Failed to write response", logger.Error(writeErr))
	}
}

func (h *handler) proxyError(c *gin.Context, err error) {
	log := logger.FromContextOr(c.Request.Context(), h.log)

	if errors.Is(err, upstream.ErrNetwork) {
		log.Warn("Origin unreachable", logger.String("path", c.Request.URL.Path), logger.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "bad_gateway",
			"message": "The origin could not be reached and no cached response is available",
		})
		return
	}

	log.Error("Cache storage failure", logger.String("path", c.Request.URL.Path), logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Cache storage failure",
	})
}

type messageRequest struct {
	Type string `json:"type" binding:"required"`
}

// postMessage handles page messages.
// POST /sw/messages {"type":"SKIP_WAITING"|"GET_CACHE_INFO"}
func (h *handler) postMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	msg := resourcecache.Message{Type: resourcecache.MessageType(req.Type)}
	var reply chan resourcecache.CacheInfo
	if msg.Type == resourcecache.MessageGetCacheInfo {
		reply = make(chan resourcecache.CacheInfo, 1)
		msg.Reply = reply
	}

	if err := h.manager.PostMessage(ctx, msg); err != nil {
		if errors.Is(err, resourcecache.ErrUnknownMessage) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_message",
				"message": err.Error(),
			})
			return
		}
		logger.FromContextOr(ctx, h.log).Error("Failed to handle message",
			logger.String("type", req.Type),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to handle " + req.Type,
		})
		return
	}

	if reply != nil {
		c.JSON(http.StatusOK, <-reply)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"type":  req.Type,
		"state": h.manager.State(),
	})
}

// status reports the lifecycle state and partitions.
// GET /sw/status
func (h *handler) status(c *gin.Context) {
	status, err := h.manager.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read cache status",
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// clearPartition deletes one partition.
// DELETE /sw/partitions/:name
func (h *handler) clearPartition(c *gin.Context) {
	name := c.Param("name")
	if err := storage.ValidateName(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid partition name",
		})
		return
	}

	deleted, err := h.manager.ClearPartition(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clear partition",
		})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Partition not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Partition cleared",
		"partition": name,
	})
}
