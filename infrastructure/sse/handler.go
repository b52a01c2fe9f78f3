package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
)

const sseContentType = "text/event-stream"

type heartbeater interface {
	heartbeat() time.Duration
}

// Handler streams broker events to the client until it disconnects.
func Handler(b Broker, log logger.Logger, opts ...ClientOption) gin.HandlerFunc {
	interval := DefaultHeartbeatInterval
	if hb, ok := b.(heartbeater); ok {
		interval = hb.heartbeat()
	}

	return func(c *gin.Context) {
		events, cleanup, err := b.Subscribe(c.Request.Context(), opts...)
		if err != nil {
			if errors.Is(err, ErrTooManyClients) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer cleanup()

		setHeaders(c.Writer)
		c.Status(http.StatusOK)

		connected := Event{
			Type: eventTypeConnected,
			Data: map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
		}
		if err := writeEvent(c.Writer, connected); err != nil {
			log.Debug("Failed to write connection event", logger.Error(err))
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(c.Writer, event); err != nil {
					log.Debug("SSE write failed", logger.Error(err), logger.String("event_type", event.Type))
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprintf(c.Writer, ": heartbeat\n\n"); err != nil {
					return
				}
				c.Writer.Flush()
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", sseContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteEvent encodes event in SSE wire format.
func WriteEvent(w io.Writer, event Event) error {
	if event.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
			return fmt.Errorf("write event type: %w", err)
		}
	}
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return fmt.Errorf("write event id: %w", err)
		}
	}
	if event.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return fmt.Errorf("write retry: %w", err)
		}
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	return nil
}

func writeEvent(w gin.ResponseWriter, event Event) error {
	if err := WriteEvent(w, event); err != nil {
		return err
	}
	w.Flush()
	return nil
}
