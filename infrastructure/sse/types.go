// Package sse provides Server-Sent Events fan-out for cache lifecycle updates.
package sse

import (
	"context"
	"errors"
	"time"
)

// Event is one Server-Sent Event.
// Format: event: <Type>\nid: <ID>\ndata: <JSON payload>\n\n
type Event struct {
	Type string `json:"type"`
	// Data must be JSON-serializable.
	Data  any    `json:"data"`
	ID    string `json:"id,omitempty"`
	Retry int    `json:"retry,omitempty"`
}

// Publisher sends events to every connected client.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber registers clients with the broker.
type Subscriber interface {
	// Subscribe returns the client's event channel, closed when the
	// subscription ends, and a cleanup func.
	Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func(), error)
}

// Broker manages SSE connections and event distribution.
type Broker interface {
	Publisher
	Subscriber
	Start(ctx context.Context) error
	Stop() error
	ClientCount() int
}

// EventFilter reports whether event should reach a client.
type EventFilter func(event Event) bool

// ClientOptions configures a single subscription.
type ClientOptions struct {
	Filter     EventFilter
	BufferSize int
}

// ErrTooManyClients is returned by Subscribe once MaxClients is reached.
var ErrTooManyClients = errors.New("sse: too many clients")

// ErrBufferFull is returned by Publish when the broker cannot keep up.
var ErrBufferFull = errors.New("sse: publish buffer full")

// Event types.
const (
	EventTypeCacheUpdated = "CACHE_UPDATED"

	eventTypeConnected = "connected"
)

// CacheUpdatedData is the payload for CACHE_UPDATED events.
type CacheUpdatedData struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// NewCacheUpdatedEvent builds the event announcing that version became active.
func NewCacheUpdatedEvent(version string, at time.Time) Event {
	return Event{
		Type: EventTypeCacheUpdated,
		Data: CacheUpdatedData{
			Type:      EventTypeCacheUpdated,
			Version:   version,
			Timestamp: at.UTC().Format(time.RFC3339),
		},
	}
}

// OnlyTypes returns a filter passing the listed event types.
func OnlyTypes(types ...string) EventFilter {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(event Event) bool {
		_, ok := allowed[event.Type]
		return ok
	}
}
