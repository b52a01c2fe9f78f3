package sse

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type client struct {
	id     string
	events chan Event
	filter EventFilter
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newClient(ctx context.Context, bufferSize int, filter EventFilter) *client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &client{
		id:     uuid.NewString(),
		events: make(chan Event, bufferSize),
		filter: filter,
		ctx:    clientCtx,
		cancel: cancel,
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.events)
}

// send returns false when the client's buffer is full.
func (c *client) send(event Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.filter != nil && !c.filter(event) {
		return true
	}

	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}
