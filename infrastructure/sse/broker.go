package sse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
)

type broker struct {
	logger  logger.Logger
	mu      sync.RWMutex
	clients map[string]*client

	publish chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventBufferSize   int
	clientBufferSize  int
	heartbeatInterval time.Duration
	shutdownTimeout   time.Duration
	maxClients        int
}

// NewBroker creates a broker. Call Start before publishing.
func NewBroker(log logger.Logger, opts ...BrokerOption) Broker {
	b := &broker{
		logger:            log,
		clients:           make(map[string]*client),
		eventBufferSize:   DefaultEventBufferSize,
		clientBufferSize:  DefaultClientBufferSize,
		heartbeatInterval: DefaultHeartbeatInterval,
		shutdownTimeout:   DefaultShutdownTimeout,
		maxClients:        DefaultMaxClients,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.publish = make(chan Event, b.eventBufferSize)
	return b
}

func (b *broker) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.broadcastLoop()

	b.logger.Info("SSE broker started",
		logger.Int("event_buffer_size", b.eventBufferSize),
		logger.Int("client_buffer_size", b.clientBufferSize),
		logger.Duration("heartbeat_interval", b.heartbeatInterval),
		logger.Int("max_clients", b.maxClients),
	)
	return nil
}

func (b *broker) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("SSE broker stopped gracefully")
	case <-time.After(b.shutdownTimeout):
		b.logger.Warn("SSE broker shutdown timeout exceeded")
	}
	return nil
}

// Publish never blocks; a full buffer drops the event.
func (b *broker) Publish(ctx context.Context, event Event) error {
	select {
	case b.publish <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	default:
		return fmt.Errorf("%w (dropped event: %s)", ErrBufferFull, event.Type)
	}
}

func (b *broker) Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func(), error) {
	clientOpts := ClientOptions{BufferSize: b.clientBufferSize}
	for _, opt := range opts {
		opt(&clientOpts)
	}

	c := newClient(ctx, clientOpts.BufferSize, clientOpts.Filter)

	b.mu.Lock()
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		current := len(b.clients)
		b.mu.Unlock()
		c.close()
		b.logger.Warn("Max SSE clients reached, rejecting new connection",
			logger.Int("max_clients", b.maxClients),
			logger.Int("current_clients", current),
		)
		return nil, func() {}, ErrTooManyClients
	}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug("Client subscribed",
		logger.String("client_id", c.id),
		logger.Int("total_clients", total),
	)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		<-c.ctx.Done()
		b.removeClient(c.id)
	}()

	return c.events, func() { b.removeClient(c.id) }, nil
}

func (b *broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *broker) heartbeat() time.Duration {
	return b.heartbeatInterval
}

func (b *broker) broadcastLoop() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.publish:
			b.broadcast(event)
		case <-b.ctx.Done():
			b.disconnectAll()
			return
		}
	}
}

func (b *broker) broadcast(event Event) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	sent := 0
	var slow []string
	for _, c := range clients {
		if c.send(event) {
			sent++
			continue
		}
		slow = append(slow, c.id)
	}

	// Slow clients are disconnected rather than blocking the loop.
	for _, id := range slow {
		b.logger.Warn("Client buffer full, closing slow connection",
			logger.String("client_id", id),
			logger.String("event_type", event.Type),
		)
		b.removeClient(id)
	}

	b.logger.Debug("Event broadcast",
		logger.String("event_type", event.Type),
		logger.Int("sent", sent),
		logger.Int("dropped", len(slow)),
	)
}

func (b *broker) removeClient(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()

	if ok {
		c.close()
		b.logger.Debug("Client disconnected", logger.String("client_id", id))
	}
}

func (b *broker) disconnectAll() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*client)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	b.logger.Info("All SSE clients disconnected", logger.Int("count", len(clients)))
}
