package sse

import "time"

// Default configuration values.
const (
	DefaultEventBufferSize   = 256
	DefaultClientBufferSize  = 16
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxClients        = 100
)

// Config holds broker configuration as loaded from YAML.
type Config struct {
	EventBufferSize   int           `yaml:"event_buffer_size"`
	ClientBufferSize  int           `yaml:"client_buffer_size"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// MaxClients of zero means unlimited.
	MaxClients int `yaml:"max_clients"`
}

// Options converts the config into broker options.
func (c Config) Options() []BrokerOption {
	return []BrokerOption{
		WithEventBufferSize(c.EventBufferSize),
		WithClientBufferSize(c.ClientBufferSize),
		WithHeartbeatInterval(c.HeartbeatInterval),
		WithShutdownTimeout(c.ShutdownTimeout),
		WithMaxClients(c.MaxClients),
	}
}

// BrokerOption configures a broker.
type BrokerOption func(*broker)

func WithEventBufferSize(size int) BrokerOption {
	return func(b *broker) {
		if size > 0 {
			b.eventBufferSize = size
		}
	}
}

func WithClientBufferSize(size int) BrokerOption {
	return func(b *broker) {
		if size > 0 {
			b.clientBufferSize = size
		}
	}
}

func WithHeartbeatInterval(interval time.Duration) BrokerOption {
	return func(b *broker) {
		if interval > 0 {
			b.heartbeatInterval = interval
		}
	}
}

func WithShutdownTimeout(timeout time.Duration) BrokerOption {
	return func(b *broker) {
		if timeout > 0 {
			b.shutdownTimeout = timeout
		}
	}
}

// WithMaxClients caps concurrent subscriptions. Negative values are ignored.
func WithMaxClients(limit int) BrokerOption {
	return func(b *broker) {
		if limit >= 0 {
			b.maxClients = limit
		}
	}
}

// ClientOption configures a subscription.
type ClientOption func(*ClientOptions)

func WithFilter(filter EventFilter) ClientOption {
	return func(o *ClientOptions) {
		o.Filter = filter
	}
}

func WithBufferSize(size int) ClientOption {
	return func(o *ClientOptions) {
		if size > 0 {
			o.BufferSize = size
		}
	}
}
