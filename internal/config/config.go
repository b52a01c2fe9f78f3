package config

import (
	"fmt"
	"net/url"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/resource-cache/infrastructure/config"
	infraredis "github.com/jonesrussell/north-cloud/resource-cache/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/sse"
)

// Default configuration values.
const (
	defaultServiceName     = "resource-cache"
	defaultServicePort     = 8098
	defaultVersion         = "0.1.0"
	defaultShutdownTimeout = 30 * time.Second
	defaultOriginURL       = "http://localhost:3000"
	defaultCacheVersion    = "v1"
	defaultAPIPrefix       = "/api/"
	defaultNavFallback     = "/index.html"
	defaultImageMaxAge     = 7 * 24 * time.Hour
	defaultSeedConcurrency = 4
	defaultStorageDriver   = DriverMemory
	defaultStorageDir      = "./cache"
	defaultKeyPrefix       = "resource-cache"
	defaultLoggingLevel    = "info"
	defaultLoggingFmt      = "json"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Config holds the application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	Events   sse.Config     `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Port            int           `env:"RESOURCE_CACHE_PORT" yaml:"port"`
	Debug           bool          `env:"APP_DEBUG"           yaml:"debug"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig describes the origin that serves the site and its API.
type UpstreamConfig struct {
	OriginURL string `env:"RESOURCE_CACHE_ORIGIN_URL" yaml:"origin_url"`
	// Timeout of zero means fetches are never cut short.
	Timeout             time.Duration `yaml:"timeout"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
}

// CacheConfig controls partitions and caching policies.
type CacheConfig struct {
	Version            string        `env:"RESOURCE_CACHE_VERSION" yaml:"version"`
	APIPrefix          string        `yaml:"api_prefix"`
	Precache           []string      `yaml:"precache"`
	NavigationFallback string        `yaml:"navigation_fallback"`
	ImageMaxAge        time.Duration `yaml:"image_max_age"`
	SeedConcurrency    int           `yaml:"seed_concurrency"`
	// AutoActivate activates right after install. Defaults to true; with
	// false the service waits for a SKIP_WAITING message.
	AutoActivate *bool `yaml:"auto_activate"`
}

// ShouldAutoActivate reports the effective auto_activate setting.
func (c CacheConfig) ShouldAutoActivate() bool {
	return c.AutoActivate == nil || *c.AutoActivate
}

// StorageConfig selects and configures the partition backend.
type StorageConfig struct {
	Driver    string            `env:"RESOURCE_CACHE_STORAGE_DRIVER" yaml:"driver"`
	Dir       string            `env:"RESOURCE_CACHE_STORAGE_DIR"    yaml:"dir"`
	KeyPrefix string            `yaml:"key_prefix"`
	Redis     infraredis.Config `yaml:"redis"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	if cfg.Upstream.OriginURL == "" {
		cfg.Upstream.OriginURL = defaultOriginURL
	}
	setCacheDefaults(&cfg.Cache)
	setStorageDefaults(&cfg.Storage)
	setEventDefaults(&cfg.Events)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLoggingFmt
	}
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.ShutdownTimeout == 0 {
		svc.ShutdownTimeout = defaultShutdownTimeout
	}
}

func setCacheDefaults(c *CacheConfig) {
	if c.Version == "" {
		c.Version = defaultCacheVersion
	}
	if c.APIPrefix == "" {
		c.APIPrefix = defaultAPIPrefix
	}
	if c.NavigationFallback == "" {
		c.NavigationFallback = defaultNavFallback
	}
	if c.ImageMaxAge == 0 {
		c.ImageMaxAge = defaultImageMaxAge
	}
	if c.SeedConcurrency == 0 {
		c.SeedConcurrency = defaultSeedConcurrency
	}
}

func setStorageDefaults(s *StorageConfig) {
	if s.Driver == "" {
		s.Driver = defaultStorageDriver
	}
	if s.Dir == "" {
		s.Dir = defaultStorageDir
	}
	if s.KeyPrefix == "" {
		s.KeyPrefix = defaultKeyPrefix
	}
}

func setEventDefaults(e *sse.Config) {
	if e.EventBufferSize == 0 {
		e.EventBufferSize = sse.DefaultEventBufferSize
	}
	if e.ClientBufferSize == 0 {
		e.ClientBufferSize = sse.DefaultClientBufferSize
	}
	if e.HeartbeatInterval == 0 {
		e.HeartbeatInterval = sse.DefaultHeartbeatInterval
	}
	if e.ShutdownTimeout == 0 {
		e.ShutdownTimeout = sse.DefaultShutdownTimeout
	}
	if e.MaxClients == 0 {
		e.MaxClients = sse.DefaultMaxClients
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := validateOrigin(c.Upstream.OriginURL); err != nil {
		return err
	}
	if c.Upstream.Timeout < 0 {
		return &infraconfig.ValidationError{Field: "upstream.timeout", Message: "must not be negative"}
	}
	if c.Cache.ImageMaxAge < 0 {
		return &infraconfig.ValidationError{Field: "cache.image_max_age", Message: "must not be negative"}
	}
	if c.Cache.APIPrefix[0] != '/' {
		return &infraconfig.ValidationError{Field: "cache.api_prefix", Message: "must start with /"}
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return infraconfig.ValidateLogLevel(c.Logging.Level)
}

func (c *Config) validateStorage() error {
	if err := infraconfig.ValidateOneOf("storage.driver", c.Storage.Driver,
		DriverMemory, DriverFile, DriverRedis); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case DriverFile:
		return infraconfig.ValidateRequired("storage.dir", c.Storage.Dir)
	case DriverRedis:
		return infraconfig.ValidateRequired("storage.redis.address", c.Storage.Redis.Address)
	default:
		return nil
	}
}

func validateOrigin(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &infraconfig.ValidationError{
			Field:   "upstream.origin_url",
			Message: fmt.Sprintf("must be an absolute URL, got %q", raw),
		}
	}
	return nil
}
