package main

import (
	"context"
	"fmt"
	"os"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/resource-cache/infrastructure/config"
	infrahttp "github.com/jonesrussell/north-cloud/resource-cache/infrastructure/http"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/resource-cache/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/api"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/config"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/resourcecache"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage/filestore"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage/redisstore"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/telemetry"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
)

// Install gets a bounded window to seed the static partition.
const installTimeout = 2 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Initialize logger
	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	// Open partition storage
	provider, redisPing, closeStorage, err := openStorage(cfg, log)
	if err != nil {
		log.Error("Failed to open cache storage", logger.Error(err))
		return 1
	}
	defer closeStorage()

	return runServer(cfg, log, provider, redisPing)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := infraconfig.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// openStorage builds the provider for the configured driver. The ping
// function is nil unless the driver is redis.
func openStorage(cfg *config.Config, log logger.Logger) (storage.Provider, func() error, func(), error) {
	noop := func() {}

	switch cfg.Storage.Driver {
	case config.DriverFile:
		provider, err := filestore.New(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("open file storage: %w", err)
		}
		log.Info("Using file storage", logger.String("dir", provider.Dir()))
		return provider, nil, noop, nil

	case config.DriverRedis:
		client, err := infraredis.NewClient(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("Using redis storage",
			logger.String("address", cfg.Storage.Redis.Address),
			logger.String("key_prefix", cfg.Storage.KeyPrefix),
		)
		closeFn := func() { _ = client.Close() }
		return redisstore.New(client, cfg.Storage.KeyPrefix), infraredis.PingFunc(client), closeFn, nil

	default:
		log.Info("Using in-memory storage")
		return storage.NewMemoryProvider(), nil, noop, nil
	}
}

// runServer creates all dependencies, installs the cache and starts the HTTP server.
func runServer(cfg *config.Config, log logger.Logger, provider storage.Provider, redisPing func() error) int {
	client := infrahttp.NewClient(&infrahttp.ClientConfig{
		Timeout:             cfg.Upstream.Timeout,
		MaxIdleConnsPerHost: cfg.Upstream.MaxIdleConnsPerHost,
	})
	fetcher, err := upstream.NewHTTPFetcher(cfg.Upstream.OriginURL, client)
	if err != nil {
		log.Error("Failed to create origin fetcher", logger.Error(err))
		return 1
	}

	metrics := telemetry.New()

	broker := sse.NewBroker(log, cfg.Events.Options()...)
	if startErr := broker.Start(context.Background()); startErr != nil {
		log.Error("Failed to start event broker", logger.Error(startErr))
		return 1
	}

	manager, err := resourcecache.New(resourcecache.Config{
		Version:            cfg.Cache.Version,
		APIPrefix:          cfg.Cache.APIPrefix,
		Precache:           cfg.Cache.Precache,
		NavigationFallback: cfg.Cache.NavigationFallback,
		ImageMaxAge:        cfg.Cache.ImageMaxAge,
		SeedConcurrency:    cfg.Cache.SeedConcurrency,
	}, provider, fetcher,
		resourcecache.WithLogger(log),
		resourcecache.WithMetrics(metrics),
		resourcecache.WithNotifier(api.NewBrokerNotifier(broker)),
	)
	if err != nil {
		_ = broker.Stop()
		log.Error("Failed to create resource cache", logger.Error(err))
		return 1
	}

	if installErr := install(manager, cfg, log); installErr != nil {
		_ = broker.Stop()
		log.Error("Failed to install resource cache", logger.Error(installErr))
		return 1
	}

	server := api.NewServer(cfg, api.Dependencies{
		Manager:   manager,
		Broker:    broker,
		Metrics:   metrics,
		Logger:    log,
		RedisPing: redisPing,
	})
	server.OnDrain(func() { _ = broker.Stop() })
	server.OnShutdown(func(context.Context) { manager.Wait() })

	log.Info("Resource cache starting",
		logger.Int("port", cfg.Service.Port),
		logger.String("origin", cfg.Upstream.OriginURL),
		logger.String("version", cfg.Cache.Version),
	)

	if runErr := server.Run(); runErr != nil {
		log.Error("Server error", logger.Error(runErr))
		return 1
	}

	log.Info("Resource cache exited cleanly")
	return 0
}

// install seeds the static partition and, unless configured to wait for
// SKIP_WAITING, activates the new version.
func install(manager *resourcecache.Manager, cfg *config.Config, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), installTimeout)
	defer cancel()

	if _, err := manager.Install(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	if !cfg.Cache.ShouldAutoActivate() {
		log.Info("Waiting for SKIP_WAITING before activation")
		return nil
	}
	if err := manager.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}
