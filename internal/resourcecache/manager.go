// Package resourcecache implements the offline-first resource cache: a
// lifecycle state machine over versioned partitions and three caching
// policies selected per request route.
package resourcecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/cachekey"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/telemetry"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
)

// State is the lifecycle state of a Manager.
type State string

const (
	StateInstalling State = "installing"
	StateActivating State = "activating"
	StateActive     State = "active"
)

var allStates = []string{string(StateInstalling), string(StateActivating), string(StateActive)}

// ErrInstallInProgress is returned when Install is called while seeding runs.
var ErrInstallInProgress = errors.New("install already in progress")

// ErrNotInstalling is returned when Install is called after activation started.
var ErrNotInstalling = errors.New("manager is no longer installing")

// Update announces that a cache version became active.
type Update struct {
	Version string
	At      time.Time
}

// Notifier delivers CACHE_UPDATED to connected pages.
type Notifier interface {
	NotifyUpdated(ctx context.Context, u Update) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, u Update) error

func (f NotifierFunc) NotifyUpdated(ctx context.Context, u Update) error {
	return f(ctx, u)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithMetrics records lifecycle and request metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithNotifier sets the CACHE_UPDATED receiver.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns the cache lifecycle and answers intercepted requests.
// It is safe for concurrent use.
type Manager struct {
	cfg      Config
	names    Names
	provider storage.Provider
	fetcher  upstream.Fetcher
	notifier Notifier
	metrics  *telemetry.Metrics
	log      logger.Logger
	now      func() time.Time

	fallbackKey string

	mu            sync.Mutex
	state         State
	seeding       bool
	skipRequested bool

	// activateMu serializes Activate so concurrent callers observe a completed purge.
	activateMu sync.Mutex

	revalidations sync.WaitGroup
}

// New returns a manager in the installing state.
func New(cfg Config, provider storage.Provider, fetcher upstream.Fetcher, opts ...Option) (*Manager, error) {
	if provider == nil {
		return nil, errors.New("storage provider is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	fallbackKey, err := cachekey.Parse(cfg.NavigationFallback)
	if err != nil {
		return nil, fmt.Errorf("invalid navigation fallback: %w", err)
	}

	m := &Manager{
		cfg:         cfg,
		fallbackKey: fallbackKey,
		names:       NamesFor(cfg.Version),
		provider:    provider,
		fetcher:     fetcher,
		log:         logger.NewNop(),
		now:         time.Now,
		state:       StateInstalling,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.String("cache_version", cfg.Version))
	m.metrics.SetState(string(StateInstalling), allStates...)

	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Names returns the current partition names.
func (m *Manager) Names() Names {
	return m.names
}

// Version returns the configured cache version.
func (m *Manager) Version() string {
	return m.cfg.Version
}

// Install seeds the static partition from the precache list. Every entry is
// fetched independently; failures are reported, never fatal. If SkipWaiting
// was called during seeding, Install activates before returning.
func (m *Manager) Install(ctx context.Context) (*SeedReport, error) {
	m.mu.Lock()
	switch {
	case m.state != StateInstalling:
		m.mu.Unlock()
		return nil, ErrNotInstalling
	case m.seeding:
		m.mu.Unlock()
		return nil, ErrInstallInProgress
	}
	m.seeding = true
	m.mu.Unlock()

	report, err := m.seed(ctx)

	m.mu.Lock()
	m.seeding = false
	skip := m.skipRequested
	m.skipRequested = false
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	m.log.Info("Install complete",
		logger.Int("seeded", len(report.Seeded)),
		logger.Int("failed", len(report.Failed)),
	)

	if skip {
		if actErr := m.Activate(ctx); actErr != nil {
			return report, actErr
		}
	}
	return report, nil
}

// Activate purges obsolete partitions, then starts serving from the cache
// and notifies pages. Requests keep passing through to the network until
// the purge completes. Calling Activate on an active manager is a no-op.
func (m *Manager) Activate(ctx context.Context) error {
	m.activateMu.Lock()
	defer m.activateMu.Unlock()

	m.mu.Lock()
	if m.state == StateActive {
		m.mu.Unlock()
		return nil
	}
	m.state = StateActivating
	m.mu.Unlock()
	m.metrics.SetState(string(StateActivating), allStates...)

	deleted, err := m.purge(ctx)
	if err != nil {
		m.setState(StateInstalling)
		return fmt.Errorf("activate: %w", err)
	}

	m.setState(StateActive)
	m.log.Info("Cache activated",
		logger.Strings("partitions", m.names.All()),
		logger.Strings("purged", deleted),
	)

	if m.notifier != nil {
		update := Update{Version: m.cfg.Version, At: m.now()}
		if notifyErr := m.notifier.NotifyUpdated(ctx, update); notifyErr != nil {
			m.log.Warn("Failed to publish cache update", logger.Error(notifyErr))
		}
	}
	return nil
}

// SkipWaiting activates an installing manager. If seeding is still running,
// activation happens as soon as it completes.
func (m *Manager) SkipWaiting(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateInstalling {
		m.mu.Unlock()
		return nil
	}
	if m.seeding {
		m.skipRequested = true
		m.mu.Unlock()
		m.log.Debug("Skip waiting deferred until seeding completes")
		return nil
	}
	m.mu.Unlock()

	return m.Activate(ctx)
}

// Wait blocks until in-flight background revalidations finish.
func (m *Manager) Wait() {
	m.revalidations.Wait()
}

// logFor prefers the request-scoped logger carried by ctx.
func (m *Manager) logFor(ctx context.Context) logger.Logger {
	return logger.FromContextOr(ctx, m.log)
}

func (m *Manager) active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateActive
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.metrics.SetState(string(s), allStates...)
}

// Status summarizes the manager for operators.
type Status struct {
	State      State    `json:"state"`
	Version    string   `json:"version"`
	Current    []string `json:"current"`
	Partitions []string `json:"partitions"`
}

// Status reports the lifecycle state and the partitions that exist.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	existing, err := m.provider.Names(ctx)
	if err != nil {
		m.metrics.RecordStorageError("names")
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	return &Status{
		State:      m.State(),
		Version:    m.cfg.Version,
		Current:    m.names.All(),
		Partitions: existing,
	}, nil
}

// ClearPartition deletes one partition by name.
func (m *Manager) ClearPartition(ctx context.Context, name string) (bool, error) {
	deleted, err := m.provider.Delete(ctx, name)
	if err != nil {
		m.metrics.RecordStorageError("delete_partition")
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}
	if deleted {
		m.log.Info("Partition cleared", logger.String("partition", name))
	}
	return deleted, nil
}
