// Package telemetry exports Prometheus metrics for the resource cache.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resource_cache"

// Result label values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds all resource cache collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Revalidations    *prometheus.CounterVec
	SeedEntries      *prometheus.CounterVec
	PartitionsPurged prometheus.Counter
	StorageErrors    *prometheus.CounterVec
	StoresSkipped    *prometheus.CounterVec
	LifecycleState   *prometheus.GaugeVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers collectors on reg only.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Intercepted requests by route and response source",
		}, []string{"route", "source"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time to answer an intercepted request",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),

		Revalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revalidations_total",
			Help:      "Background revalidations of stale image entries",
		}, []string{"result"}),

		SeedEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seed_entries_total",
			Help:      "Precache entries attempted during install",
		}, []string{"result"}),

		PartitionsPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_purged_total",
			Help:      "Obsolete partitions deleted during activation",
		}),

		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Partition storage failures by operation",
		}, []string{"op"}),

		StoresSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stores_skipped_total",
			Help:      "Ok responses kept out of the partitions, by route and reason",
		}, []string{"route", "reason"}),

		LifecycleState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_state",
			Help:      "1 for the current lifecycle state, 0 otherwise",
		}, []string{"state"}),
	}
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordRequest(route, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, source).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) RecordRevalidation(ok bool) {
	if m == nil {
		return
	}
	m.Revalidations.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) RecordSeed(ok bool) {
	if m == nil {
		return
	}
	m.SeedEntries.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) RecordPurge(count int) {
	if m == nil {
		return
	}
	m.PartitionsPurged.Add(float64(count))
}

func (m *Metrics) RecordStorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordStoreSkipped(route, reason string) {
	if m == nil {
		return
	}
	m.StoresSkipped.WithLabelValues(route, reason).Inc()
}

// SetState marks current as the only active lifecycle state among all.
func (m *Metrics) SetState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.LifecycleState.WithLabelValues(s).Set(0)
	}
	m.LifecycleState.WithLabelValues(current).Set(1)
}

func result(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultFailed
}
