package telemetry_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := telemetry.NewWithRegistry(prometheus.NewRegistry())

	m.RecordRequest("static", "cache", 3*time.Millisecond)
	m.RecordRequest("static", "cache", time.Millisecond)
	m.RecordRequest("api", "network", time.Millisecond)
	m.RecordRevalidation(true)
	m.RecordRevalidation(false)
	m.RecordSeed(false)
	m.RecordPurge(2)
	m.RecordStorageError("put")
	m.RecordStoreSkipped("api", "cache_control")

	assert.InDelta(t, 2, testutil.ToFloat64(m.Requests.WithLabelValues("static", "cache")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("api", "network")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Revalidations.WithLabelValues(telemetry.ResultFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SeedEntries.WithLabelValues(telemetry.ResultFailed)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.PartitionsPurged), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StorageErrors.WithLabelValues("put")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoresSkipped.WithLabelValues("api", "cache_control")), 0)
}

func TestMetrics_SetState(t *testing.T) {
	m := telemetry.NewWithRegistry(prometheus.NewRegistry())
	states := []string{"installing", "activating", "active"}

	m.SetState("installing", states...)
	m.SetState("active", states...)

	assert.InDelta(t, 0, testutil.ToFloat64(m.LifecycleState.WithLabelValues("installing")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LifecycleState.WithLabelValues("active")), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("image", "fallback", time.Second)
		m.RecordRevalidation(true)
		m.RecordSeed(true)
		m.RecordPurge(1)
		m.RecordStorageError("match")
		m.RecordStoreSkipped("static", "vary")
		m.SetState("active")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := telemetry.New()
	m.RecordRequest("static", "network", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `resource_cache_requests_total{route="static",source="network"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
