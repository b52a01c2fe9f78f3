package resourcecache_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/resourcecache"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
	"github.com/stretchr/testify/require"
)

// fakeOrigin serves canned responses by request target.
type fakeOrigin struct {
	mu        sync.Mutex
	responses map[string]*storage.Response
	failures  map[string]error
	calls     map[string]int
	offline   bool
	gate      chan struct{}
}

func newFakeOrigin() *fakeOrigin {
	return &fakeOrigin{
		responses: make(map[string]*storage.Response),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (o *fakeOrigin) Fetch(ctx context.Context, req *upstream.Request) (*storage.Response, error) {
	o.mu.Lock()
	o.calls[req.Target]++
	resp := o.responses[req.Target]
	failure := o.failures[req.Target]
	offline := o.offline
	gate := o.gate
	o.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", upstream.ErrNetwork, ctx.Err())
		}
	}

	switch {
	case offline:
		return nil, fmt.Errorf("%w: connection refused", upstream.ErrNetwork)
	case failure != nil:
		return nil, failure
	case resp == nil:
		return &storage.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	default:
		return resp.Clone(), nil
	}
}

func (o *fakeOrigin) serve(target, contentType, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses[target] = &storage.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       []byte(body),
	}
}

func (o *fakeOrigin) serveWith(target string, status int, header http.Header, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses[target] = &storage.Response{StatusCode: status, Header: header, Body: []byte(body)}
}

func (o *fakeOrigin) fail(target string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[target] = err
}

func (o *fakeOrigin) setOffline(offline bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.offline = offline
}

func (o *fakeOrigin) setGate(gate chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gate = gate
}

func (o *fakeOrigin) callCount(target string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[target]
}

func (o *fakeOrigin) totalCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, n := range o.calls {
		total += n
	}
	return total
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	origin   *fakeOrigin
	provider storage.Provider
	clock    *fakeClock
	manager  *resourcecache.Manager

	mu      sync.Mutex
	updates []resourcecache.Update
}

func newFixture(t *testing.T, cfg resourcecache.Config) *fixture {
	t.Helper()
	return newFixtureWithProvider(t, cfg, storage.NewMemoryProvider())
}

func newFixtureWithProvider(t *testing.T, cfg resourcecache.Config, provider storage.Provider) *fixture {
	t.Helper()

	f := &fixture{
		origin:   newFakeOrigin(),
		provider: provider,
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	notifier := resourcecache.NotifierFunc(func(_ context.Context, u resourcecache.Update) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.updates = append(f.updates, u)
		return nil
	})

	m, err := resourcecache.New(cfg, provider, f.origin,
		resourcecache.WithClock(f.clock.Now),
		resourcecache.WithNotifier(notifier),
	)
	require.NoError(t, err)
	f.manager = m
	t.Cleanup(m.Wait)
	return f
}

func (f *fixture) activate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Activate(context.Background()))
	require.Equal(t, resourcecache.StateActive, f.manager.State())
}

func (f *fixture) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

// do issues a request; headers are name, value pairs.
func (f *fixture) do(t *testing.T, method, target string, headers ...string) (*resourcecache.Result, error) {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return f.manager.Handle(context.Background(), req)
}

func (f *fixture) get(t *testing.T, target string, headers ...string) *resourcecache.Result {
	t.Helper()
	res, err := f.do(t, http.MethodGet, target, headers...)
	require.NoError(t, err)
	return res
}

func (f *fixture) stored(t *testing.T, partition, key string) *storage.Response {
	t.Helper()
	part, err := f.provider.Open(context.Background(), partition)
	require.NoError(t, err)
	resp, err := part.Match(context.Background(), key)
	if err != nil {
		require.ErrorIs(t, err, storage.ErrEntryNotFound)
		return nil
	}
	return resp
}

func (f *fixture) put(t *testing.T, partition, key string, resp *storage.Response) {
	t.Helper()
	part, err := f.provider.Open(context.Background(), partition)
	require.NoError(t, err)
	require.NoError(t, part.Put(context.Background(), key, resp))
}

const imageDest = "Sec-Fetch-Dest"

// brokenProvider fails every partition read and write.
type brokenProvider struct {
	*storage.MemoryProvider
	err error
}

func (p *brokenProvider) Open(ctx context.Context, name string) (storage.Partition, error) {
	part, err := p.MemoryProvider.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &brokenPartition{Partition: part, err: p.err}, nil
}

type brokenPartition struct {
	storage.Partition
	err error
}

func (p *brokenPartition) Match(context.Context, string) (*storage.Response, error) {
	return nil, p.err
}

func (p *brokenPartition) Put(context.Context, string, *storage.Response) error {
	return p.err
}

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)
