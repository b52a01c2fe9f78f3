package resourcecache_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/resourcecache"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/route"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = resourcecache.DefaultImageMaxAge

func TestHandle_PassThroughBeforeActive(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.origin.serve("/about.html", "text/html", "about")

	res := f.get(t, "/about.html")

	assert.Equal(t, resourcecache.SourceNetwork, res.Source)
	assert.Equal(t, route.Bypass, res.Route)
	assert.Equal(t, "about", string(res.Response.Body))

	names, err := f.provider.Names(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestHandle_PassThroughBeforeActivePropagatesNetworkError(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.origin.setOffline(true)

	_, err := f.do(t, http.MethodGet, "/api/leads")
	require.ErrorIs(t, err, upstream.ErrNetwork)
}

func TestHandle_NonGETBypassesPolicies(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/api/leads", "application/json", `{"id":7}`)

	res, err := f.do(t, http.MethodPost, "/api/leads")
	require.NoError(t, err)

	assert.Equal(t, route.Bypass, res.Route)
	assert.Equal(t, resourcecache.SourceNetwork, res.Source)
	assert.Nil(t, f.stored(t, "generic-v1", "/api/leads"))
}

func TestStatic_FetchedOnceThenServedFromCache(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/about.html", "text/html", "<h1>About</h1>")

	first := f.get(t, "/about.html")
	assert.Equal(t, route.Static, first.Route)
	assert.Equal(t, resourcecache.SourceNetwork, first.Source)
	assert.Empty(t, first.Response.Header.Get(storage.HeaderCachedAt))

	f.origin.setOffline(true)
	second := f.get(t, "/about.html")

	assert.Equal(t, resourcecache.SourceCache, second.Source)
	assert.Equal(t, "<h1>About</h1>", string(second.Response.Body))
	assert.Equal(t, 1, f.origin.callCount("/about.html"))
}

func TestStatic_CachedEntryNeverRevalidated(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/static/js/main.js", "text/javascript", "v1()")

	f.get(t, "/static/js/main.js")
	f.clock.Advance(365 * 24 * time.Hour)
	res := f.get(t, "/static/js/main.js")
	f.manager.Wait()

	assert.Equal(t, resourcecache.SourceCache, res.Source)
	assert.Equal(t, 1, f.origin.callCount("/static/js/main.js"))
}

func TestStatic_NonOKNotStored(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)

	res := f.get(t, "/missing.html")

	assert.Equal(t, http.StatusNotFound, res.Response.StatusCode)
	assert.Nil(t, f.stored(t, "static-v1", "/missing.html"))
}

func TestStatic_OfflineNavigationFallback(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.origin.serve("/index.html", "text/html", "<html>index</html>")
	_, err := f.manager.Install(context.Background())
	require.NoError(t, err)
	f.activate(t)
	f.origin.setOffline(true)

	res := f.get(t, "/projects/42", "Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	assert.Equal(t, resourcecache.SourceFallback, res.Source)
	assert.Equal(t, "<html>index</html>", string(res.Response.Body))
}

func TestStatic_OfflineNonHTMLPropagates(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.origin.serve("/index.html", "text/html", "<html>index</html>")
	_, err := f.manager.Install(context.Background())
	require.NoError(t, err)
	f.activate(t)
	f.origin.setOffline(true)

	_, err = f.do(t, http.MethodGet, "/static/css/other.css", "Accept", "text/css")
	require.ErrorIs(t, err, upstream.ErrNetwork)
}

func TestStatic_OfflineWithoutStoredFallbackPropagates(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.setOffline(true)

	_, err := f.do(t, http.MethodGet, "/contact", "Accept", "text/html")
	require.ErrorIs(t, err, upstream.ErrNetwork)
}

func TestAPI_StoresStampedCopyAndReturnsLive(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/api/projects", "application/json", `[1]`)

	res := f.get(t, "/api/projects")

	assert.Equal(t, route.API, res.Route)
	assert.Equal(t, resourcecache.SourceNetwork, res.Source)
	assert.Empty(t, res.Response.Header.Get(storage.HeaderCachedAt))

	stored := f.stored(t, "generic-v1", "/api/projects")
	require.NotNil(t, stored)
	_, ok := stored.CapturedAt()
	assert.True(t, ok)
}

func TestAPI_AlwaysTriesNetworkFirst(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/api/leads", "application/json", `"first"`)
	f.get(t, "/api/leads")

	f.origin.serve("/api/leads", "application/json", `"second"`)
	res := f.get(t, "/api/leads")

	assert.Equal(t, `"second"`, string(res.Response.Body))
	assert.Equal(t, 2, f.origin.callCount("/api/leads"))

	info, err := f.manager.CacheInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, info["generic-v1"].Size)
	assert.Equal(t, `"second"`, string(f.stored(t, "generic-v1", "/api/leads").Body))
}

func TestAPI_OfflineServesStoredCopy(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/api/testimonials", "application/json", `["great"]`)
	f.get(t, "/api/testimonials")
	f.origin.setOffline(true)

	res := f.get(t, "/api/testimonials")

	assert.Equal(t, resourcecache.SourceCache, res.Source)
	assert.Equal(t, `["great"]`, string(res.Response.Body))
}

func TestAPI_OfflineWithoutCacheReturns503(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.setOffline(true)

	res := f.get(t, "/api/leads")

	assert.Equal(t, resourcecache.SourceFallback, res.Source)
	assert.Equal(t, http.StatusServiceUnavailable, res.Response.StatusCode)
	assert.Equal(t, "application/json", res.Response.Header.Get("Content-Type"))

	var body resourcecache.OfflineBody
	require.NoError(t, json.Unmarshal(res.Response.Body, &body))
	assert.Equal(t, "offline", body.Error)
	assert.NotEmpty(t, body.Message)
	assert.Nil(t, f.stored(t, "generic-v1", "/api/leads"))
}

func TestAPI_NonOKReturnedNotStored(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)

	res := f.get(t, "/api/unknown")

	assert.Equal(t, http.StatusNotFound, res.Response.StatusCode)
	assert.Equal(t, resourcecache.SourceNetwork, res.Source)
	assert.Nil(t, f.stored(t, "generic-v1", "/api/unknown"))
}

func TestAPI_PrefixWinsOverImageDestination(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/api/projects/1/photo", "image/png", "png")

	res := f.get(t, "/api/projects/1/photo", imageDest, "image")

	assert.Equal(t, route.API, res.Route)
	assert.NotNil(t, f.stored(t, "generic-v1", "/api/projects/1/photo"))
	assert.Nil(t, f.stored(t, "images-v1", "/api/projects/1/photo"))
}

func TestImage_UnseenOfflineServesPlaceholder(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.setOffline(true)

	res := f.get(t, "/images/kitchen.jpg", imageDest, "image")

	assert.Equal(t, route.Image, res.Route)
	assert.Equal(t, resourcecache.SourceFallback, res.Source)
	assert.Equal(t, http.StatusOK, res.Response.StatusCode)
	assert.Equal(t, "image/svg+xml", res.Response.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", res.Response.Header.Get("Cache-Control"))
	body := string(res.Response.Body)
	assert.Contains(t, body, `width="400"`)
	assert.Contains(t, body, `height="300"`)
	assert.Contains(t, body, "#e5e7eb")
	assert.Contains(t, body, "Image not available")
	assert.Nil(t, f.stored(t, "images-v1", "/images/kitchen.jpg"))
}

func TestImage_NonOKNotStored(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)

	res := f.get(t, "/images/gone.png", imageDest, "image")

	assert.Equal(t, http.StatusNotFound, res.Response.StatusCode)
	assert.Nil(t, f.stored(t, "images-v1", "/images/gone.png"))
}

func TestImage_FreshEntryNotRevalidated(t *testing.T) {
	for _, elapsed := range []time.Duration{0, window} {
		t.Run(elapsed.String(), func(t *testing.T) {
			f := newFixture(t, resourcecache.Config{})
			f.activate(t)
			f.origin.serve("/images/a.png", "image/png", "old")
			f.get(t, "/images/a.png", imageDest, "image")

			f.clock.Advance(elapsed)
			res := f.get(t, "/images/a.png", imageDest, "image")
			f.manager.Wait()

			assert.Equal(t, resourcecache.SourceCache, res.Source)
			assert.Equal(t, "old", string(res.Response.Body))
			assert.Equal(t, 1, f.origin.callCount("/images/a.png"))
		})
	}
}

func TestImage_StaleEntryServedThenRevalidated(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/images/a.png", "image/png", "old")
	f.get(t, "/images/a.png", imageDest, "image")

	f.origin.serve("/images/a.png", "image/png", "new")
	f.clock.Advance(window + time.Millisecond)
	res := f.get(t, "/images/a.png", imageDest, "image")

	assert.Equal(t, resourcecache.SourceCache, res.Source)
	assert.Equal(t, "old", string(res.Response.Body))

	f.manager.Wait()
	assert.Equal(t, 2, f.origin.callCount("/images/a.png"))

	stored := f.stored(t, "images-v1", "/images/a.png")
	require.NotNil(t, stored)
	assert.Equal(t, "new", string(stored.Body))
	at, ok := stored.CapturedAt()
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().UnixMilli(), at.UnixMilli())
}

func TestImage_RevalidationFailureKeepsEntry(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/images/a.png", "image/png", "old")
	f.get(t, "/images/a.png", imageDest, "image")

	f.origin.setOffline(true)
	f.clock.Advance(window + time.Hour)
	res := f.get(t, "/images/a.png", imageDest, "image")
	f.manager.Wait()

	assert.Equal(t, "old", string(res.Response.Body))
	assert.Equal(t, "old", string(f.stored(t, "images-v1", "/images/a.png").Body))
}

func TestImage_UnstampedEntryNeverRevalidated(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.put(t, "images-v1", "/images/legacy.png", &storage.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"image/png"}},
		Body:       []byte("legacy"),
	})

	f.clock.Advance(10 * window)
	res := f.get(t, "/images/legacy.png", imageDest, "image")
	f.manager.Wait()

	assert.Equal(t, "legacy", string(res.Response.Body))
	assert.Equal(t, 0, f.origin.callCount("/images/legacy.png"))
}

func TestImage_RevalidationOutlivesRequest(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/images/a.png", "image/png", "old")
	f.get(t, "/images/a.png", imageDest, "image")

	f.origin.serve("/images/a.png", "image/png", "new")
	gate := make(chan struct{})
	f.origin.setGate(gate)
	f.clock.Advance(window + time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/images/a.png", http.NoBody).WithContext(ctx)
	req.Header.Set(imageDest, "image")
	res, err := f.manager.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "old", string(res.Response.Body))

	cancel()
	close(gate)
	f.manager.Wait()

	assert.Equal(t, "new", string(f.stored(t, "images-v1", "/images/a.png").Body))
}

func TestImage_ConcurrentStaleHitsAreNotDeduplicated(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/images/a.png", "image/png", "old")
	f.get(t, "/images/a.png", imageDest, "image")

	gate := make(chan struct{})
	f.origin.setGate(gate)
	f.clock.Advance(window + time.Millisecond)

	f.get(t, "/images/a.png", imageDest, "image")
	f.get(t, "/images/a.png", imageDest, "image")
	close(gate)
	f.manager.Wait()

	assert.Equal(t, 3, f.origin.callCount("/images/a.png"))
}

func TestHandle_StorageFailurePropagates(t *testing.T) {
	storageErr := assert.AnError
	f := newFixtureWithProvider(t, resourcecache.Config{}, &brokenProvider{
		MemoryProvider: storage.NewMemoryProvider(),
		err:            storageErr,
	})
	f.activate(t)
	f.origin.serve("/about.html", "text/html", "x")
	f.origin.serve("/api/leads", "application/json", "[]")

	for _, target := range []string{"/about.html", "/api/leads"} {
		_, err := f.do(t, http.MethodGet, target)
		require.ErrorIs(t, err, storageErr, target)
		assert.NotErrorIs(t, err, upstream.ErrNetwork, target)
	}

	_, err := f.do(t, http.MethodGet, "/images/a.png", imageDest, "image")
	require.ErrorIs(t, err, storageErr)
}

func TestHandle_IdentityNormalizesQuery(t *testing.T) {
	f := newFixture(t, resourcecache.Config{})
	f.activate(t)
	f.origin.serve("/search.html?b=2&a=1&utm_source=mail", "text/html", "results")

	f.get(t, "/search.html?b=2&a=1&utm_source=mail")
	f.origin.setOffline(true)
	res := f.get(t, "/search.html?a=1&b=2")

	assert.Equal(t, resourcecache.SourceCache, res.Source)
	assert.Equal(t, "results", string(res.Response.Body))
}
