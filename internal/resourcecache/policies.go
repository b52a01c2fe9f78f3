package resourcecache

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/route"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
)

// staleWhileRevalidate serves any cached image immediately and refreshes it
// in the background once it is older than the freshness window.
func (m *Manager) staleWhileRevalidate(ctx context.Context, part storage.Partition, key string, req *upstream.Request) (*Result, error) {
	cached, err := m.match(ctx, part, key)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if m.isStale(cached) {
			m.revalidate(ctx, part, key, req)
		}
		return &Result{Response: cached, Source: SourceCache}, nil
	}

	resp, err := m.fetchAndCache(ctx, route.Image, part, key, req)
	if errors.Is(err, upstream.ErrNetwork) {
		m.logFor(ctx).Debug("Image fetch failed, serving placeholder",
			logger.String("identity", key),
			logger.Error(err),
		)
		return &Result{Response: placeholderImage(), Source: SourceFallback}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Response: resp, Source: SourceNetwork}, nil
}

// networkFirst prefers a live response and falls back to the last stored
// one, then to a synthetic offline response.
func (m *Manager) networkFirst(ctx context.Context, part storage.Partition, key string, req *upstream.Request) (*Result, error) {
	resp, err := m.fetchAndCache(ctx, route.API, part, key, req)
	if err == nil {
		return &Result{Response: resp, Source: SourceNetwork}, nil
	}
	if !errors.Is(err, upstream.ErrNetwork) {
		return nil, err
	}

	cached, matchErr := m.match(ctx, part, key)
	if matchErr != nil {
		return nil, matchErr
	}
	if cached != nil {
		return &Result{Response: cached, Source: SourceCache}, nil
	}

	m.logFor(ctx).Debug("API offline with no stored response",
		logger.String("identity", key),
		logger.Error(err),
	)
	return &Result{Response: offlineResponse(), Source: SourceFallback}, nil
}

// cacheFirst serves a stored copy without contacting the network. On a miss
// it fetches and stores. HTML requests that cannot reach the network get the
// stored navigation fallback.
func (m *Manager) cacheFirst(ctx context.Context, part storage.Partition, key string, req *upstream.Request, html bool) (*Result, error) {
	cached, err := m.match(ctx, part, key)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return &Result{Response: cached, Source: SourceCache}, nil
	}

	resp, err := m.fetchAndCache(ctx, route.Static, part, key, req)
	if err == nil {
		return &Result{Response: resp, Source: SourceNetwork}, nil
	}
	if !errors.Is(err, upstream.ErrNetwork) || !html {
		return nil, err
	}

	fallback, matchErr := m.match(ctx, part, m.fallbackKey)
	if matchErr != nil {
		return nil, matchErr
	}
	if fallback == nil {
		return nil, err
	}
	return &Result{Response: fallback, Source: SourceFallback}, nil
}

// fetchAndCache fetches req and stores a stamped copy of the response when
// it is safe to share between clients. The caller receives the original,
// unstamped response.
func (m *Manager) fetchAndCache(ctx context.Context, rt route.Route, part storage.Partition, key string, req *upstream.Request) (*storage.Response, error) {
	resp, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	ok, reason := storeDecision(rt, req, resp)
	if !ok {
		if reason != reasonNotOK {
			m.metrics.RecordStoreSkipped(string(rt), reason)
			m.logFor(ctx).Debug("Response not stored",
				logger.String("identity", key),
				logger.String("reason", reason),
			)
		}
		return resp, nil
	}

	if err := part.Put(ctx, key, storedCopy(resp, m.now())); err != nil {
		m.metrics.RecordStorageError("put")
		return nil, fmt.Errorf("store %s in %s: %w", key, part.Name(), err)
	}
	return resp, nil
}

// match returns nil, nil on a miss.
func (m *Manager) match(ctx context.Context, part storage.Partition, key string) (*storage.Response, error) {
	resp, err := part.Match(ctx, key)
	if errors.Is(err, storage.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		m.metrics.RecordStorageError("match")
		return nil, fmt.Errorf("match %s in %s: %w", key, part.Name(), err)
	}
	return resp, nil
}

// isStale is false for entries without a readable capture stamp.
func (m *Manager) isStale(resp *storage.Response) bool {
	at, ok := resp.CapturedAt()
	if !ok {
		return false
	}
	return m.now().Sub(at) > m.cfg.ImageMaxAge
}

func acceptsHTML(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "text/html" {
			return true
		}
	}
	return false
}
