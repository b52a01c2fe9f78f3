package resourcecache

import (
	"context"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/cachekey"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/route"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
)

// Source tells where a response came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceNetwork  Source = "network"
	SourceFallback Source = "fallback"
)

// Result is the answer to an intercepted request.
type Result struct {
	Response *storage.Response
	Source   Source
	Route    route.Route
}

// Handle answers r. Before activation, and for anything but a plain GET
// (other methods, ranged GETs), the request goes straight to the network
// without touching a partition.
// Network failures are handled per route; storage failures and unrecovered
// network failures are returned.
func (m *Manager) Handle(ctx context.Context, r *http.Request) (*Result, error) {
	start := time.Now()

	res, err := m.handle(ctx, r)
	if err == nil {
		m.metrics.RecordRequest(string(res.Route), string(res.Source), time.Since(start))
	}
	return res, err
}

func (m *Manager) handle(ctx context.Context, r *http.Request) (*Result, error) {
	if !route.Cacheable(r) || !m.active() {
		resp, err := m.fetcher.Fetch(ctx, upstream.FromHTTP(r))
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp, Source: SourceNetwork, Route: route.Bypass}, nil
	}

	rt := route.Classify(r, m.cfg.APIPrefix)
	key := cachekey.Identity(r)
	req := &upstream.Request{
		Method: http.MethodGet,
		Target: r.URL.RequestURI(),
		Header: r.Header.Clone(),
	}

	part, err := m.provider.Open(ctx, m.names.For(rt))
	if err != nil {
		m.metrics.RecordStorageError("open")
		return nil, err
	}

	var res *Result
	switch rt {
	case route.Image:
		res, err = m.staleWhileRevalidate(ctx, part, key, req)
	case route.API:
		res, err = m.networkFirst(ctx, part, key, req)
	default:
		res, err = m.cacheFirst(ctx, part, key, req, acceptsHTML(r))
	}
	if err != nil {
		return nil, err
	}
	res.Route = rt
	return res, nil
}
