package resourcecache

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/cachekey"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/route"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
	"golang.org/x/sync/errgroup"
)

// SeedFailure records one precache entry that could not be stored.
type SeedFailure struct {
	Identity string `json:"identity"`
	Error    string `json:"error"`
}

// SeedReport is the outcome of Install.
type SeedReport struct {
	Seeded []string      `json:"seeded"`
	Failed []SeedFailure `json:"failed"`
}

func (m *Manager) seed(ctx context.Context) (*SeedReport, error) {
	part, err := m.provider.Open(ctx, m.names.Static)
	if err != nil {
		m.metrics.RecordStorageError("open")
		return nil, fmt.Errorf("open %s: %w", m.names.Static, err)
	}

	var (
		mu     sync.Mutex
		report = &SeedReport{Seeded: []string{}, Failed: []SeedFailure{}}
	)

	var g errgroup.Group
	g.SetLimit(m.cfg.SeedConcurrency)

	for _, target := range m.cfg.Precache {
		g.Go(func() error {
			key, seedErr := m.seedOne(ctx, part, target)

			mu.Lock()
			defer mu.Unlock()
			if seedErr != nil {
				report.Failed = append(report.Failed, SeedFailure{Identity: key, Error: seedErr.Error()})
				m.log.Warn("Failed to precache entry", logger.String("identity", key), logger.Error(seedErr))
			} else {
				report.Seeded = append(report.Seeded, key)
			}
			m.metrics.RecordSeed(seedErr == nil)
			// Entries are independent; a failure never cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Seeded)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Identity < report.Failed[j].Identity })
	return report, nil
}

func (m *Manager) seedOne(ctx context.Context, part storage.Partition, target string) (string, error) {
	key, err := cachekey.Parse(target)
	if err != nil {
		return target, fmt.Errorf("parse precache target: %w", err)
	}

	req := &upstream.Request{
		Method: http.MethodGet,
		Target: key,
		Header: http.Header{},
	}
	resp, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		return key, err
	}
	if !resp.OK() {
		return key, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ok, reason := storeDecision(route.Static, req, resp); !ok {
		return key, fmt.Errorf("response not storable: %s", reason)
	}

	if err := part.Put(ctx, key, storedCopy(resp, m.now())); err != nil {
		m.metrics.RecordStorageError("put")
		return key, fmt.Errorf("store: %w", err)
	}
	return key, nil
}
