package resourcecache

import (
	"context"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/route"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/upstream"
)

// revalidate refreshes key in a detached goroutine. It is not tied to the
// request's cancellation and its errors are discarded. Concurrent
// revalidations of one key are not deduplicated; the last write wins.
func (m *Manager) revalidate(ctx context.Context, part storage.Partition, key string, req *upstream.Request) {
	detached := context.WithoutCancel(ctx)
	log := m.logFor(ctx)

	m.revalidations.Add(1)
	go func() {
		defer m.revalidations.Done()

		resp, err := m.fetchAndCache(detached, route.Image, part, key, req)
		switch {
		case err != nil:
			log.Debug("Background revalidation failed", logger.String("identity", key), logger.Error(err))
			m.metrics.RecordRevalidation(false)
		case !resp.OK():
			log.Debug("Background revalidation got non-ok status",
				logger.String("identity", key),
				logger.Int("status", resp.StatusCode),
			)
			m.metrics.RecordRevalidation(false)
		default:
			m.metrics.RecordRevalidation(true)
		}
	}()
}
