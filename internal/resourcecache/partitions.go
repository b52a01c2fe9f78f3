package resourcecache

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/route"
)

// Partition kinds.
const (
	KindStatic  = "static"
	KindImages  = "images"
	KindGeneric = "generic"
)

// Names holds the current versioned partition names.
type Names struct {
	Static  string
	Images  string
	Generic string
}

// NamesFor returns the partition names for version, e.g. "static-v1".
func NamesFor(version string) Names {
	return Names{
		Static:  KindStatic + "-" + version,
		Images:  KindImages + "-" + version,
		Generic: KindGeneric + "-" + version,
	}
}

// All lists the names in static, images, generic order.
func (n Names) All() []string {
	return []string{n.Static, n.Images, n.Generic}
}

// Contains reports whether name is current.
func (n Names) Contains(name string) bool {
	return name == n.Static || name == n.Images || name == n.Generic
}

// For returns the partition serving r.
func (n Names) For(r route.Route) string {
	switch r {
	case route.Image:
		return n.Images
	case route.API:
		return n.Generic
	default:
		return n.Static
	}
}

// purge deletes every partition that is not current and returns the deleted names.
func (m *Manager) purge(ctx context.Context) ([]string, error) {
	existing, err := m.provider.Names(ctx)
	if err != nil {
		m.metrics.RecordStorageError("names")
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	var deleted []string
	for _, name := range existing {
		if m.names.Contains(name) {
			continue
		}
		ok, delErr := m.provider.Delete(ctx, name)
		if delErr != nil {
			m.metrics.RecordStorageError("delete_partition")
			return deleted, fmt.Errorf("delete partition %s: %w", name, delErr)
		}
		if ok {
			deleted = append(deleted, name)
			m.log.Info("Purged obsolete partition", logger.String("partition", name))
		}
	}

	m.metrics.RecordPurge(len(deleted))
	return deleted, nil
}
