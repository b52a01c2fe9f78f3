package resourcecache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
)

// MessageType names a page-to-service message.
type MessageType string

const (
	MessageSkipWaiting  MessageType = "SKIP_WAITING"
	MessageGetCacheInfo MessageType = "GET_CACHE_INFO"
	// MessageCacheUpdated flows from the service to pages only.
	MessageCacheUpdated MessageType = "CACHE_UPDATED"
)

var (
	// ErrUnknownMessage is returned for unsupported message types.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrNoReplyChannel is returned when GET_CACHE_INFO carries no reply channel.
	ErrNoReplyChannel = errors.New("message requires a reply channel")
)

// Message is a request from a page. Reply is required for GET_CACHE_INFO.
type Message struct {
	Type  MessageType
	Reply chan<- CacheInfo
}

// PartitionInfo describes one partition.
type PartitionInfo struct {
	Size int      `json:"size"`
	URLs []string `json:"urls"`
}

// CacheInfo maps partition name to its contents.
type CacheInfo map[string]PartitionInfo

// PostMessage handles a page message. SKIP_WAITING activation is detached
// from ctx so a departing caller cannot abort the purge.
func (m *Manager) PostMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		return m.SkipWaiting(context.WithoutCancel(ctx))

	case MessageGetCacheInfo:
		if msg.Reply == nil {
			return ErrNoReplyChannel
		}
		info, err := m.CacheInfo(ctx)
		if err != nil {
			return err
		}
		select {
		case msg.Reply <- info:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("reply to %s: %w", msg.Type, ctx.Err())
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// CacheInfo enumerates every existing partition, current or not. A
// partition purged while the listing runs is left out, never recreated.
func (m *Manager) CacheInfo(ctx context.Context) (CacheInfo, error) {
	names, err := m.provider.Names(ctx)
	if err != nil {
		m.metrics.RecordStorageError("names")
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	info := make(CacheInfo, len(names))
	for _, name := range names {
		part, lookupErr := m.provider.Lookup(ctx, name)
		if errors.Is(lookupErr, storage.ErrPartitionNotFound) {
			continue
		}
		if lookupErr != nil {
			m.metrics.RecordStorageError("lookup")
			return nil, fmt.Errorf("lookup %s: %w", name, lookupErr)
		}
		keys, keysErr := part.Keys(ctx)
		if keysErr != nil {
			m.metrics.RecordStorageError("keys")
			return nil, fmt.Errorf("list %s: %w", name, keysErr)
		}
		info[name] = PartitionInfo{Size: len(keys), URLs: keys}
	}
	return info, nil
}
