// Package storage defines named cache partitions and the providers that back them.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrEntryNotFound is returned by Partition.Match on a miss.
	ErrEntryNotFound = errors.New("cache entry not found")
	// ErrPartitionNotFound is returned when a named partition does not exist.
	ErrPartitionNotFound = errors.New("cache partition not found")
	// ErrInvalidName is returned for partition names that are empty or contain path separators.
	ErrInvalidName = errors.New("invalid partition name")
)

// Partition is a named key-value store of request identity to stored response.
// Implementations must be safe for concurrent use. A Put for an existing key
// replaces the previous entry.
type Partition interface {
	Name() string
	Match(ctx context.Context, key string) (*Response, error)
	Put(ctx context.Context, key string, resp *Response) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// Provider owns the set of partitions.
type Provider interface {
	// Open returns the named partition, creating it if needed.
	Open(ctx context.Context, name string) (Partition, error)
	// Lookup returns an existing partition without creating it, or
	// ErrPartitionNotFound.
	Lookup(ctx context.Context, name string) (Partition, error)
	Names(ctx context.Context) ([]string, error)
	// Delete removes the partition and every entry in it. It reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// ValidateName rejects names that cannot be used as a directory or key segment.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r == ':' || r < ' ' {
			return ErrInvalidName
		}
	}
	return nil
}
