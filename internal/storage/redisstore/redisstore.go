// Package redisstore keeps cache partitions in Redis. Each partition is a
// hash keyed by request identity; a set tracks partition names.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/redis/go-redis/v9"
)

type entry struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body"`
}

// Provider implements storage.Provider on a Redis client.
type Provider struct {
	client redis.UniversalClient
	keys   Keys
}

// New returns a provider writing under prefix. An empty prefix uses DefaultKeyPrefix.
func New(client redis.UniversalClient, prefix string) *Provider {
	return &Provider{client: client, keys: NewKeys(prefix)}
}

func (p *Provider) Open(ctx context.Context, name string) (storage.Partition, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	if err := p.client.SAdd(ctx, p.keys.Partitions(), name).Err(); err != nil {
		return nil, fmt.Errorf("register partition %s: %w", name, err)
	}
	return &partition{provider: p, name: name, key: p.keys.Partition(name)}, nil
}

func (p *Provider) Lookup(ctx context.Context, name string) (storage.Partition, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	exists, err := p.client.SIsMember(ctx, p.keys.Partitions(), name).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup partition %s: %w", name, err)
	}
	if !exists {
		return nil, storage.ErrPartitionNotFound
	}
	return &partition{provider: p, name: name, key: p.keys.Partition(name)}, nil
}

func (p *Provider) Names(ctx context.Context) ([]string, error) {
	names, err := p.client.SMembers(ctx, p.keys.Partitions()).Result()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (p *Provider) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, p.keys.Partitions(), name)
		pipe.Del(ctx, p.keys.Partition(name))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

type partition struct {
	provider *Provider
	name     string
	key      string
}

func (pt *partition) Name() string { return pt.name }

func (pt *partition) Match(ctx context.Context, key string) (*storage.Response, error) {
	raw, err := pt.provider.client.HGet(ctx, pt.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &storage.Response{
		StatusCode: e.Status,
		Header:     http.Header(e.Headers),
		Body:       e.Body,
	}, nil
}

func (pt *partition) Put(ctx context.Context, key string, resp *storage.Response) error {
	data, err := json.Marshal(entry{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    resp.Body,
	})
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	_, err = pt.provider.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, pt.provider.keys.Partitions(), pt.name)
		pipe.HSet(ctx, pt.key, key, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

func (pt *partition) Delete(ctx context.Context, key string) (bool, error) {
	n, err := pt.provider.client.HDel(ctx, pt.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	return n > 0, nil
}

func (pt *partition) Keys(ctx context.Context) ([]string, error) {
	keys, err := pt.provider.client.HKeys(ctx, pt.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
