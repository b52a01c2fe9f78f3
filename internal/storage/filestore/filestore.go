// Package filestore persists cache partitions on the local filesystem.
//
// Each partition is a directory under the base dir. Each entry is a pair of
// files named by the SHA-256 of its key: <hash>.json holds the metadata
// (including the key itself) and <hash>.body holds the raw body.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
)

const (
	metadataExt = ".json"
	bodyExt     = ".body"

	dirPerm  = 0o755
	filePerm = 0o644
)

// entryMetadata is the JSON document stored next to each body.
type entryMetadata struct {
	Key        string              `json:"key"`
	Status     int                 `json:"status"`
	Headers    map[string][]string `json:"headers"`
	RecordedAt time.Time           `json:"recorded_at"`
}

// Provider stores partitions as directories under baseDir.
type Provider struct {
	baseDir string
	mu      sync.RWMutex
}

// New creates baseDir if needed.
func New(baseDir string) (*Provider, error) {
	if err := os.MkdirAll(baseDir, dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Provider{baseDir: baseDir}, nil
}

// Dir returns the base directory.
func (p *Provider) Dir() string {
	return p.baseDir
}

func (p *Provider) Open(_ context.Context, name string) (storage.Partition, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.partitionDir(name), dirPerm); err != nil {
		return nil, fmt.Errorf("create partition %s: %w", name, err)
	}
	return &partition{provider: p, name: name}, nil
}

func (p *Provider) Lookup(_ context.Context, name string) (storage.Partition, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	info, err := os.Stat(p.partitionDir(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrPartitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat partition %s: %w", name, err)
	}
	if !info.IsDir() {
		return nil, storage.ErrPartitionNotFound
	}
	return &partition{provider: p, name: name}, nil
}

func (p *Provider) Names(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries, err := os.ReadDir(p.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (p *Provider) Delete(_ context.Context, name string) (bool, error) {
	if storage.ValidateName(name) != nil {
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dir := p.partitionDir(name)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat partition %s: %w", name, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}
	return true, nil
}

func (p *Provider) partitionDir(name string) string {
	return filepath.Join(p.baseDir, name)
}

type partition struct {
	provider *Provider
	name     string
}

func (pt *partition) Name() string { return pt.name }

func (pt *partition) Match(_ context.Context, key string) (*storage.Response, error) {
	pt.provider.mu.RLock()
	defer pt.provider.mu.RUnlock()

	metaPath, bodyPath := pt.paths(key)

	meta, err := readMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	// A hash collision is treated as a miss.
	if meta.Key != key {
		return nil, storage.ErrEntryNotFound
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Metadata exists but body missing.
			return nil, storage.ErrEntryNotFound
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &storage.Response{
		StatusCode: meta.Status,
		Header:     http.Header(meta.Headers),
		Body:       body,
	}, nil
}

func (pt *partition) Put(_ context.Context, key string, resp *storage.Response) error {
	meta := entryMetadata{
		Key:        key,
		Status:     resp.StatusCode,
		Headers:    resp.Header.Clone(),
		RecordedAt: time.Now().UTC(),
	}
	if meta.Headers == nil {
		meta.Headers = map[string][]string{}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	pt.provider.mu.Lock()
	defer pt.provider.mu.Unlock()

	dir := pt.provider.partitionDir(pt.name)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create partition %s: %w", pt.name, err)
	}

	metaPath, bodyPath := pt.paths(key)
	// Body first; the metadata file commits the entry.
	if err := writeFileAtomic(dir, bodyPath, resp.Body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := writeFileAtomic(dir, metaPath, data); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (pt *partition) Delete(_ context.Context, key string) (bool, error) {
	pt.provider.mu.Lock()
	defer pt.provider.mu.Unlock()

	metaPath, bodyPath := pt.paths(key)
	meta, err := readMetadata(metaPath)
	if errors.Is(err, storage.ErrEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if meta.Key != key {
		return false, nil
	}

	if err := os.Remove(metaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("remove metadata: %w", err)
	}
	if err := os.Remove(bodyPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("remove body: %w", err)
	}
	return true, nil
}

func (pt *partition) Keys(_ context.Context) ([]string, error) {
	pt.provider.mu.RLock()
	defer pt.provider.mu.RUnlock()

	dir := pt.provider.partitionDir(pt.name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list entries: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metadataExt) {
			continue
		}
		meta, metaErr := readMetadata(filepath.Join(dir, e.Name()))
		if metaErr != nil {
			continue
		}
		keys = append(keys, meta.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (pt *partition) paths(key string) (metaPath, bodyPath string) {
	sum := sha256.Sum256([]byte(key))
	base := filepath.Join(pt.provider.partitionDir(pt.name), hex.EncodeToString(sum[:]))
	return base + metadataExt, base + bodyExt
}

func readMetadata(path string) (*entryMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrEntryNotFound
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta entryMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", filepath.Base(path), err)
	}
	return &meta, nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
