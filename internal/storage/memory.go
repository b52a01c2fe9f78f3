package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryProvider keeps partitions in process memory.
type MemoryProvider struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
}

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{partitions: make(map[string]*memoryPartition)}
}

func (p *MemoryProvider) Open(_ context.Context, name string) (Partition, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	part, ok := p.partitions[name]
	if !ok {
		part = &memoryPartition{name: name, entries: make(map[string]*Response)}
		p.partitions[name] = part
	}
	return part, nil
}

func (p *MemoryProvider) Lookup(_ context.Context, name string) (Partition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	part, ok := p.partitions[name]
	if !ok {
		return nil, ErrPartitionNotFound
	}
	return part, nil
}

func (p *MemoryProvider) Names(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.partitions))
	for name := range p.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (p *MemoryProvider) Delete(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	part, ok := p.partitions[name]
	delete(p.partitions, name)
	p.mu.Unlock()

	if ok {
		part.clear()
	}
	return ok, nil
}

type memoryPartition struct {
	name    string
	mu      sync.RWMutex
	entries map[string]*Response
}

func (m *memoryPartition) Name() string { return m.name }

func (m *memoryPartition) Match(_ context.Context, key string) (*Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resp, ok := m.entries[key]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return resp.Clone(), nil
}

func (m *memoryPartition) Put(_ context.Context, key string, resp *Response) error {
	stored := resp.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = stored
	return nil
}

func (m *memoryPartition) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

func (m *memoryPartition) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// clear drops entries so handles opened before deletion stop returning hits.
func (m *memoryPartition) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Response)
}
