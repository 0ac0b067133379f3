// Copyright 2026 OfflineCache Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"sort"
	"sync"

	"offlinecache/internal/web"
)

// Memory is an in-memory web.CacheStorage.
//
// Thread-safe: Uses RWMutex for concurrent access.
type Memory struct {
	mu     sync.RWMutex
	stores map[string]*MemoryStore
	order  []string
}

// NewMemory creates an empty in-memory cache storage.
func NewMemory() *Memory {
	return &Memory{stores: make(map[string]*MemoryStore)}
}

// Open implements web.CacheStorage.
func (m *Memory) Open(ctx context.Context, name string) (web.CacheStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[name]; ok {
		return s, nil
	}
	s := &MemoryStore{name: name, entries: make(map[string]memoryEntry, 16)}
	m.stores[name] = s
	m.order = append(m.order, name)
	return s, nil
}

// Has implements web.CacheStorage.
func (m *Memory) Has(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stores[name]
	return ok, nil
}

// Keys implements web.CacheStorage.
func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

// Delete implements web.CacheStorage.
func (m *Memory) Delete(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stores[name]; !ok {
		return false, nil
	}
	delete(m.stores, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Size returns the number of stores.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}

// MemoryStore is one named in-memory cache store.
type MemoryStore struct {
	name    string
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	req  *web.Request
	resp *web.Response
}

// Name implements web.CacheStore.
func (s *MemoryStore) Name() string {
	return s.name
}

// Match implements web.CacheStore. Returns nil on a miss or when caching
// is disabled (OFFLINECACHE_CACHE=0).
func (s *MemoryStore) Match(ctx context.Context, req *web.Request) (*web.Response, error) {
	if Disabled {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[req.Key()]
	if !ok {
		return nil, nil
	}
	return e.resp.Clone(), nil
}

// Put implements web.CacheStore.
func (s *MemoryStore) Put(ctx context.Context, req *web.Request, resp *web.Response) error {
	if Disabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[req.Key()] = memoryEntry{req: req.Clone(), resp: resp.Clone()}
	return nil
}

// PutAll implements web.CacheStore. The whole batch becomes visible
// under one lock acquisition.
func (s *MemoryStore) PutAll(ctx context.Context, entries []web.Entry) error {
	if Disabled {
		return nil
	}

	batch := make(map[string]memoryEntry, len(entries))
	for _, e := range entries {
		batch[e.Request.Key()] = memoryEntry{req: e.Request.Clone(), resp: e.Response.Clone()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range batch {
		s.entries[k] = e
	}
	return nil
}

// Keys implements web.CacheStore. Keys are sorted.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Size returns the number of entries.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
