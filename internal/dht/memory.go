package dht

import (
	"context"
	"strings"
	"sync"
)

// MemoryKV is an in-process KV: Set/Del on one handle notify every
// MemoryKV sharing the same *memoryStore whose subscribed prefix
// matches the key. The package tests use it; cmd/edge always builds a
// NatsKV instead.
type MemoryKV struct {
	store   *memoryStore
	handler Handler
}

type memoryStore struct {
	mu       sync.Mutex
	versions map[string]uint64
	watchers map[*MemoryKV]map[string]struct{}
}

// NewMemoryStore creates a shared store that multiple MemoryKV handles
// (one per node, in a single-process simulation) can attach to.
func NewMemoryStore() *memoryStore {
	return &memoryStore{versions: make(map[string]uint64), watchers: make(map[*MemoryKV]map[string]struct{})}
}

// NewMemoryKV attaches a new KV handle to store. A nil store creates a
// private one-node store.
func NewMemoryKV(store *memoryStore) *MemoryKV {
	if store == nil {
		store = NewMemoryStore()
	}
	return &MemoryKV{store: store}
}

func (k *MemoryKV) SetHandler(h Handler) { k.handler = h }

func (k *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	k.store.mu.Lock()
	k.store.versions[key]++
	version := k.store.versions[key]
	targets := k.matchingWatchers(key)
	k.store.mu.Unlock()

	for _, w := range targets {
		if w.handler != nil {
			w.handler.OnSet(key, version, value)
		}
	}
	return nil
}

func (k *MemoryKV) Del(ctx context.Context, key string) error {
	k.store.mu.Lock()
	k.store.versions[key]++
	version := k.store.versions[key]
	targets := k.matchingWatchers(key)
	k.store.mu.Unlock()

	for _, w := range targets {
		if w.handler != nil {
			w.handler.OnDel(key, version)
		}
	}
	return nil
}

func (k *MemoryKV) Sub(ctx context.Context, keyPrefix string) error {
	k.store.mu.Lock()
	set, ok := k.store.watchers[k]
	if !ok {
		set = make(map[string]struct{})
		k.store.watchers[k] = set
	}
	set[keyPrefix] = struct{}{}
	k.store.mu.Unlock()
	return nil
}

func (k *MemoryKV) Unsub(ctx context.Context, keyPrefix string) error {
	k.store.mu.Lock()
	if set, ok := k.store.watchers[k]; ok {
		delete(set, keyPrefix)
		if len(set) == 0 {
			delete(k.store.watchers, k)
		}
	}
	k.store.mu.Unlock()
	return nil
}

func (k *MemoryKV) Close() error { return nil }

// matchingWatchers must be called with store.mu held.
func (k *MemoryKV) matchingWatchers(key string) []*MemoryKV {
	var out []*MemoryKV
	for w, prefixes := range k.store.watchers {
		for prefix := range prefixes {
			if strings.HasPrefix(key, prefix) {
				out = append(out, w)
				break
			}
		}
	}
	return out
}
