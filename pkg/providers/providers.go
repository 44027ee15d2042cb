// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package providers keeps the provider records announced to this node.
package providers

import (
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"storj.io/dht/pkg/peer"
)

// Manager stores which peers provide which keys. Records expire after the
// configured validity unless they are announced again.
type Manager struct {
	validity time.Duration

	mu    sync.Mutex
	cache *cache.Cache
}

type providerSet map[peer.ID]time.Time

// NewManager returns a manager whose records are valid for validity.
func NewManager(validity time.Duration) *Manager {
	cleanup := validity / 2
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &Manager{
		validity: validity,
		cache:    cache.New(validity, cleanup),
	}
}

// AddProvider records that p provides key.
func (m *Manager) AddProvider(key []byte, p peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := providerSet{}
	if existing, ok := m.cache.Get(string(key)); ok {
		set = existing.(providerSet)
	}
	set[p] = time.Now()
	m.cache.Set(string(key), set, cache.DefaultExpiration)
}

// GetProviders returns the unexpired providers of key, most recent first.
func (m *Manager) GetProviders(key []byte) []peer.ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.cache.Get(string(key))
	if !ok {
		return nil
	}
	set := existing.(providerSet)

	cutoff := time.Now().Add(-m.validity)
	type entry struct {
		id    peer.ID
		added time.Time
	}
	entries := make([]entry, 0, len(set))
	for id, added := range set {
		if added.Before(cutoff) {
			delete(set, id)
			continue
		}
		entries = append(entries, entry{id, added})
	}
	sort.Slice(entries, func(i, k int) bool {
		if entries[i].added.Equal(entries[k].added) {
			return entries[i].id < entries[k].id
		}
		return entries[i].added.After(entries[k].added)
	})

	ids := make([]peer.ID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids
}

// Len returns the number of keys with providers.
func (m *Manager) Len() int {
	return m.cache.ItemCount()
}
