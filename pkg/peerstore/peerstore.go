// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package peerstore is an address book with expiring entries.
package peerstore

import (
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/patrickmn/go-cache"

	"storj.io/dht/pkg/peer"
)

// AddrBook remembers the addresses of peers for a limited time.
type AddrBook struct {
	ttl time.Duration

	mu    sync.Mutex
	cache *cache.Cache
}

// New returns an address book whose entries expire after ttl.
func New(ttl time.Duration) *AddrBook {
	cleanup := ttl
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &AddrBook{
		ttl:   ttl,
		cache: cache.New(ttl, cleanup),
	}
}

// AddAddrs merges addrs into the known addresses of p and resets its
// expiration.
func (book *AddrBook) AddAddrs(p peer.ID, addrs []ma.Multiaddr) {
	if len(addrs) == 0 {
		return
	}

	book.mu.Lock()
	defer book.mu.Unlock()

	var known []ma.Multiaddr
	if existing, ok := book.cache.Get(string(p)); ok {
		known = existing.([]ma.Multiaddr)
	}

	merged := append([]ma.Multiaddr(nil), known...)
next:
	for _, addr := range addrs {
		for _, have := range merged {
			if have.Equal(addr) {
				continue next
			}
		}
		merged = append(merged, addr)
	}
	book.cache.Set(string(p), merged, book.ttl)
}

// Addrs returns the known addresses of p.
func (book *AddrBook) Addrs(p peer.ID) []ma.Multiaddr {
	existing, ok := book.cache.Get(string(p))
	if !ok {
		return nil
	}
	return append([]ma.Multiaddr(nil), existing.([]ma.Multiaddr)...)
}

// AddrInfo returns p together with its known addresses.
func (book *AddrBook) AddrInfo(p peer.ID) peer.AddrInfo {
	return peer.AddrInfo{ID: p, Addrs: book.Addrs(p)}
}

// ClearAddrs forgets p.
func (book *AddrBook) ClearAddrs(p peer.ID) {
	book.cache.Delete(string(p))
}

// Peers returns every peer with known addresses.
func (book *AddrBook) Peers() []peer.ID {
	items := book.cache.Items()
	ids := make([]peer.ID, 0, len(items))
	for id := range items {
		ids = append(ids, peer.ID(id))
	}
	return ids
}
