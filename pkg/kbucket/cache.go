// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kbucket

import (
	"storj.io/dht/pkg/peer"
)

type candidate struct {
	id          peer.ID
	replaceable bool
}

// replacementCache keeps peers that were rejected by a full bucket so they
// can take the place of peers that get removed later. Candidates are keyed
// by their common prefix length with the local id, oldest first.
type replacementCache struct {
	size       int
	candidates map[int][]candidate
}

func newReplacementCache(size int) *replacementCache {
	return &replacementCache{
		size:       size,
		candidates: make(map[int][]candidate),
	}
}

// add remembers c, moving it to the most recent position when known.
func (cache *replacementCache) add(cpl int, c candidate) {
	if cache.size <= 0 {
		return
	}
	list := cache.candidates[cpl]
	list = removeCandidate(list, c.id)
	list = append(list, c)
	if len(list) > cache.size {
		copy(list, list[1:])
		list = list[:len(list)-1]
	}
	cache.candidates[cpl] = list
}

func (cache *replacementCache) remove(cpl int, id peer.ID) {
	list := removeCandidate(cache.candidates[cpl], id)
	if len(list) == 0 {
		delete(cache.candidates, cpl)
		return
	}
	cache.candidates[cpl] = list
}

// pop removes and returns the most recent candidate whose cpl satisfies match.
// Lower cpls are preferred.
func (cache *replacementCache) pop(match func(cpl int) bool) (candidate, bool) {
	best := -1
	for cpl := range cache.candidates {
		if match(cpl) && (best < 0 || cpl < best) {
			best = cpl
		}
	}
	if best < 0 {
		return candidate{}, false
	}

	list := cache.candidates[best]
	c := list[len(list)-1]
	cache.remove(best, c.id)
	return c, true
}

func (cache *replacementCache) len() int {
	total := 0
	for _, list := range cache.candidates {
		total += len(list)
	}
	return total
}

func removeCandidate(list []candidate, id peer.ID) []candidate {
	for i, c := range list {
		if c.id == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
