// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/dht/pkg/peer"
)

var (
	// Error defines a Kademlia error
	Error = errs.Class("kademlia error")
	// ErrNotFound is returned when a lookup can not produce what was asked for
	ErrNotFound = errs.Class("not found")
	// ErrBootstrap is the class for all errors pertaining to bootstrapping a node
	ErrBootstrap = errs.Class("bootstrap error")

	mon = monkit.Package()
)

// Config defines all of the things that are needed to start up a dht node.
type Config struct {
	BootstrapPeers []string `help:"peers to bootstrap against, as <id>@<multiaddr>" default:""`

	BucketSize           int `help:"size of each Kademlia bucket" default:"20"`
	ReplacementCacheSize int `help:"size of Kademlia replacement cache per bucket" default:"5"`
	Alpha                int `help:"alpha is a system wide concurrency parameter" default:"3"`
	Beta                 int `help:"number of closest peers that must respond before a lookup ends" default:"3"`
	Quorum               int `help:"number of responses SearchValue waits for" default:"3"`

	RequestTimeout  time.Duration `help:"timeout for a single request to a peer" default:"10s"`
	RefreshInterval time.Duration `help:"how often stale buckets are refreshed" default:"10m"`
	ProvideValidity time.Duration `help:"how long provider records are kept" default:"24h"`
	AddrTTL         time.Duration `help:"how long learned peer addresses are kept" default:"1h"`

	PoolSize         int `help:"number of connections kept open" default:"10"`
	MaxRequests      int `help:"maximum number of concurrent outgoing requests" default:"32"`
	BootstrapRetries int `help:"number of times a bootstrap peer is dialed" default:"3"`
}

// DefaultConfig returns the configuration with every default applied.
func DefaultConfig() Config {
	return Config{
		BucketSize:           20,
		ReplacementCacheSize: 5,
		Alpha:                3,
		Beta:                 3,
		Quorum:               3,
		RequestTimeout:       10 * time.Second,
		RefreshInterval:      10 * time.Minute,
		ProvideValidity:      24 * time.Hour,
		AddrTTL:              time.Hour,
		PoolSize:             10,
		MaxRequests:          32,
		BootstrapRetries:     3,
	}
}

// Verify checks that the configuration can be used.
func (config Config) Verify() error {
	var group errs.Group
	if config.BucketSize <= 0 {
		group.Add(Error.New("bucket size must be positive, got %d", config.BucketSize))
	}
	if config.ReplacementCacheSize < 0 {
		group.Add(Error.New("replacement cache size must not be negative, got %d", config.ReplacementCacheSize))
	}
	if config.Alpha <= 0 {
		group.Add(Error.New("alpha must be positive, got %d", config.Alpha))
	}
	if config.Beta <= 0 || config.Beta > config.BucketSize {
		group.Add(Error.New("beta must be in [1, %d], got %d", config.BucketSize, config.Beta))
	}
	if config.Quorum <= 0 {
		group.Add(Error.New("quorum must be positive, got %d", config.Quorum))
	}
	if config.MaxRequests <= 0 {
		group.Add(Error.New("max requests must be positive, got %d", config.MaxRequests))
	}
	if _, err := ParseBootstrapPeers(config.BootstrapPeers); err != nil {
		group.Add(err)
	}
	return group.Err()
}

// ParseBootstrapPeers parses entries of the form <id>@<multiaddr>. Entries
// for the same id are merged.
func ParseBootstrapPeers(entries []string) ([]peer.AddrInfo, error) {
	var infos []peer.AddrInfo
	index := map[peer.ID]int{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "@", 2)
		if len(parts) != 2 {
			return nil, ErrBootstrap.New("invalid bootstrap peer %q", entry)
		}
		id, err := peer.Decode(parts[0])
		if err != nil {
			return nil, ErrBootstrap.Wrap(err)
		}
		addr, err := ma.NewMultiaddr(parts[1])
		if err != nil {
			return nil, ErrBootstrap.Wrap(err)
		}

		if i, ok := index[id]; ok {
			infos[i].Addrs = append(infos[i].Addrs, addr)
			continue
		}
		index[id] = len(infos)
		infos = append(infos, peer.AddrInfo{ID: id, Addrs: []ma.Multiaddr{addr}})
	}
	return infos, nil
}
