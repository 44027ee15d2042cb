// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information

// Package simplanet runs a network of dht nodes in one process on top of a
// simulated network.
package simplanet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/dht/internal/errs2"
	"storj.io/dht/pkg/kademlia"
	"storj.io/dht/pkg/transport/simnet"
	"storj.io/dht/storage"
	"storj.io/dht/storage/teststore"
)

// Config describes the simulated network.
type Config struct {
	NodeCount int

	// Kademlia is used for every node. Zero values are replaced with the
	// defaults.
	Kademlia kademlia.Config
	// Latency is added to every request.
	Latency time.Duration
	// NewStore creates the record store of the node at index.
	NewStore func(index int) (storage.KeyValueStore, error)
	// Reconfigure allows changing the configuration of a single node.
	Reconfigure func(index int, config *kademlia.Config)
	// DisableRefresh keeps the refresh loops from running, so the only
	// traffic is the one caused by the test.
	DisableRefresh bool
}

// Planet is a set of dht nodes connected by a simulated network.
type Planet struct {
	log    *zap.Logger
	config Config

	Network *simnet.Network
	Nodes   []*Node

	started  bool
	shutdown bool

	run    errgroup.Group
	cancel func()
}

// New creates a planet with the specified configuration.
func New(log *zap.Logger, config Config) (*Planet, error) {
	if config.NodeCount <= 0 {
		return nil, errs.New("planet needs at least one node")
	}
	if config.NewStore == nil {
		config.NewStore = func(int) (storage.KeyValueStore, error) { return teststore.New(), nil }
	}
	config.Kademlia = withDefaults(config.Kademlia)

	planet := &Planet{
		log:     log,
		config:  config,
		Network: simnet.New(log.Named("simnet")),
	}
	planet.Network.SetLatency(config.Latency)

	for i := 0; i < config.NodeCount; i++ {
		node, err := planet.newNode(i)
		if err != nil {
			return nil, errs.Combine(err, planet.closeNodes())
		}
		planet.Nodes = append(planet.Nodes, node)
	}
	return planet, nil
}

// Start bootstraps every node against the first one and starts the refresh
// loops.
func (planet *Planet) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	planet.cancel = cancel
	planet.started = true

	// nodes join one after another, like they would in a real network
	for _, node := range planet.Nodes[1:] {
		if err := node.Kademlia.Bootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrapping %s: %w", node.Name, err)
		}
	}
	// the first node has nobody to bootstrap against until the others joined
	if len(planet.Nodes) > 1 {
		if err := planet.Nodes[0].Kademlia.Bootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrapping %s: %w", planet.Nodes[0].Name, err)
		}
	}

	if planet.config.DisableRefresh {
		return nil
	}
	for _, node := range planet.Nodes {
		node := node
		planet.run.Go(func() error {
			return errs2.IgnoreCanceled(node.Kademlia.RunRefresh(ctx))
		})
	}
	return nil
}

// Size returns number of nodes in the network
func (planet *Planet) Size() int { return len(planet.Nodes) }

// StopNode takes a node off the network.
func (planet *Planet) StopNode(node *Node) error {
	for _, n := range planet.Nodes {
		if n == node {
			planet.Network.Remove(node.ID())
			return node.Close()
		}
	}
	return errors.New("unknown node")
}

// Shutdown shuts down all the nodes.
func (planet *Planet) Shutdown() error {
	if planet.shutdown {
		panic("double Shutdown")
	}
	planet.shutdown = true

	if planet.cancel != nil {
		planet.cancel()
	}

	var errlist errs.Group
	errlist.Add(planet.run.Wait())
	errlist.Add(planet.closeNodes())
	return errlist.Err()
}

func (planet *Planet) closeNodes() error {
	var errlist errs.Group
	// shutdown in reverse order
	for i := len(planet.Nodes) - 1; i >= 0; i-- {
		errlist.Add(planet.Nodes[i].Close())
	}
	return errlist.Err()
}

func withDefaults(config kademlia.Config) kademlia.Config {
	defaults := kademlia.DefaultConfig()
	if config.BucketSize == 0 {
		config.BucketSize = defaults.BucketSize
	}
	if config.ReplacementCacheSize == 0 {
		config.ReplacementCacheSize = defaults.ReplacementCacheSize
	}
	if config.Alpha == 0 {
		config.Alpha = defaults.Alpha
	}
	if config.Beta == 0 {
		config.Beta = defaults.Beta
	}
	if config.Quorum == 0 {
		config.Quorum = defaults.Quorum
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.RefreshInterval == 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	if config.ProvideValidity == 0 {
		config.ProvideValidity = defaults.ProvideValidity
	}
	if config.AddrTTL == 0 {
		config.AddrTTL = defaults.AddrTTL
	}
	if config.PoolSize == 0 {
		config.PoolSize = defaults.PoolSize
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.BootstrapRetries == 0 {
		config.BootstrapRetries = defaults.BootstrapRetries
	}
	return config
}
