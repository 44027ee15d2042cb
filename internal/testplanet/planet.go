// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information

// Package testplanet sets up simulated dht networks for tests.
package testplanet

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"storj.io/dht/internal/simplanet"
)

type (
	// Config describes planet configuration.
	Config = simplanet.Config
	// Planet is a set of dht nodes connected by a simulated network.
	Planet = simplanet.Planet
	// Node is a single dht node of the planet.
	Node = simplanet.Node
)

// New creates a planet with nodeCount nodes logging to t.
func New(t zaptest.TestingT, nodeCount int) (*Planet, error) {
	log := zap.NewNop()
	if t != nil {
		log = zaptest.NewLogger(t)
	}
	return NewCustom(log, Config{NodeCount: nodeCount})
}

// NewCustom creates a planet with the specified configuration.
func NewCustom(log *zap.Logger, config Config) (*Planet, error) {
	return simplanet.New(log, config)
}
