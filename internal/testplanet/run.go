// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information

package testplanet

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"storj.io/dht/internal/testcontext"
)

// Run runs testplanet with the specified configuration.
func Run(t *testing.T, config Config, test func(t *testing.T, ctx *testcontext.Context, planet *Planet)) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	planet, err := NewCustom(zaptest.NewLogger(t), config)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Check(planet.Shutdown)

	if err := planet.Start(ctx); err != nil {
		t.Fatal(err)
	}

	test(t, ctx, planet)
}
