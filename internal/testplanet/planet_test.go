// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information

package testplanet_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/internal/testplanet"
)

func TestBasic(t *testing.T) {
	testplanet.Run(t, testplanet.Config{NodeCount: 8}, func(t *testing.T, ctx *testcontext.Context, planet *testplanet.Planet) {
		require.Equal(t, 8, planet.Size())
		for _, node := range planet.Nodes {
			t.Log("NODE", node.Name, node.ID(), node.Info())
			require.NotZero(t, node.Inspector.CountPeers(), node.Name)
		}
	})
}

func TestStopNode(t *testing.T) {
	testplanet.Run(t, testplanet.Config{NodeCount: 3}, func(t *testing.T, ctx *testcontext.Context, planet *testplanet.Planet) {
		stopped := planet.Nodes[2]
		require.NoError(t, planet.StopNode(stopped))
		require.Error(t, planet.StopNode(&testplanet.Node{}))

		_, found, err := planet.Nodes[0].Kademlia.FindPeer(ctx, stopped.ID())
		require.NoError(t, err)
		require.False(t, found)
	})
}

func BenchmarkCreate(b *testing.B) {
	nodeCounts := []int{4, 10, 100}
	for _, count := range nodeCounts {
		b.Run(strconv.Itoa(count), func(b *testing.B) {
			ctx := context.Background()
			for i := 0; i < b.N; i++ {
				planet, err := testplanet.New(nil, count)
				if err != nil {
					b.Fatal(err)
				}

				if err := planet.Start(ctx); err != nil {
					b.Fatal(err)
				}

				err = planet.Shutdown()
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
