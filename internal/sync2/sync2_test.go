// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information

package sync2_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/dht/internal/sync2"
	"storj.io/dht/internal/testcontext"
)

func TestCycle_TriggerWait(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var count int64
	cycle := sync2.NewCycle(time.Hour)
	ctx.Go(func() error {
		return cycle.Run(ctx, func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	})

	cycle.TriggerWait()
	cycle.TriggerWait()
	cycle.Stop()

	require.True(t, atomic.LoadInt64(&count) >= 3)
}

func TestCycle_StopsOnError(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	cycle := sync2.NewCycle(time.Millisecond)
	err := cycle.Run(ctx, func(ctx context.Context) error {
		return context.Canceled
	})
	require.Equal(t, context.Canceled, err)

	// control messages after finishing must not block
	cycle.Trigger()
	cycle.Stop()
}

func TestWorkGroup(t *testing.T) {
	var group sync2.WorkGroup
	var done int64

	for i := 0; i < 10; i++ {
		require.True(t, group.Go(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&done, 1)
		}))
	}

	group.Close()
	require.False(t, group.Go(func() {}))
	require.False(t, group.Start())

	group.Wait()
	require.Equal(t, int64(10), atomic.LoadInt64(&done))
}

func TestFence(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var fence sync2.Fence
	require.False(t, fence.Released())

	timeout, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()
	require.False(t, fence.WaitContext(timeout))

	ctx.Go(func() error {
		fence.Release()
		return nil
	})
	fence.Wait()
	fence.Release()
	require.True(t, fence.Released())
	require.True(t, fence.WaitContext(ctx))
}
