// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information

package sync2

import (
	"context"
	"sync"
)

// Fence allows to wait for something to happen.
type Fence struct {
	setup   sync.Once
	release sync.Once
	done    chan struct{}
}

func (fence *Fence) init() {
	fence.setup.Do(func() {
		fence.done = make(chan struct{})
	})
}

// Release releases everyone waiting.
func (fence *Fence) Release() {
	fence.init()
	fence.release.Do(func() { close(fence.done) })
}

// Wait waits for fence to be released.
func (fence *Fence) Wait() {
	fence.init()
	<-fence.done
}

// WaitContext waits for fence to be released or the context to be canceled.
// Returns true when the fence was released.
func (fence *Fence) WaitContext(ctx context.Context) bool {
	fence.init()
	select {
	case <-fence.done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Released returns whether the fence has been released.
func (fence *Fence) Released() bool {
	fence.init()
	select {
	case <-fence.done:
		return true
	default:
		return false
	}
}
