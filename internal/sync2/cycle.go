// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information

package sync2

import (
	"context"
	"sync"
	"time"
)

// Cycle runs a function periodically and on demand.
//
// Stop, Trigger and TriggerWait may be called before Run starts and after it
// has returned; in the latter case they do nothing.
type Cycle struct {
	interval time.Duration

	once     sync.Once
	triggers chan chan struct{}
	stopping chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

// NewCycle creates a cycle that runs every interval.
func NewCycle(interval time.Duration) *Cycle {
	return &Cycle{interval: interval}
}

func (cycle *Cycle) lazyInit() {
	cycle.once.Do(func() {
		cycle.triggers = make(chan chan struct{})
		cycle.stopping = make(chan struct{})
		cycle.finished = make(chan struct{})
	})
}

// Run calls fn immediately, then on every tick and trigger. It returns when
// ctx is done, Stop is called or fn fails.
func (cycle *Cycle) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	cycle.lazyInit()
	defer close(cycle.finished)

	ticker := time.NewTicker(cycle.interval)
	defer ticker.Stop()

	if err := fn(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-cycle.stopping:
			return nil
		case <-ctx.Done():
			return ctx.Err()

		case done := <-cycle.triggers:
			err := fn(ctx)
			if done != nil {
				close(done)
			}
			if err != nil {
				return err
			}

		case <-ticker.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}

// Stop stops the cycle permanently.
func (cycle *Cycle) Stop() {
	cycle.lazyInit()
	cycle.stopOnce.Do(func() { close(cycle.stopping) })
}

// Trigger requests an extra run without waiting for it.
func (cycle *Cycle) Trigger() {
	cycle.trigger(nil)
}

// TriggerWait requests an extra run and waits until it has completed.
func (cycle *Cycle) TriggerWait() {
	done := make(chan struct{})
	if !cycle.trigger(done) {
		return
	}
	select {
	case <-done:
	case <-cycle.finished:
	}
}

// trigger hands done to the running loop. It reports false when the
// cycle has been stopped or has finished.
func (cycle *Cycle) trigger(done chan struct{}) bool {
	cycle.lazyInit()
	select {
	case cycle.triggers <- done:
		return true
	case <-cycle.stopping:
		return false
	case <-cycle.finished:
		return false
	}
}
