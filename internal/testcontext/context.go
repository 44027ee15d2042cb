// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testcontext provides a context for tests that tracks background
// goroutines and temporary directories.
package testcontext

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a test context when the test itself has no deadline.
const DefaultTimeout = 3 * time.Minute

// Context is a context.Context bound to a test.
type Context struct {
	context.Context

	test   testing.TB
	cancel context.CancelFunc
	group  *errgroup.Group

	dirOnce sync.Once
	dir     string
}

// New creates a context that is canceled at the test deadline, or after
// DefaultTimeout, whichever comes first.
func New(test testing.TB) *Context {
	deadline := time.Now().Add(DefaultTimeout)
	if t, ok := test.(interface{ Deadline() (time.Time, bool) }); ok {
		if d, ok := t.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
	}

	parent, cancel := context.WithDeadline(context.Background(), deadline)
	group, ctx := errgroup.WithContext(parent)
	return &Context{
		Context: ctx,
		test:    test,
		cancel:  cancel,
		group:   group,
	}
}

// Go runs fn in the background. Its error fails the test in Cleanup.
func (ctx *Context) Go(fn func() error) {
	ctx.group.Go(fn)
}

// Check fails the test when fn returns an error. It is meant for deferred
// Close calls.
func (ctx *Context) Check(fn func() error) {
	ctx.test.Helper()
	if err := fn(); err != nil {
		ctx.test.Fatal(err)
	}
}

// Dir returns a directory under the test's temporary directory, creating
// it when needed.
func (ctx *Context) Dir(elem ...string) string {
	ctx.test.Helper()
	ctx.dirOnce.Do(func() {
		var err error
		ctx.dir, err = os.MkdirTemp("", "dht-test")
		if err != nil {
			ctx.test.Fatal(err)
		}
	})

	dir := filepath.Join(append([]string{ctx.dir}, elem...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		ctx.test.Fatal(err)
	}
	return dir
}

// File returns a path to a file under the test's temporary directory. The
// parent directories are created, the file is not.
func (ctx *Context) File(elem ...string) string {
	ctx.test.Helper()
	if len(elem) == 0 {
		ctx.test.Fatal("File needs at least one path element")
	}
	return filepath.Join(ctx.Dir(elem[:len(elem)-1]...), elem[len(elem)-1])
}

// Cleanup waits for the goroutines started with Go, then cancels the
// context and removes the temporary directory.
func (ctx *Context) Cleanup() {
	ctx.test.Helper()
	err := ctx.group.Wait()
	ctx.cancel()

	if ctx.dir != "" {
		if rerr := os.RemoveAll(ctx.dir); rerr != nil {
			ctx.test.Error(rerr)
		}
	}
	if err != nil {
		ctx.test.Fatal(err)
	}
}
