// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package errs2_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/dht/internal/errs2"
)

func TestGroup(t *testing.T) {
	var group errs2.Group
	var calls int32
	errFailed := errors.New("failed")

	for i := 0; i < 10; i++ {
		i := i
		group.Go(func() error {
			atomic.AddInt32(&calls, 1)
			if i%3 == 0 {
				return errFailed
			}
			return nil
		})
	}

	errlist := group.Wait()
	assert.Equal(t, int32(10), atomic.LoadInt32(&calls))
	require.Len(t, errlist, 4)
	for _, err := range errlist {
		assert.ErrorIs(t, err, errFailed)
	}
}

func TestGroupEmpty(t *testing.T) {
	var group errs2.Group
	assert.Empty(t, group.Wait())
}
