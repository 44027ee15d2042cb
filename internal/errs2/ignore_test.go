// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package errs2_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"

	"storj.io/dht/internal/errs2"
)

func TestIgnoreCanceled(t *testing.T) {
	require.NoError(t, errs2.IgnoreCanceled(nil))
	require.NoError(t, errs2.IgnoreCanceled(context.Canceled))
	require.NoError(t, errs2.IgnoreCanceled(errs.Wrap(context.Canceled)))

	err := errs.New("failure")
	require.Equal(t, err, errs2.IgnoreCanceled(err))
	require.Equal(t, context.DeadlineExceeded, errs2.IgnoreCanceled(context.DeadlineExceeded))
}
