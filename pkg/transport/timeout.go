// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package transport

import (
	"context"
	"time"

	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
)

type timeoutConn struct {
	conn    Conn
	timeout time.Duration
}

// WithTimeout bounds every request on conn by timeout. Requests that run out
// of time fail with ErrTimeout.
func WithTimeout(conn Conn, timeout time.Duration) Conn {
	if timeout <= 0 {
		return conn
	}
	return &timeoutConn{conn: conn, timeout: timeout}
}

func (tc *timeoutConn) RemotePeer() peer.ID { return tc.conn.RemotePeer() }

func (tc *timeoutConn) Send(ctx context.Context, req *pb.Message) (*pb.Message, error) {
	// deadline needs to be set before each request
	reqCtx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()

	resp, err := tc.conn.Send(reqCtx, req)
	if err != nil && ctx.Err() == nil && reqCtx.Err() == context.DeadlineExceeded && !ErrTimeout.Has(err) {
		return nil, ErrTimeout.Wrap(err)
	}
	return resp, err
}

func (tc *timeoutConn) Close() error { return tc.conn.Close() }
