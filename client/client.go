// Copyright (c) 2022 The rcproxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package client implements the sockrpc client half: a single shared
// connection multiplexed between synchronous calls and detached
// fire-and-forget async calls, grounded on the same single-connection
// Do()-style call pattern used elsewhere in this codebase for talking to a
// backend over one blocking socket.
package client

import (
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/apaluca/sockrpc/internal/usock"
	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
	"github.com/apaluca/sockrpc/wire"
)

// Client is a single connection to a sockrpc server. It is safe for
// concurrent use: the mutex is held across exactly one write burst and its
// matching read burst, for both sync and async calls, so two calls in
// flight at once are serialized rather than interleaved on the wire —
// there is no pipelining.
type Client struct {
	mu     sync.Mutex
	fd     int
	closed atomic.Bool
	buf    [wire.BufferSize]byte
}

// Connect dials a sockrpc server listening on a Unix-domain socket at path.
func Connect(path string) (*Client, error) {
	fd, err := usock.Dial(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", path)
	}
	return &Client{fd: fd}, nil
}

// CallSync sends method/params and blocks for the matching response. It
// holds the client's mutex for the whole write-then-read exchange, so
// concurrent CallSync/CallAsync invocations never interleave their bytes
// on the wire.
func (c *Client) CallSync(method string, params interface{}) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, sockerrors.ErrClientClosed
	}

	req, err := wire.EncodeRequest(method, params)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := usock.WriteFull(c.fd, req); err != nil {
		return nil, errors.Wrapf(err, "write request for method %q", method)
	}

	n, err := usock.ReadRetry(c.fd, c.buf[:])
	if err != nil {
		return nil, errors.Wrapf(err, "read response for method %q", method)
	}
	if n == 0 {
		return nil, sockerrors.ErrEmptyResponse
	}

	resp := make(json.RawMessage, n)
	copy(resp, c.buf[:n])
	return resp, nil
}

// CallAsync spawns a detached goroutine that performs the same synchronous
// call path as CallSync and reports the outcome to cb. The caller does not
// block, and cb may run after CallAsync has returned.
func (c *Client) CallAsync(method string, params interface{}, cb func(json.RawMessage, error)) {
	go func() {
		resp, err := c.CallSync(method, params)
		if cb != nil {
			cb(resp, err)
		}
	}()
}

// Close closes the underlying connection. Calls already holding the mutex
// are allowed to finish; subsequent calls fail with ErrClientClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return sockerrors.ErrClientClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return usock.Close(c.fd)
}
