// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2019 Andy Pan
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

package rpcengine

import (
	"golang.org/x/sys/unix"

	"github.com/apaluca/sockrpc/internal/netpoll"
	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
	"github.com/apaluca/sockrpc/wire"
)

// conn is one accepted client connection, owned by exactly one shard for
// its entire lifetime. Nothing outside that shard's goroutine touches fd,
// buf or pending, so none of them need their own lock.
type conn struct {
	fd             int
	pollAttachment *netpoll.PollAttachment
	buf            [wire.BufferSize]byte

	// pending holds the tail of a response write-burst that didn't drain
	// in one unix.Write call. Non-empty only while the shard has switched
	// this connection's poller registration to read+write readiness.
	pending []byte
}

func newConn(fd int) *conn {
	c := &conn{fd: fd}
	c.pollAttachment = &netpoll.PollAttachment{FD: fd}
	return c
}

// readBurst performs the single non-blocking read a request arrives in,
// retrying transparently if interrupted by a signal. A would-block with
// nothing read returns (nil, nil); a closed peer returns
// sockerrors.ErrClientClosed so the caller can tell "nothing yet" apart
// from "never again" without re-deriving it from a raw byte count.
func (c *conn) readBurst() (data []byte, err error) {
	for {
		n, rerr := unix.Read(c.fd, c.buf[:])
		if rerr != nil {
			if rerr == unix.EINTR {
				continue
			}
			if rerr == unix.EAGAIN {
				return nil, nil
			}
			return nil, rerr
		}
		if n == 0 {
			return nil, sockerrors.ErrClientClosed
		}
		return c.buf[:n], nil
	}
}

// writeBurst writes as much of data as the socket accepts in one call,
// retrying transparently if interrupted by a signal. It returns the
// unwritten tail, if any: a full EAGAIN (nothing accepted) returns data
// unchanged, a partial write returns the remainder, and a completed write
// returns nil. The caller is responsible for arming write-readiness on the
// returned tail and resuming the write once the poller reports the
// descriptor writable again.
func (c *conn) writeBurst(data []byte) (remaining []byte, err error) {
	if len(data) == 0 {
		return nil, nil
	}
	for {
		n, werr := unix.Write(c.fd, data)
		if werr != nil {
			if werr == unix.EINTR {
				continue
			}
			if werr == unix.EAGAIN {
				return data, nil
			}
			return nil, werr
		}
		if n < len(data) {
			return data[n:], nil
		}
		return nil, nil
	}
}

func (c *conn) close() error {
	return unix.Close(c.fd)
}
