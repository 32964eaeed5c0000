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

package rpcengine

import (
	"strconv"
	"sync"

	"github.com/apaluca/sockrpc/internal/netpoll"
	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
	"github.com/apaluca/sockrpc/pkg/logging"
)

// workerShard is one of the server's fixed worker goroutines. It owns a
// poller instance and a disjoint subset of the server's connections; the
// acceptor is the only other goroutine that ever touches a shard, and it
// only ever adds connections, never removes or reads them.
type workerShard struct {
	id     int
	server *Server
	poller *netpoll.Poller

	connMu    sync.Mutex
	conns     map[int]*conn
	connCount int
}

func newWorkerShard(id int, s *Server) (*workerShard, error) {
	p, err := netpoll.OpenPoller()
	if err != nil {
		return nil, err
	}
	return &workerShard{
		id:     id,
		server: s,
		poller: p,
		conns:  make(map[int]*conn),
	}, nil
}

// addConn registers a freshly accepted connection with this shard's
// poller. Called from the acceptor goroutine, not the shard's own.
func (w *workerShard) addConn(fd int) error {
	c := newConn(fd)
	c.pollAttachment.Callback = w.handleEvent

	w.connMu.Lock()
	w.conns[fd] = c
	w.connCount++
	w.connMu.Unlock()

	w.server.stats.TotalConnections.Inc()
	w.server.stats.CurrConnections.WithLabelValues(shardLabel(w.id)).Inc()

	return w.poller.AddRead(c.pollAttachment)
}

// load returns the shard's current connection count, read under its own
// mutex per the concurrency model's explicit exception for this counter.
func (w *workerShard) load() int {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.connCount
}

// handleEvent is the poller callback invoked with this shard's own
// goroutine as the only caller, once per readiness notification.
func (w *workerShard) handleEvent(fd int, ev netpoll.IOEvent) error {
	w.connMu.Lock()
	c, ok := w.conns[fd]
	w.connMu.Unlock()
	if !ok {
		return nil
	}

	if ev == netpoll.EVFilterSock {
		w.removeConn(c, nil)
		return nil
	}

	if ev&netpoll.OutEvents != 0 {
		w.flushPending(c)
	}
	if ev&netpoll.InEvents != 0 {
		w.dispatch(c)
	}
	return nil
}

// flushPending resumes writing a response's unwritten tail once the poller
// reports c writable again, and reverts c to read-only readiness the
// moment the tail fully drains.
func (w *workerShard) flushPending(c *conn) {
	remaining, err := c.writeBurst(c.pending)
	if err != nil {
		w.removeConn(c, err)
		return
	}
	c.pending = remaining
	if len(c.pending) > 0 {
		return
	}
	if err := w.poller.ModRead(c.pollAttachment); err != nil {
		logging.Warnf("shard %d failed to revert fd %d to read-only readiness: %v", w.id, c.fd, err)
	}
}

// removeConn closes and deregisters c. Safe to call from the shard's own
// goroutine only.
func (w *workerShard) removeConn(c *conn, cause error) {
	_ = w.poller.Delete(c.fd)
	_ = c.close()

	w.connMu.Lock()
	delete(w.conns, c.fd)
	w.connCount--
	w.connMu.Unlock()

	w.server.stats.CurrConnections.WithLabelValues(shardLabel(w.id)).Dec()
	if cause != nil {
		logging.Debugf("shard %d closed connection fd=%d: %v", w.id, c.fd, cause)
	}
}

func (w *workerShard) closeAllConns() {
	w.connMu.Lock()
	fds := make([]*conn, 0, len(w.conns))
	for _, c := range w.conns {
		fds = append(fds, c)
	}
	w.connMu.Unlock()

	for _, c := range fds {
		_ = c.close()
	}
}

// run blocks until the server stops running or the poller reports a fatal
// error. It is meant to be launched once per shard as its own goroutine.
func (w *workerShard) run() {
	timeoutMillis := int(w.server.opts.WorkerPollTimeout / 1e6)
	err := w.poller.Polling(timeoutMillis, func() bool {
		return !w.server.running.Load()
	})
	w.closeAllConns()
	_ = w.poller.Close()
	if err != nil && err != sockerrors.ErrEngineShutdown {
		logging.Warnf("worker shard %d exiting due to error: %v", w.id, err)
	}
}

func shardLabel(id int) string {
	return "shard-" + strconv.Itoa(id)
}
