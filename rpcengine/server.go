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

// Package rpcengine implements the server half of sockrpc: a Unix-domain
// socket listener, a dedicated acceptor goroutine, and a fixed pool of
// worker shards that each own a readiness poller and dispatch requests
// against a shared method registry.
package rpcengine

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/apaluca/sockrpc/internal/netpoll"
	"github.com/apaluca/sockrpc/internal/usock"
	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
	"github.com/apaluca/sockrpc/pkg/logging"
	"github.com/apaluca/sockrpc/registry"
)

// sweepInterval is how often the slowlog is swept for overdue handler
// invocations and the slowlog-depth gauge is refreshed.
const sweepInterval = time.Second

// Server owns a Unix-domain socket listener and the worker shards that
// service connections accepted on it.
type Server struct {
	sockPath string
	listenFD int

	registry *registry.Registry
	stats    *Stats
	slowlog  *slowLog
	opts     *Options

	shards     []*workerShard
	cursor     atomic.Uint32
	running    atomic.Bool
	listenerPA *netpoll.PollAttachment
	acceptor   *netpoll.Poller
	acceptWG   sync.WaitGroup
	shutdownMu sync.Mutex
	webServer  *webServer
	sweepDone  chan struct{}
}

// NewServer builds a Server bound to the Unix-domain socket at sockPath.
// The socket is not created until Start is called.
func NewServer(sockPath string, options ...Option) (*Server, error) {
	opts := loadOptions(options...)
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = NumWorkers
	}

	s := &Server{
		sockPath: sockPath,
		registry: registry.New(opts.RegistryCapacity),
		stats:    NewStats("sockrpc"),
		slowlog:  newSlowLog(opts.SlowHandlerThreshold),
		opts:     opts,
	}
	return s, nil
}

// Register adds a named handler to the server's method registry. It must
// be called before Start, or while the server is already running — the
// registry is safe for concurrent registration and lookup either way.
func (s *Server) Register(name string, h registry.Handler) error {
	return s.registry.Register(name, h)
}

// Start opens the listening socket, spawns the acceptor and every worker
// shard, and returns once they are all running. It does not block for the
// lifetime of the server; call Close to shut down.
func (s *Server) Start() error {
	if s.running.Load() {
		return sockerrors.ErrEngineInShutdown
	}

	fd, err := usock.Listen(s.sockPath, s.opts.Backlog)
	if err != nil {
		return err
	}
	s.listenFD = fd

	s.shards = make([]*workerShard, s.opts.NumWorkers)
	for i := range s.shards {
		shard, err := newWorkerShard(i, s)
		if err != nil {
			return err
		}
		s.shards[i] = shard
	}

	acceptorPoller, err := netpoll.OpenPoller()
	if err != nil {
		return err
	}
	s.acceptor = acceptorPoller
	s.listenerPA = &netpoll.PollAttachment{FD: s.listenFD, Callback: s.acceptOne}
	if err := s.acceptor.AddRead(s.listenerPA); err != nil {
		return err
	}

	s.running.Store(true)

	for _, shard := range s.shards {
		shard := shard
		s.acceptWG.Add(1)
		go func() {
			defer s.acceptWG.Done()
			shard.run()
		}()
	}

	s.acceptWG.Add(1)
	go func() {
		defer s.acceptWG.Done()
		s.runAcceptor()
	}()

	s.sweepDone = make(chan struct{})
	s.acceptWG.Add(1)
	go func() {
		defer s.acceptWG.Done()
		s.runSlowlogSweep()
	}()

	if s.opts.AdminAddr != "" {
		s.webServer = newWebServer(s)
		s.webServer.start(s.opts.AdminAddr)
	}

	logging.Infof("sockrpc server listening on %s with %d worker shards", s.sockPath, len(s.shards))
	return nil
}

// runAcceptor drives the dedicated acceptor poller. The listening socket is
// itself registered with a poller so the acceptor only wakes when a
// connection is actually pending, rather than blocking in accept().
func (s *Server) runAcceptor() {
	timeoutMillis := int(s.opts.WorkerPollTimeout / 1e6)
	err := s.acceptor.Polling(timeoutMillis, func() bool {
		return !s.running.Load()
	})
	_ = s.acceptor.Close()
	if err != nil && err != sockerrors.ErrEngineShutdown {
		logging.Warnf("acceptor exiting due to error: %v", err)
	}
}

// runSlowlogSweep periodically sweeps the slowlog for overdue handler
// invocations and refreshes the slowlog-depth gauge, until Close signals
// sweepDone.
func (s *Server) runSlowlogSweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepDone:
			return
		case now := <-ticker.C:
			s.slowlog.sweep(now)
			s.stats.SlowlogDepth.Set(float64(s.slowlog.depth()))
		}
	}
}

// acceptOne accepts every currently-pending connection on the listener and
// hands each to the next shard in round-robin order.
func (s *Server) acceptOne(_ int, _ netpoll.IOEvent) error {
	for {
		connFD, err := usock.Accept(s.listenFD)
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			logging.Errorf("accept failed: %v", err)
			return sockerrors.ErrAcceptSocket
		}

		idx := s.cursor.Add(1) % uint32(len(s.shards))
		shard := s.shards[idx]
		if err := shard.addConn(connFD); err != nil {
			logging.Warnf("failed to register accepted connection with shard %d: %v", idx, err)
		}
	}
}

// Close stops the acceptor and every worker shard, closes the listening
// socket, and removes the socket file. It blocks until every goroutine has
// exited. In-flight handler invocations are allowed to run to completion;
// Close does not interrupt them.
func (s *Server) Close() error {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if !s.running.CompareAndSwap(true, false) {
		return sockerrors.ErrEngineInShutdown
	}

	close(s.sweepDone)
	s.acceptWG.Wait()
	_ = usock.Close(s.listenFD)
	_ = os.Remove(s.sockPath)

	if s.webServer != nil {
		s.webServer.stop()
	}
	logging.Infof("sockrpc server on %s stopped", s.sockPath)
	return nil
}

// Registry exposes the server's method registry for the admin surface.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Stats exposes the server's metric collectors for the admin surface.
func (s *Server) Stats() *Stats { return s.stats }

// Running reports whether the server is currently accepting requests.
func (s *Server) Running() bool { return s.running.Load() }
