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
	"sync"
	"time"

	"github.com/petar/GoLLRB/llrb"

	"github.com/apaluca/sockrpc/pkg/constant"
	"github.com/apaluca/sockrpc/pkg/logging"
)

// slowInvocation is one in-flight handler call tracked by deadline. It
// implements llrb.Item so the slowlog can keep every in-flight call sorted
// by how soon it will breach the threshold, without scanning the whole set
// on every sweep.
type slowInvocation struct {
	id       uint64
	method   string
	started  time.Time
	deadline time.Time
	warned   bool
}

func (a *slowInvocation) Less(than llrb.Item) bool {
	b := than.(*slowInvocation)
	if a.deadline.Equal(b.deadline) {
		return a.id < b.id
	}
	return a.deadline.Before(b.deadline)
}

// slowLog tracks handler invocations that are taking longer than
// threshold to return. It never interrupts a handler; the worst it does is
// log a warning. Handlers always run to completion.
type slowLog struct {
	mu        sync.Mutex
	tree      *llrb.LLRB
	byID      map[uint64]*slowInvocation
	threshold time.Duration
	nextID    uint64
}

func newSlowLog(threshold time.Duration) *slowLog {
	return &slowLog{
		tree:      llrb.New(),
		byID:      make(map[uint64]*slowInvocation),
		threshold: threshold,
	}
}

// begin records the start of a handler invocation and returns a token to
// pass to finish when it returns.
func (s *slowLog) begin(method string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	now := time.Now()
	inv := &slowInvocation{id: id, method: method, started: now, deadline: now.Add(s.threshold)}
	s.tree.InsertNoReplace(inv)
	s.byID[id] = inv
	return id
}

// finish removes the invocation from tracking once its handler returns.
func (s *slowLog) finish(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return
	}
	s.tree.Delete(inv)
	delete(s.byID, id)
}

// sweep logs a warning for every invocation whose deadline has already
// passed and that hasn't been warned about yet. It is safe to call
// periodically from a single ticker goroutine.
func (s *slowLog) sweep(now time.Time) {
	s.mu.Lock()
	var overdue []*slowInvocation
	pivot := &slowInvocation{deadline: now, id: ^uint64(0)}
	s.tree.AscendLessThan(pivot, func(i llrb.Item) bool {
		inv := i.(*slowInvocation)
		if !inv.warned {
			inv.warned = true
			overdue = append(overdue, inv)
		}
		return true
	})
	s.mu.Unlock()

	for _, inv := range overdue {
		logging.Warnf("%s method %q has been running for %s, exceeding the %s slow-handler threshold",
			constant.TitleSlowLog, inv.method, now.Sub(inv.started), s.threshold)
	}
}

// depth reports the number of in-flight invocations currently tracked.
func (s *slowLog) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}
