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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlowLogTracksInFlightInvocations(t *testing.T) {
	s := newSlowLog(50 * time.Millisecond)
	id := s.begin("slow-method")
	assert.Equal(t, 1, s.depth())

	s.finish(id)
	assert.Equal(t, 0, s.depth())
}

func TestSlowLogSweepWarnsOnlyOnce(t *testing.T) {
	s := newSlowLog(1 * time.Millisecond)
	id := s.begin("slow-method")
	time.Sleep(5 * time.Millisecond)

	// The first sweep after the deadline passes marks the invocation
	// warned; a handler that never finishes must not spam the log on
	// every subsequent sweep.
	s.sweep(time.Now())
	s.mu.Lock()
	inv := s.byID[id]
	s.mu.Unlock()
	assert.True(t, inv.warned)

	s.sweep(time.Now())
	assert.Equal(t, 1, s.depth(), "invocation stays tracked until finish is called, never cancelled")

	s.finish(id)
	assert.Equal(t, 0, s.depth())
}
