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

// Package netpoll wraps the platform readiness multiplexer (epoll on Linux,
// kqueue on the BSDs and Darwin) behind a single Poller type. Each worker
// shard owns exactly one Poller instance and a disjoint set of connections;
// nothing here is shared across shards.
package netpoll

// IOEvent is a bitmask of the readiness conditions the platform reported
// for a file descriptor.
type IOEvent uint32

const (
	// InEvents is reported when a descriptor has data available to read,
	// or (for a listener) a pending connection to accept.
	InEvents IOEvent = 1 << iota
	// OutEvents is reported when a descriptor is writable.
	OutEvents
	// EVFilterSock is synthesized for EOF/error conditions the platform
	// folds into its event rather than reporting as a distinct flag.
	EVFilterSock
)

// MaxEventsPerWait is the starting capacity of a poller's scratch event
// buffer for a single readiness wait; Polling grows it on demand when a
// wait fills the buffer completely, so this only bounds the common case.
const MaxEventsPerWait = 10

// PollEventHandler processes one ready descriptor. Returning
// errors.ErrAcceptSocket or errors.ErrEngineShutdown unwinds the Polling
// loop; any other non-nil error is logged and polling continues.
type PollEventHandler func(fd int, event IOEvent) error

// PollAttachment pairs a file descriptor with the callback its readiness
// events should be dispatched to. The platform-specific poller stashes a
// pointer to this value in the kernel event's opaque user-data field.
type PollAttachment struct {
	FD       int
	Callback PollEventHandler
}
