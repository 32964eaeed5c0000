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

// Package registry holds the method table a sockrpc server dispatches
// against. Lookups happen on every request, but registration is rare (it
// typically only happens at startup), so the table favors atomic-replace
// simplicity over lookup throughput: it is a flat slice scanned linearly
// under a mutex rather than a map. At the expected cardinality (at most
// DefaultCapacity entries by default) a linear scan costs nothing a map would meaningfully
// improve on, and it sidesteps Go map's lack of ordering guarantees when
// the registered set is dumped for the admin surface.
package registry

import (
	"sync"

	json "github.com/goccy/go-json"

	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
)

// DefaultCapacity is the maximum number of distinct methods a Registry will
// hold unless a different capacity is supplied to New.
const DefaultCapacity = 100

// Handler processes a single request's params and returns the value to
// encode as the response. The second return value reports whether a
// response should be written at all; returning false sends nothing back,
// matching the wire convention that a response is optional.
type Handler func(params json.RawMessage) (interface{}, bool)

type entry struct {
	name    string
	handler Handler
}

// Registry is a bounded, mutex-guarded table of named handlers. The zero
// value is not usable; construct one with New.
type Registry struct {
	mu       sync.Mutex
	entries  []entry
	capacity int
}

// New builds a Registry with room for capacity distinct methods. A
// capacity of zero selects DefaultCapacity.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		entries:  make([]entry, 0, capacity),
		capacity: capacity,
	}
}

// Register adds a named handler, or replaces the handler already
// registered under name. It fails if the name is empty or, for a new
// name, if the registry is at capacity.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return sockerrors.ErrInvalidMethodName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.name == name {
			r.entries[i].handler = h
			return nil
		}
	}
	if len(r.entries) >= r.capacity {
		return sockerrors.ErrRegistryFull
	}
	r.entries = append(r.entries, entry{name: name, handler: h})
	return nil
}

// Lookup returns the handler registered for name, if any. The caller must
// invoke the returned handler outside any lock the registry holds: Lookup
// only ever holds its internal mutex for the duration of the scan, never
// across the handler call, so a slow or reentrant handler cannot block
// registration or other lookups.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.name == name {
			return e.handler, true
		}
	}
	return nil, false
}

// Names returns a snapshot of every registered method name, used by the
// admin surface's /methods endpoint.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Len reports the number of registered methods.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
