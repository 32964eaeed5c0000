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

import "time"

// Option configures a Server at construction time.
type Option func(*Options)

func loadOptions(options ...Option) *Options {
	opts := defaultOptions
	for _, o := range options {
		o(&opts)
	}
	return &opts
}

// Options holds every tunable named in the engine's external interface.
// The zero value of each field is never used directly; NewServer always
// starts from defaultOptions and layers Option values on top.
type Options struct {
	// NumWorkers is the number of worker shards, each owning its own
	// poller and round-robin share of accepted connections.
	NumWorkers int

	// RegistryCapacity bounds how many distinct methods can be registered.
	RegistryCapacity int

	// Backlog is the listen() backlog; 0 selects the platform maximum.
	Backlog int

	// WorkerPollTimeout bounds how long a worker blocks in its readiness
	// wait before it re-checks whether the server is shutting down.
	WorkerPollTimeout time.Duration

	// SlowHandlerThreshold is the handler execution time above which the
	// slowlog logs a warning. A handler exceeding this is never cancelled,
	// only reported.
	SlowHandlerThreshold time.Duration

	// AdminAddr, if non-empty, starts the gin-based admin HTTP surface
	// (/metrics, /healthz, /methods, /debug/pprof) on this address.
	AdminAddr string
}

var defaultOptions = Options{
	NumWorkers:           NumWorkers,
	RegistryCapacity:     0, // registry.DefaultCapacity
	Backlog:              0, // platform max
	WorkerPollTimeout:    WorkerPollTimeout,
	SlowHandlerThreshold: 200 * time.Millisecond,
	AdminAddr:            "",
}

// WithNumWorkers overrides the fixed worker shard count.
func WithNumWorkers(n int) Option {
	return func(o *Options) { o.NumWorkers = n }
}

// WithRegistryCapacity overrides the method registry's capacity.
func WithRegistryCapacity(n int) Option {
	return func(o *Options) { o.RegistryCapacity = n }
}

// WithBacklog overrides the listen() backlog.
func WithBacklog(n int) Option {
	return func(o *Options) { o.Backlog = n }
}

// WithWorkerPollTimeout overrides how often idle workers wake to check for
// shutdown.
func WithWorkerPollTimeout(d time.Duration) Option {
	return func(o *Options) { o.WorkerPollTimeout = d }
}

// WithSlowHandlerThreshold overrides the slowlog warning threshold.
func WithSlowHandlerThreshold(d time.Duration) Option {
	return func(o *Options) { o.SlowHandlerThreshold = d }
}

// WithAdminAddr enables the admin HTTP surface on addr.
func WithAdminAddr(addr string) Option {
	return func(o *Options) { o.AdminAddr = addr }
}
