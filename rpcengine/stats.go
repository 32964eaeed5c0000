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
	"fmt"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the server's Prometheus collectors and a lock-free per-method
// call counter map. Per-connection and per-request counters are updated
// from worker-shard goroutines, so everything here must be safe for
// concurrent use without a server-wide lock — that's what rules out a
// plain map guarded by a mutex for methodCalls, and what the registry
// itself deliberately does NOT use (see package registry's doc comment).
//
// Each Stats owns a private prometheus.Registry rather than registering
// against the package-global DefaultRegisterer: a process that builds more
// than one Server (every test in this module does) would otherwise panic
// on the second NewStats call with a duplicate-collector error.
type Stats struct {
	Registry *prometheus.Registry

	TotalConnections prometheus.Counter
	CurrConnections  *prometheus.GaugeVec
	TotalRequests    prometheus.Counter
	RequestLatency   prometheus.Histogram
	SlowlogDepth     prometheus.Gauge

	methodCalls hashmap.HashMap
}

// NewStats builds and registers a fresh set of collectors under namespace,
// against a registry private to this Stats instance.
func NewStats(namespace string) *Stats {
	s := &Stats{
		Registry: prometheus.NewRegistry(),
		TotalConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_connections",
			Help:      "total accepted connections",
		}),
		CurrConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "curr_connections",
			Help:      "current connections per worker shard",
		}, []string{"shard"}),
		TotalRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_requests",
			Help:      "total dispatched requests",
		}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "handler execution latency",
			Buckets:   prometheus.DefBuckets,
		}),
		SlowlogDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slowlog_depth",
			Help:      "number of in-flight handler invocations currently tracked by the slowlog",
		}),
	}
	s.Registry.MustRegister(s.TotalConnections, s.CurrConnections, s.TotalRequests, s.RequestLatency, s.SlowlogDepth)
	return s
}

// recordCall increments the per-method call counter, creating it on first
// use. GetOrInsert races are resolved by the hashmap itself; the loser of
// the race still gets a valid, shared *int64 to increment.
func (s *Stats) recordCall(method string) {
	counter, _ := s.methodCalls.GetOrInsert(method, new(int64))
	atomic.AddInt64(counter.(*int64), 1)
}

// MethodCallCounts returns a snapshot of every method's call count, used by
// the admin surface's /methods endpoint.
func (s *Stats) MethodCallCounts() map[string]int64 {
	out := make(map[string]int64)
	for kv := range s.methodCalls.Iter() {
		out[fmt.Sprint(kv.Key)] = atomic.LoadInt64(kv.Value.(*int64))
	}
	return out
}
