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
	"time"

	"github.com/apaluca/sockrpc/pkg/logging"
	"github.com/apaluca/sockrpc/wire"
)

// dispatch performs exactly one read-burst/write-burst exchange on c:
// parse the request, look the method up in the registry, invoke it outside
// any registry lock, and if it produced a response, write it back.
// A parse failure or an unknown method is a silent drop — there is no
// wire-level error envelope to report it with.
func (w *workerShard) dispatch(c *conn) {
	s := w.server

	data, err := c.readBurst()
	if err != nil {
		w.removeConn(c, err)
		return
	}
	if data == nil {
		return // would-block, nothing to do this round
	}

	req, err := wire.DecodeRequest(data)
	if err != nil {
		logging.Debugf("dropping unparsable request on fd %d: %v", c.fd, err)
		return
	}

	handler, ok := s.registry.Lookup(req.Method)
	if !ok {
		logging.Debugf("dropping request for unregistered method %q", req.Method)
		return
	}

	s.stats.TotalRequests.Inc()
	s.stats.recordCall(req.Method)

	token := s.slowlog.begin(req.Method)
	start := time.Now()
	result, respond := handler(req.Params)
	s.slowlog.finish(token)
	s.stats.RequestLatency.Observe(time.Since(start).Seconds())

	if !respond {
		return
	}

	resp, err := wire.EncodeResponse(result)
	if err != nil {
		logging.Warnf("failed to encode response for method %q: %v", req.Method, err)
		return
	}
	w.writeResponse(c, resp)
}

// writeResponse writes resp to c, arming write-readiness on the connection
// if the burst doesn't drain in one call. Called only from this shard's own
// goroutine, like dispatch itself.
func (w *workerShard) writeResponse(c *conn, resp []byte) {
	remaining, err := c.writeBurst(resp)
	if err != nil {
		w.removeConn(c, err)
		return
	}
	if len(remaining) == 0 {
		return
	}
	c.pending = remaining
	if err := w.poller.ModReadWrite(c.pollAttachment); err != nil {
		logging.Warnf("shard %d failed to arm write-readiness for fd %d: %v", w.id, c.fd, err)
	}
}
