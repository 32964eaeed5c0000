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

// Package wire defines the JSON request/response envelope exchanged over a
// sockrpc connection and the burst sizes used to read and write it. There
// is no length-prefix or delimiter: a request is exactly one write burst
// from the client's point of view and exactly one write burst back, read in
// a single non-blocking read on the server side.
package wire

import (
	json "github.com/goccy/go-json"
	"github.com/valyala/bytebufferpool"

	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
)

// BufferSize is the capacity, in bytes, of the fixed read burst buffers on
// both sides: the one a worker reads a request into and the one the client
// reads a response into. A request that does not fit is cut short by the
// server's read and fails to parse; EncodeResponse refuses to build a
// response larger than this and returns ErrResponseTooLarge instead.
const BufferSize = 4096

// Request is the envelope a client sends for every call, sync or async.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// DecodeRequest parses a request read-burst. A missing or non-string method
// field is reported the same way a JSON syntax error is: both are treated
// as an unparseable request, since the wire format makes no distinction
// between "not JSON" and "JSON missing a required field".
func DecodeRequest(b []byte) (Request, error) {
	var req struct {
		Method json.RawMessage `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(b, &req); err != nil {
		return Request{}, sockerrors.ErrMalformedRequest
	}
	var method string
	if err := json.Unmarshal(req.Method, &method); err != nil || method == "" {
		return Request{}, sockerrors.ErrMalformedRequest
	}
	if req.Params == nil {
		req.Params = json.RawMessage("null")
	}
	return Request{Method: method, Params: req.Params}, nil
}

// EncodeRequest serializes a method call for the client side. The envelope
// is built in a pooled buffer rather than through a second json.Marshal
// pass, since every sync call on the hot path pays for this allocation.
func EncodeRequest(method string, params interface{}) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(Request{Method: method, Params: raw}); err != nil {
		return nil, err
	}
	return copyTrimmed(buf), nil
}

// EncodeResponse serializes a handler's return value for the write burst.
// It returns ErrResponseTooLarge rather than silently truncating, so the
// caller can log the overflow instead of shipping a corrupt document.
func EncodeResponse(v interface{}) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	if buf.Len() > BufferSize {
		return nil, sockerrors.ErrResponseTooLarge
	}
	return copyTrimmed(buf), nil
}

// copyTrimmed copies a pooled buffer's contents out (the buffer is about to
// be returned to the pool) and trims the trailing newline json.Encoder adds.
func copyTrimmed(buf *bytebufferpool.ByteBuffer) []byte {
	b := buf.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
