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

package wire

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	b, err := EncodeRequest("add", map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)

	req, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, "add", req.Method)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(req.Params))
}

// TestDecodeRequestSuppliesNullParamsWhenAbsent pins down spec.md's
// "handlers never observe a null parameter pointer" invariant: an omitted
// params key must decode to the JSON null literal, not a nil RawMessage.
func TestDecodeRequestSuppliesNullParamsWhenAbsent(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"method":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("null"), req.Params)
}

func TestDecodeRequestRejectsMissingMethod(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"params":{}}`))
	assert.ErrorIs(t, err, sockerrors.ErrMalformedRequest)
}

func TestDecodeRequestRejectsNonStringMethod(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"method":7}`))
	assert.ErrorIs(t, err, sockerrors.ErrMalformedRequest)
}

func TestDecodeRequestRejectsInvalidJSON(t *testing.T) {
	_, err := DecodeRequest([]byte(`not json`))
	assert.ErrorIs(t, err, sockerrors.ErrMalformedRequest)
}

func TestEncodeResponseRejectsOversize(t *testing.T) {
	_, err := EncodeResponse(strings.Repeat("x", BufferSize+1))
	assert.ErrorIs(t, err, sockerrors.ErrResponseTooLarge)
}
