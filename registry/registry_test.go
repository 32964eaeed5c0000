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

package registry

import (
	"fmt"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
)

func echoHandler(params json.RawMessage) (interface{}, bool) {
	return string(params), true
}

func TestRegisterAndLookup(t *testing.T) {
	r := New(DefaultCapacity)
	require.NoError(t, r.Register("echo", echoHandler))

	h, ok := r.Lookup("echo")
	require.True(t, ok)
	v, respond := h(nil)
	assert.True(t, respond)
	assert.Equal(t, "", v)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := New(DefaultCapacity)
	assert.ErrorIs(t, r.Register("", echoHandler), sockerrors.ErrInvalidMethodName)
}

// TestRegisterReplacesDuplicate pins down the overwrite-on-reregister law:
// registering the same name twice with two different handlers leaves the
// second handler servicing all subsequent calls, not an error.
func TestRegisterReplacesDuplicate(t *testing.T) {
	r := New(DefaultCapacity)
	require.NoError(t, r.Register("echo", echoHandler))
	require.NoError(t, r.Register("echo", func(json.RawMessage) (interface{}, bool) {
		return "replaced", true
	}))

	h, ok := r.Lookup("echo")
	require.True(t, ok)
	v, respond := h(nil)
	assert.True(t, respond)
	assert.Equal(t, "replaced", v)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterRejectsOverflow(t *testing.T) {
	r := New(2)
	require.NoError(t, r.Register("a", echoHandler))
	require.NoError(t, r.Register("b", echoHandler))
	assert.ErrorIs(t, r.Register("c", echoHandler), sockerrors.ErrRegistryFull)
	assert.Equal(t, 2, r.Len())
}

// TestConcurrentRegisterLookup exercises the registry's atomicity property:
// lookups interleaved with registrations never observe a partially-applied
// registration and never panic on a torn read.
func TestConcurrentRegisterLookup(t *testing.T) {
	r := New(DefaultCapacity)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("m%d", i), echoHandler)
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Lookup(fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), DefaultCapacity)
}
