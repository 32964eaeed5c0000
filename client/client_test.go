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

package client_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apaluca/sockrpc/client"
	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
	"github.com/apaluca/sockrpc/rpcengine"
)

func startEchoServer(t *testing.T) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "sockrpc.sock")
	s, err := rpcengine.NewServer(sockPath)
	require.NoError(t, err)
	require.NoError(t, s.Register("echo", func(params json.RawMessage) (interface{}, bool) {
		var v string
		_ = json.Unmarshal(params, &v)
		return v, true
	}))
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close() })
	return sockPath
}

func TestClientCallSync(t *testing.T) {
	sockPath := startEchoServer(t)
	c, err := client.Connect(sockPath)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.CallSync("echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, string(resp))
}

func TestClientCallsAreSerializedOnOneConnection(t *testing.T) {
	sockPath := startEchoServer(t)
	c, err := client.Connect(sockPath)
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.CallSync("echo", string(rune('a'+i)))
			assert.NoError(t, err)
			var v string
			_ = json.Unmarshal(resp, &v)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		assert.Equal(t, string(rune('a'+i)), r)
	}
}

func TestClientCallAsyncDoesNotBlockCaller(t *testing.T) {
	sockPath := startEchoServer(t)
	c, err := client.Connect(sockPath)
	require.NoError(t, err)
	defer c.Close()

	done := make(chan struct{})
	start := time.Now()
	c.CallAsync("echo", "async", func(resp json.RawMessage, err error) {
		require.NoError(t, err)
		var v string
		_ = json.Unmarshal(resp, &v)
		assert.Equal(t, "async", v)
		close(done)
	})
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async callback never fired")
	}
}

func TestClientCallAfterCloseFails(t *testing.T) {
	sockPath := startEchoServer(t)
	c, err := client.Connect(sockPath)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.CallSync("echo", "hi")
	assert.ErrorIs(t, err, sockerrors.ErrClientClosed)
}
