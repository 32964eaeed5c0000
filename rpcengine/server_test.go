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
	"net"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apaluca/sockrpc/client"
	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
	"github.com/apaluca/sockrpc/wire"
)

func startTestServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "sockrpc.sock")
	s, err := NewServer(sockPath, opts...)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close() })
	return s, sockPath
}

func dialTestClient(t *testing.T, sockPath string) *client.Client {
	t.Helper()
	var c *client.Client
	var err error
	for i := 0; i < 50; i++ {
		c, err = client.Connect(sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEchoRoundTrip(t *testing.T) {
	s, sockPath := startTestServer(t)
	require.NoError(t, s.Register("echo", func(params json.RawMessage) (interface{}, bool) {
		var v interface{}
		_ = json.Unmarshal(params, &v)
		return v, true
	}))

	c := dialTestClient(t, sockPath)
	resp, err := c.CallSync("echo", map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(resp))
}

func TestAddRoundTrip(t *testing.T) {
	s, sockPath := startTestServer(t)
	require.NoError(t, s.Register("add", func(params json.RawMessage) (interface{}, bool) {
		var args struct{ A, B int }
		_ = json.Unmarshal(params, &args)
		return args.A + args.B, true
	}))

	c := dialTestClient(t, sockPath)
	resp, err := c.CallSync("add", struct{ A, B int }{A: 2, B: 3})
	require.NoError(t, err)
	assert.Equal(t, "5", string(resp))
}

func TestUppercaseAsync(t *testing.T) {
	s, sockPath := startTestServer(t)
	require.NoError(t, s.Register("upper", func(params json.RawMessage) (interface{}, bool) {
		var v string
		_ = json.Unmarshal(params, &v)
		return strings.ToUpper(v), true
	}))

	c := dialTestClient(t, sockPath)

	var wg sync.WaitGroup
	wg.Add(1)
	var got string
	var callErr error
	c.CallAsync("upper", "hello", func(resp json.RawMessage, err error) {
		defer wg.Done()
		callErr = err
		_ = json.Unmarshal(resp, &got)
	})
	wg.Wait()
	require.NoError(t, callErr)
	assert.Equal(t, "HELLO", got)
}

func TestDynamicRegistrationUnderLoad(t *testing.T) {
	s, sockPath := startTestServer(t)
	require.NoError(t, s.Register("ping", func(json.RawMessage) (interface{}, bool) {
		return "pong", true
	}))

	c := dialTestClient(t, sockPath)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.CallSync("ping", nil)
			assert.NoError(t, err)
			assert.Equal(t, `"pong"`, string(resp))
		}()
	}

	require.NoError(t, s.Register("ping2", func(json.RawMessage) (interface{}, bool) {
		return "pong2", true
	}))
	wg.Wait()

	resp, err := c.CallSync("ping2", nil)
	require.NoError(t, err)
	assert.Equal(t, `"pong2"`, string(resp))
}

func TestUnknownMethodIsSilentlyDropped(t *testing.T) {
	_, sockPath := startTestServer(t)

	// Dial with net.DialUnix directly rather than client.Client: the real
	// client sets no read deadline (CallSync blocks until a response
	// arrives), so proving "no response ever arrives" needs a deadline
	// this test controls rather than client.Client's indefinite block.
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: sockPath, Net: "unix"})
	require.NoError(t, err)
	defer conn.Close()

	req, err := wire.EncodeRequest("does-not-exist", nil)
	require.NoError(t, err)
	_, err = conn.Write(req)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, wire.BufferSize)
	_, err = conn.Read(buf)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "expected a read timeout since an unknown method gets no response")
}

func TestServerLifecycle(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "sockrpc.sock")
	s, err := NewServer(sockPath)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.True(t, s.Running())

	require.NoError(t, s.Close())
	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Close(), sockerrors.ErrEngineInShutdown)
}

// stressMatrixPair is the param shape for multiply: two 3x3 integer
// matrices, per spec.md's §8 stress scenario.
type stressMatrixPair struct {
	A [3][3]int `json:"a"`
	B [3][3]int `json:"b"`
}

func TestStressMixedSyncAsync(t *testing.T) {
	s, sockPath := startTestServer(t, WithNumWorkers(4))
	require.NoError(t, s.Register("sort", func(params json.RawMessage) (interface{}, bool) {
		var nums []int
		_ = json.Unmarshal(params, &nums)
		sort.Ints(nums)
		return nums, true
	}))
	require.NoError(t, s.Register("multiply", func(params json.RawMessage) (interface{}, bool) {
		var p stressMatrixPair
		_ = json.Unmarshal(params, &p)
		var result [3][3]int
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				sum := 0
				for k := 0; k < 3; k++ {
					sum += p.A[i][k] * p.B[k][j]
				}
				result[i][j] = sum
			}
		}
		return result, true
	}))
	require.NoError(t, s.Register("process", func(params json.RawMessage) (interface{}, bool) {
		var text string
		_ = json.Unmarshal(params, &text)
		return strings.ToUpper(text), true
	}))

	const clients = 5
	const opsPerClient = 20
	methods := []string{"sort", "multiply", "process"}

	sortParams := make([]int, 20)
	for i := range sortParams {
		sortParams[i] = 20 - i
	}
	processParams := strings.Repeat("a", 128)
	multiplyParams := stressMatrixPair{
		A: [3][3]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
		B: [3][3]int{{9, 8, 7}, {6, 5, 4}, {3, 2, 1}},
	}
	params := map[string]interface{}{
		"sort":     sortParams,
		"multiply": multiplyParams,
		"process":  processParams,
	}

	var wg sync.WaitGroup
	errs := make(chan error, clients*opsPerClient)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(clientIdx int) {
			defer wg.Done()
			c := dialTestClient(t, sockPath)
			var innerWG sync.WaitGroup
			for j := 0; j < opsPerClient; j++ {
				method := methods[j%len(methods)]
				if j%2 == 0 {
					_, err := c.CallSync(method, params[method])
					if err != nil {
						errs <- fmt.Errorf("client %d sync op %d: %w", clientIdx, j, err)
					}
				} else {
					innerWG.Add(1)
					c.CallAsync(method, params[method], func(_ json.RawMessage, err error) {
						defer innerWG.Done()
						if err != nil {
							errs <- fmt.Errorf("client %d async op %d: %w", clientIdx, j, err)
						}
					})
				}
			}
			innerWG.Wait()
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
