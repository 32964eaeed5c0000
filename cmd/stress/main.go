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

// Command stress drives the end-to-end stress scenario: several client
// connections, each issuing a mix of synchronous and asynchronous calls
// across a handful of registered methods, to exercise round-robin
// connection distribution and concurrent dispatch across worker shards.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/apaluca/sockrpc/client"
	"github.com/apaluca/sockrpc/rpcengine"
)

const (
	numClients   = 5
	opsPerClient = 20
)

// matrixPair is the param shape for multiply: two 3x3 integer matrices.
type matrixPair struct {
	A [3][3]int `json:"a"`
	B [3][3]int `json:"b"`
}

func main() {
	sockPath := filepath.Join(os.TempDir(), "sockrpc-stress.sock")

	s, err := rpcengine.NewServer(sockPath, rpcengine.WithNumWorkers(4))
	if err != nil {
		fmt.Println("new server:", err)
		os.Exit(1)
	}

	_ = s.Register("sort", func(params json.RawMessage) (interface{}, bool) {
		var nums []int
		_ = json.Unmarshal(params, &nums)
		sort.Ints(nums)
		return nums, true
	})
	_ = s.Register("process", func(params json.RawMessage) (interface{}, bool) {
		var text string
		_ = json.Unmarshal(params, &text)
		return strings.ToUpper(text), true
	})
	_ = s.Register("multiply", func(params json.RawMessage) (interface{}, bool) {
		var p matrixPair
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
	})

	if err := s.Start(); err != nil {
		fmt.Println("start server:", err)
		os.Exit(1)
	}
	defer s.Close()

	time.Sleep(50 * time.Millisecond)

	sortParams := make([]int, 20)
	for i := range sortParams {
		sortParams[i] = 20 - i
	}
	processParams := strings.Repeat("a", 128)
	multiplyParams := matrixPair{
		A: [3][3]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
		B: [3][3]int{{9, 8, 7}, {6, 5, 4}, {3, 2, 1}},
	}

	methods := []string{"sort", "process", "multiply"}
	params := map[string]interface{}{
		"sort":     sortParams,
		"process":  processParams,
		"multiply": multiplyParams,
	}
	var ok, failed int64
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientIdx int) {
			defer wg.Done()
			c, err := client.Connect(sockPath)
			if err != nil {
				atomic.AddInt64(&failed, opsPerClient)
				return
			}
			defer c.Close()

			var inner sync.WaitGroup
			for j := 0; j < opsPerClient; j++ {
				method := methods[j%len(methods)]
				if j%2 == 0 {
					if _, err := c.CallSync(method, params[method]); err != nil {
						atomic.AddInt64(&failed, 1)
					} else {
						atomic.AddInt64(&ok, 1)
					}
				} else {
					inner.Add(1)
					c.CallAsync(method, params[method], func(_ json.RawMessage, err error) {
						defer inner.Done()
						if err != nil {
							atomic.AddInt64(&failed, 1)
						} else {
							atomic.AddInt64(&ok, 1)
						}
					})
				}
			}
			inner.Wait()
		}(i)
	}
	wg.Wait()

	fmt.Printf("stress run: %d clients x %d ops in %s (ok=%d failed=%d)\n",
		numClients, opsPerClient, time.Since(start), ok, failed)
}
