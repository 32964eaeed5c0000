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

// Command stringops demonstrates CallAsync against upper/lower/reverse
// string methods, fanning out several fire-and-forget calls from one
// connection.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/apaluca/sockrpc/client"
	"github.com/apaluca/sockrpc/rpcengine"
)

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func main() {
	sockPath := filepath.Join(os.TempDir(), "sockrpc-stringops.sock")

	s, err := rpcengine.NewServer(sockPath)
	if err != nil {
		fmt.Println("new server:", err)
		os.Exit(1)
	}

	ops := map[string]func(string) string{
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"reverse": reverse,
	}
	for name, fn := range ops {
		fn := fn
		_ = s.Register(name, func(params json.RawMessage) (interface{}, bool) {
			var v string
			_ = json.Unmarshal(params, &v)
			return fn(v), true
		})
	}

	if err := s.Start(); err != nil {
		fmt.Println("start server:", err)
		os.Exit(1)
	}
	defer s.Close()

	time.Sleep(50 * time.Millisecond)

	c, err := client.Connect(sockPath)
	if err != nil {
		fmt.Println("connect:", err)
		os.Exit(1)
	}
	defer c.Close()

	var wg sync.WaitGroup
	for method := range ops {
		method := method
		wg.Add(1)
		c.CallAsync(method, "Hello, sockrpc", func(resp json.RawMessage, err error) {
			defer wg.Done()
			if err != nil {
				fmt.Printf("%s failed: %v\n", method, err)
				return
			}
			fmt.Printf("%s -> %s\n", method, string(resp))
		})
	}
	wg.Wait()
}
