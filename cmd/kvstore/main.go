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

// Command kvstore is a minimal sockrpc server/client pair demonstrating an
// in-memory key/value store accessed through get/set/del methods.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/apaluca/sockrpc/client"
	"github.com/apaluca/sockrpc/rpcengine"
)

type store struct {
	mu   sync.Mutex
	data map[string]string
}

func main() {
	sockPath := filepath.Join(os.TempDir(), "sockrpc-kvstore.sock")

	s, err := rpcengine.NewServer(sockPath)
	if err != nil {
		fmt.Println("new server:", err)
		os.Exit(1)
	}

	st := &store{data: make(map[string]string)}

	_ = s.Register("set", func(params json.RawMessage) (interface{}, bool) {
		var args struct{ Key, Value string }
		_ = json.Unmarshal(params, &args)
		st.mu.Lock()
		st.data[args.Key] = args.Value
		st.mu.Unlock()
		return "OK", true
	})
	_ = s.Register("get", func(params json.RawMessage) (interface{}, bool) {
		var key string
		_ = json.Unmarshal(params, &key)
		st.mu.Lock()
		v, ok := st.data[key]
		st.mu.Unlock()
		if !ok {
			return nil, true
		}
		return v, true
	})
	_ = s.Register("del", func(params json.RawMessage) (interface{}, bool) {
		var key string
		_ = json.Unmarshal(params, &key)
		st.mu.Lock()
		_, existed := st.data[key]
		delete(st.data, key)
		st.mu.Unlock()
		return existed, true
	})

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

	set, _ := c.CallSync("set", struct{ Key, Value string }{Key: "greeting", Value: "hello"})
	fmt.Println("set:", string(set))

	get, _ := c.CallSync("get", "greeting")
	fmt.Println("get:", string(get))

	del, _ := c.CallSync("del", "greeting")
	fmt.Println("del:", string(del))
}
