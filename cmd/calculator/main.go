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

// Command calculator is a minimal sockrpc server/client pair demonstrating
// synchronous calls against four arithmetic methods.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/apaluca/sockrpc/client"
	"github.com/apaluca/sockrpc/rpcengine"
)

type operands struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func decode(params json.RawMessage) operands {
	var o operands
	_ = json.Unmarshal(params, &o)
	return o
}

func main() {
	sockPath := filepath.Join(os.TempDir(), "sockrpc-calculator.sock")

	s, err := rpcengine.NewServer(sockPath)
	if err != nil {
		fmt.Println("new server:", err)
		os.Exit(1)
	}

	handlers := map[string]func(operands) float64{
		"add": func(o operands) float64 { return o.A + o.B },
		"sub": func(o operands) float64 { return o.A - o.B },
		"mul": func(o operands) float64 { return o.A * o.B },
		"div": func(o operands) float64 {
			if o.B == 0 {
				return 0
			}
			return o.A / o.B
		},
	}
	for name, fn := range handlers {
		fn := fn
		if err := s.Register(name, func(params json.RawMessage) (interface{}, bool) {
			return fn(decode(params)), true
		}); err != nil {
			fmt.Println("register", name, ":", err)
			os.Exit(1)
		}
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

	for method, args := range map[string]operands{
		"add": {A: 2, B: 3},
		"sub": {A: 5, B: 1},
		"mul": {A: 4, B: 6},
		"div": {A: 9, B: 3},
	} {
		resp, err := c.CallSync(method, args)
		if err != nil {
			fmt.Printf("%s call failed: %v\n", method, err)
			continue
		}
		fmt.Printf("%s(%.0f, %.0f) = %s\n", method, args.A, args.B, string(resp))
	}
}
