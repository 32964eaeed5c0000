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

import "time"

const (
	// NumWorkers is the default number of worker shards.
	NumWorkers = 4

	// WorkerPollTimeout is the default readiness-wait timeout a worker
	// uses between checks of the server's running flag.
	WorkerPollTimeout = 100 * time.Millisecond
)
