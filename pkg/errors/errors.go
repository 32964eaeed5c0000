// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2019 Andy Pan
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

package errors

import "errors"

var (
	// ErrEngineShutdown occurs when the server is closing.
	ErrEngineShutdown = errors.New("server is going to be shutdown")
	// ErrEngineInShutdown occurs when attempting to shut the server down more than once.
	ErrEngineInShutdown = errors.New("server is already in shutdown")
	// ErrAcceptSocket occurs when the acceptor does not accept a new connection properly.
	ErrAcceptSocket = errors.New("accept a new connection error")
	// ErrUnsupportedProtocol occurs when trying to listen on a network other than unix.
	ErrUnsupportedProtocol = errors.New("only unix domain sockets are supported")

	// ================================= registry errors =================================.

	// ErrRegistryFull occurs when the method registry has reached its capacity.
	ErrRegistryFull = errors.New("method registry is full")
	// ErrInvalidMethodName occurs when registering an empty method name.
	ErrInvalidMethodName = errors.New("method name must not be empty")

	// ==================================== wire errors ====================================.

	// ErrMalformedRequest occurs when a request cannot be parsed as JSON or lacks a string method field.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrResponseTooLarge occurs when an encoded response is larger than wire.BufferSize.
	ErrResponseTooLarge = errors.New("response exceeds buffer capacity")

	// =================================== client errors ===================================.

	// ErrClientClosed occurs when a call is attempted on a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrEmptyResponse occurs when a sync call receives zero bytes back from the peer.
	ErrEmptyResponse = errors.New("peer closed connection without a response")
)
