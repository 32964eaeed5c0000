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

// Package usock provides the handful of raw Unix-domain stream socket
// operations the engine and the client need: a non-blocking listener bound
// to a filesystem path, and a blocking dial for the client side.
package usock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Listen binds a non-blocking Unix-domain stream socket at path, removing
// any stale socket file left over from a previous run, and returns its file
// descriptor. backlog of 0 selects the platform maximum.
func Listen(path string, backlog int) (fd int, err error) {
	_ = os.Remove(path)

	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, os.NewSyscallError("socket", err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return 0, os.NewSyscallError("fcntl nonblock", err)
	}
	if err = unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return 0, os.NewSyscallError("bind", err)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err = unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return 0, os.NewSyscallError("listen", err)
	}
	return fd, nil
}

// Accept accepts one pending connection off a listening fd and switches it
// to non-blocking mode. An accept(2) interrupted by a signal before a
// connection arrived is retried transparently, per spec.md §4.1's "retrying
// on transient interruptions" policy contract; unix.EAGAIN is returned
// unchanged so callers can treat "no pending connection" as a normal,
// non-fatal outcome.
func Accept(listenFD int) (connFD int, err error) {
	for {
		connFD, _, err = unix.Accept(listenFD)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		break
	}
	if err = unix.SetNonblock(connFD, true); err != nil {
		_ = unix.Close(connFD)
		return 0, os.NewSyscallError("fcntl nonblock", err)
	}
	return connFD, nil
}

// WriteFull writes all of data to fd on a blocking descriptor, retrying the
// underlying write(2) when interrupted by a signal and looping over short
// writes until every byte is sent or a non-transient error occurs. This is
// the client side's "sender writes all bytes, retrying on transient
// interruptions" policy contract from spec.md §4.1.
func WriteFull(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		data = data[n:]
	}
	return nil
}

// ReadRetry performs a single read(2) on a blocking descriptor, retrying
// transparently if the call is interrupted by a signal before any bytes
// are read.
func ReadRetry(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Dial connects to a Unix-domain stream socket at path and returns the
// connected, blocking-mode file descriptor. The client deliberately keeps
// the connection blocking: it serializes every write/read pair under its
// own mutex and never multiplexes several connections through one poller.
func Dial(path string) (fd int, err error) {
	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, os.NewSyscallError("socket", err)
	}
	if err = unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return 0, os.NewSyscallError("connect", err)
	}
	return fd, nil
}

// Close closes fd, translating errno into a wrapped *os.SyscallError.
func Close(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}
