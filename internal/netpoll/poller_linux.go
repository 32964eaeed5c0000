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

//go:build linux
// +build linux

package netpoll

import (
	"os"

	"golang.org/x/sys/unix"

	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
	"github.com/apaluca/sockrpc/pkg/logging"
)

// Poller wraps a single epoll instance and the attachments registered
// against it, keyed implicitly by the fd each attachment carries.
type Poller struct {
	fd         int
	attachment map[int]*PollAttachment
}

// OpenPoller instantiates an epoll-backed poller.
func OpenPoller() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Poller{fd: fd, attachment: make(map[int]*PollAttachment)}, nil
}

// Close closes the underlying epoll descriptor.
func (p *Poller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

// Polling blocks the calling goroutine, waiting for readiness events on
// registered descriptors. tick is called once per loop iteration, whether
// or not any events fired, so the worker shard can observe a shutdown
// request even with no traffic in flight; returning true from tick stops
// Polling gracefully.
func (p *Poller) Polling(waitTimeoutMillis int, tick func() bool) error {
	events := make([]unix.EpollEvent, MaxEventsPerWait)
	for {
		n, err := unix.EpollWait(p.fd, events, waitTimeoutMillis)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			if tick() {
				return nil
			}
			continue
		}
		if err != nil {
			return os.NewSyscallError("epoll_wait", err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			att, ok := p.attachment[fd]
			if !ok {
				continue
			}

			var ioEvent IOEvent
			if ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				ioEvent = EVFilterSock
			} else {
				if ev.Events&unix.EPOLLIN != 0 {
					ioEvent |= InEvents
				}
				if ev.Events&unix.EPOLLOUT != 0 {
					ioEvent |= OutEvents
				}
			}

			switch cbErr := att.Callback(fd, ioEvent); cbErr {
			case nil:
			case sockerrors.ErrAcceptSocket, sockerrors.ErrEngineShutdown:
				return cbErr
			default:
				logging.Warnf("error occurred in event loop: %v", cbErr)
			}
		}

		if n == len(events) {
			events = make([]unix.EpollEvent, len(events)*2)
		}
		if tick() {
			return nil
		}
	}
}

func (p *Poller) ctl(op int, pa *PollAttachment, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(pa.FD)}
	if err := unix.EpollCtl(p.fd, op, pa.FD, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	switch op {
	case unix.EPOLL_CTL_ADD, unix.EPOLL_CTL_MOD:
		p.attachment[pa.FD] = pa
	case unix.EPOLL_CTL_DEL:
		delete(p.attachment, pa.FD)
	}
	return nil
}

// AddRead registers pa.FD for edge-triggered read readiness.
func (p *Poller) AddRead(pa *PollAttachment) error {
	return p.ctl(unix.EPOLL_CTL_ADD, pa, unix.EPOLLIN|unix.EPOLLET)
}

// AddReadWrite registers pa.FD for edge-triggered read and write readiness.
func (p *Poller) AddReadWrite(pa *PollAttachment) error {
	return p.ctl(unix.EPOLL_CTL_ADD, pa, unix.EPOLLIN|unix.EPOLLOUT|unix.EPOLLET)
}

// ModReadWrite switches an already-registered descriptor to read+write
// readiness, used when a response write burst would otherwise block.
func (p *Poller) ModReadWrite(pa *PollAttachment) error {
	return p.ctl(unix.EPOLL_CTL_MOD, pa, unix.EPOLLIN|unix.EPOLLOUT|unix.EPOLLET)
}

// ModRead switches an already-registered descriptor back to read-only
// readiness once a deferred write burst has drained.
func (p *Poller) ModRead(pa *PollAttachment) error {
	return p.ctl(unix.EPOLL_CTL_MOD, pa, unix.EPOLLIN|unix.EPOLLET)
}

// Delete removes fd from the poller.
func (p *Poller) Delete(fd int) error {
	return p.ctl(unix.EPOLL_CTL_DEL, &PollAttachment{FD: fd}, 0)
}
