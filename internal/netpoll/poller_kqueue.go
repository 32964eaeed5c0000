// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2021 Andy Pan
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

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package netpoll

import (
	"os"

	"golang.org/x/sys/unix"

	sockerrors "github.com/apaluca/sockrpc/pkg/errors"
	"github.com/apaluca/sockrpc/pkg/logging"
)

// Poller wraps a single kqueue instance and the attachments registered
// against it.
type Poller struct {
	fd         int
	attachment map[int]*PollAttachment
}

// OpenPoller instantiates a kqueue-backed poller.
func OpenPoller() (*Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	return &Poller{fd: fd, attachment: make(map[int]*PollAttachment)}, nil
}

// Close closes the underlying kqueue descriptor.
func (p *Poller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

// Polling blocks the calling goroutine, waiting for readiness events on
// registered descriptors. tick is called once per loop iteration; returning
// true stops Polling gracefully.
func (p *Poller) Polling(waitTimeoutMillis int, tick func() bool) error {
	events := make([]unix.Kevent_t, MaxEventsPerWait)
	timeout := unix.NsecToTimespec(int64(waitTimeoutMillis) * int64(1e6))

	for {
		n, err := unix.Kevent(p.fd, nil, events, &timeout)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			if tick() {
				return nil
			}
			continue
		}
		if err != nil {
			return os.NewSyscallError("kevent wait", err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Ident)
			att, ok := p.attachment[fd]
			if !ok {
				continue
			}

			var ioEvent IOEvent
			if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
				ioEvent = EVFilterSock
			} else if ev.Filter == unix.EVFILT_READ {
				ioEvent = InEvents
			} else if ev.Filter == unix.EVFILT_WRITE {
				ioEvent = OutEvents
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
			events = make([]unix.Kevent_t, len(events)*2)
		}
		if tick() {
			return nil
		}
	}
}

func (p *Poller) register(pa *PollAttachment, filters ...int16) error {
	evs := make([]unix.Kevent_t, len(filters))
	for i, f := range filters {
		evs[i] = unix.Kevent_t{Ident: uint64(pa.FD), Flags: unix.EV_ADD | unix.EV_CLEAR, Filter: f}
	}
	if _, err := unix.Kevent(p.fd, evs, nil, nil); err != nil {
		return os.NewSyscallError("kevent add", err)
	}
	p.attachment[pa.FD] = pa
	return nil
}

// AddRead registers pa.FD for edge-triggered read readiness.
func (p *Poller) AddRead(pa *PollAttachment) error {
	return p.register(pa, unix.EVFILT_READ)
}

// AddReadWrite registers pa.FD for edge-triggered read and write readiness.
func (p *Poller) AddReadWrite(pa *PollAttachment) error {
	return p.register(pa, unix.EVFILT_READ, unix.EVFILT_WRITE)
}

// ModReadWrite adds write readiness to an already read-registered descriptor.
func (p *Poller) ModReadWrite(pa *PollAttachment) error {
	return p.register(pa, unix.EVFILT_WRITE)
}

// ModRead removes write readiness, leaving read readiness active.
func (p *Poller) ModRead(pa *PollAttachment) error {
	ev := unix.Kevent_t{Ident: uint64(pa.FD), Flags: unix.EV_DELETE, Filter: unix.EVFILT_WRITE}
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{ev}, nil, nil)
	return os.NewSyscallError("kevent delete", err)
}

// Delete removes fd from the poller.
func (p *Poller) Delete(fd int) error {
	delete(p.attachment, fd)
	ev := unix.Kevent_t{Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: unix.EVFILT_READ}
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{ev}, nil, nil)
	if err != nil && err != unix.ENOENT {
		return os.NewSyscallError("kevent delete", err)
	}
	return nil
}
