// Copyright (c) 2026 The Mio Authors. All rights reserved.
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

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Selector wraps an epoll instance. The registered token rides in the Fd
// field of epoll_data, so readiness events come back token-addressed without
// any lookup on the poll path.
type Selector struct {
	fd  int
	raw []unix.EpollEvent // reusable buffer for epoll_wait
}

// OpenSelector instantiates a selector.
func OpenSelector() (*Selector, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Selector{fd: fd}, nil
}

// Close closes the selector.
func (s *Selector) Close() error {
	return os.NewSyscallError("close", unix.Close(s.fd))
}

// Register adds fd to the selector under token. It fails with the OS error
// (EEXIST) if fd is already registered.
func (s *Selector) Register(fd int, token Token, interest Interest, opt PollOpt) error {
	return os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(s.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: epollEvents(interest, opt), Fd: int32(token)}))
}

// Reregister replaces the interest set and options of an existing
// registration. It fails with the OS error (ENOENT) if fd is not registered.
func (s *Selector) Reregister(fd int, token Token, interest Interest, opt PollOpt) error {
	return os.NewSyscallError("epoll_ctl mod",
		unix.EpollCtl(s.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: epollEvents(interest, opt), Fd: int32(token)}))
}

// Deregister removes fd from the selector.
func (s *Selector) Deregister(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(s.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// Poll blocks until at least one registered descriptor is ready, the timeout
// elapses, or a spurious wake occurs, and fills events with what was
// observed. A negative timeout blocks indefinitely. Benign interrupts and
// empty wakes return 0 and no error; re-entering Poll is the caller's call.
func (s *Selector) Poll(events []Event, timeout time.Duration) (int, error) {
	if len(s.raw) < len(events) {
		s.raw = make([]unix.EpollEvent, len(events))
	}
	n, err := unix.EpollWait(s.fd, s.raw[:len(events)], timeoutMsec(timeout))
	if n <= 0 {
		if err == unix.EINTR || err == nil {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		ev := &s.raw[i]
		events[i] = Event{Token: Token(ev.Fd), Ready: readyFrom(ev.Events)}
	}
	return n, nil
}

// timeoutMsec rounds the timeout up to whole milliseconds so the selector
// never returns ahead of a timer deadline.
func timeoutMsec(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}

func epollEvents(interest Interest, opt PollOpt) uint32 {
	var ev uint32
	if interest.IsReadable() {
		ev |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if interest.IsWritable() {
		ev |= unix.EPOLLOUT
	}
	if interest.IsHangup() {
		ev |= unix.EPOLLRDHUP
	}
	if opt.IsEdge() {
		ev |= unix.EPOLLET
	}
	if opt.IsOneshot() {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

func readyFrom(ev uint32) Interest {
	var ready Interest
	if ev&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		ready |= Readable
	}
	if ev&unix.EPOLLOUT != 0 {
		ready |= Writable
	}
	if ev&unix.EPOLLERR != 0 {
		ready |= ErrorInterest
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		ready |= Hangup
	}
	return ready
}
