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

//go:build freebsd || dragonfly || darwin

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Selector wraps a kqueue instance. kevent idents must be the descriptor
// itself, so tokens are kept in a side table maintained on the loop thread;
// EVFILT_USER events carry the token as their ident directly.
type Selector struct {
	fd     int
	raw    []unix.Kevent_t // reusable buffer for kevent
	tokens map[int]Token   // fd -> token, loop-thread only
}

// OpenSelector instantiates a selector.
func OpenSelector() (*Selector, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	return &Selector{fd: fd, tokens: make(map[int]Token)}, nil
}

// Close closes the selector.
func (s *Selector) Close() error {
	return os.NewSyscallError("close", unix.Close(s.fd))
}

// Register adds fd to the selector under token.
//
// kqueue's EV_ADD silently updates an existing filter, so unlike epoll this
// does not fail on an already-registered descriptor; callers tracking
// registration state get the same behavior either way.
func (s *Selector) Register(fd int, token Token, interest Interest, opt PollOpt) error {
	if err := s.applyInterest(fd, interest, opt, false); err != nil {
		return err
	}
	s.tokens[fd] = token
	return nil
}

// Reregister replaces the interest set and options of an existing
// registration, deleting filters the new interest no longer wants.
func (s *Selector) Reregister(fd int, token Token, interest Interest, opt PollOpt) error {
	if _, ok := s.tokens[fd]; !ok {
		return os.NewSyscallError("kevent mod", unix.ENOENT)
	}
	if err := s.applyInterest(fd, interest, opt, true); err != nil {
		return err
	}
	s.tokens[fd] = token
	return nil
}

// Deregister removes fd from the selector.
func (s *Selector) Deregister(fd int) error {
	if _, ok := s.tokens[fd]; !ok {
		return os.NewSyscallError("kevent del", unix.ENOENT)
	}
	delete(s.tokens, fd)
	_ = s.keventChange(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = s.keventChange(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	// Missing filters (never added, or reaped by EV_ONESHOT) are fine; the
	// descriptor is out of the kqueue either way.
	return nil
}

// applyInterest installs one kevent filter per wanted condition. Deletes for
// unwanted filters only happen on reregister; ENOENT on those is ignored
// since the filter may never have been installed.
func (s *Selector) applyInterest(fd int, interest Interest, opt PollOpt, withDeletes bool) error {
	flags := uint16(unix.EV_ADD)
	if opt.IsEdge() {
		flags |= unix.EV_CLEAR
	}
	if opt.IsOneshot() {
		flags |= unix.EV_ONESHOT
	}
	if interest.IsReadable() {
		if err := s.keventChange(fd, unix.EVFILT_READ, flags); err != nil {
			return err
		}
	} else if withDeletes {
		_ = s.keventChange(fd, unix.EVFILT_READ, unix.EV_DELETE)
	}
	if interest.IsWritable() {
		if err := s.keventChange(fd, unix.EVFILT_WRITE, flags); err != nil {
			return err
		}
	} else if withDeletes {
		_ = s.keventChange(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	return nil
}

func (s *Selector) keventChange(ident int, filter int16, flags uint16) error {
	_, err := unix.Kevent(s.fd, []unix.Kevent_t{{
		Ident:  uint64(ident),
		Filter: filter,
		Flags:  flags,
	}}, nil, nil)
	return os.NewSyscallError("kevent", err)
}

// Poll blocks until at least one registered descriptor is ready, the timeout
// elapses, or a spurious wake occurs, and fills events with what was
// observed. A negative timeout blocks indefinitely. Benign interrupts and
// empty wakes return 0 and no error.
func (s *Selector) Poll(events []Event, timeout time.Duration) (int, error) {
	if len(s.raw) < len(events) {
		s.raw = make([]unix.Kevent_t, len(events))
	}
	var tsp *unix.Timespec
	if timeout >= 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		tsp = &ts
	}
	n, err := unix.Kevent(s.fd, nil, s.raw[:len(events)], tsp)
	if n <= 0 {
		if err == unix.EINTR || err == nil {
			return 0, nil
		}
		return 0, os.NewSyscallError("kevent wait", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		ev := &s.raw[i]
		if ev.Filter == unix.EVFILT_USER {
			events[out] = Event{Token: Token(ev.Ident), Ready: Readable}
			out++
			continue
		}
		token, ok := s.tokens[int(ev.Ident)]
		if !ok {
			// Deregistered while this batch was in flight.
			continue
		}
		var ready Interest
		switch ev.Filter {
		case unix.EVFILT_READ:
			ready = Readable
		case unix.EVFILT_WRITE:
			ready = Writable
		}
		if ev.Flags&unix.EV_EOF != 0 {
			ready |= Hangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			ready |= ErrorInterest
		}
		events[out] = Event{Token: token, Ready: ready}
		out++
	}
	return out, nil
}
