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

	"golang.org/x/sys/unix"
)

// Waker wakes a selector blocked in Poll from another thread. On kqueue
// platforms it is an EVFILT_USER event whose ident carries the caller's
// reserved token, EV_CLEAR so the signal resets itself on delivery.
type Waker struct {
	kq    int
	ident uint64
}

// NewWaker installs the user event on s's kqueue under token.
func NewWaker(s *Selector, token Token) (*Waker, error) {
	w := &Waker{kq: s.fd, ident: uint64(token)}
	if _, err := unix.Kevent(w.kq, []unix.Kevent_t{{
		Ident:  w.ident,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil); err != nil {
		return nil, os.NewSyscallError("kevent add|clear", err)
	}
	return w, nil
}

// Wake makes the selector's next (or in-progress) Poll report the waker's
// token readable. Safe to call from any thread.
func (w *Waker) Wake() error {
	_, err := unix.Kevent(w.kq, []unix.Kevent_t{{
		Ident:  w.ident,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	if err == unix.EAGAIN {
		err = nil
	}
	return os.NewSyscallError("kevent trigger", err)
}

// Drain is a no-op on kqueue; EV_CLEAR resets the user event on delivery.
func (w *Waker) Drain() {}

// Close removes the user event. The kqueue descriptor belongs to the
// selector and stays open.
func (w *Waker) Close() error {
	_, err := unix.Kevent(w.kq, []unix.Kevent_t{{
		Ident:  w.ident,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_DELETE,
	}}, nil, nil)
	return os.NewSyscallError("kevent delete", err)
}
