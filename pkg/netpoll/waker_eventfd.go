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
	"unsafe"

	"golang.org/x/sys/unix"
)

// Waker wakes a selector blocked in Poll from another thread. On Linux it is
// an eventfd registered with the selector under the caller's reserved token,
// level-triggered readable.
type Waker struct {
	fd  int
	buf []byte
}

// Make the endianness of bytes compatible with more linux OSs under different
// processor-architectures, according to http://man7.org/linux/man-pages/man2/eventfd.2.html.
var (
	wakeVal uint64 = 1
	wakeBuf        = (*(*[8]byte)(unsafe.Pointer(&wakeVal)))[:]
)

// NewWaker creates the wakeup descriptor and registers it with s under token.
func NewWaker(s *Selector, token Token) (*Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	w := &Waker{fd: fd, buf: make([]byte, 8)}
	if err = s.Register(fd, token, Readable, Level); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// Wake makes the selector's next (or in-progress) Poll report the waker's
// token readable. Safe to call from any thread.
func (w *Waker) Wake() (err error) {
	for _, err = unix.Write(w.fd, wakeBuf); err == unix.EINTR || err == unix.EAGAIN; _, err = unix.Write(w.fd, wakeBuf) {
	}
	return os.NewSyscallError("write", err)
}

// Drain clears the wakeup signal. Loop-thread only.
func (w *Waker) Drain() {
	for {
		if _, err := unix.Read(w.fd, w.buf); err != unix.EINTR {
			return
		}
	}
}

// Close releases the wakeup descriptor.
func (w *Waker) Close() error {
	return os.NewSyscallError("close", unix.Close(w.fd))
}
