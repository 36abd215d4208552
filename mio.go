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

// Package mio is a readiness-based I/O event loop: a thin wrapper over
// epoll/kqueue that lets a single loop goroutine monitor many non-blocking
// descriptors, scheduled timeouts, and messages injected by other goroutines,
// dispatching all of them into one application-supplied Handler.
//
// mio never performs I/O on registered descriptors; it only reports
// readiness. The descriptors remain owned and closed by the caller.
package mio

import "github.com/jnicholls/mio/pkg/netpoll"

// Token is an opaque handle identifying one registered resource.
type Token = netpoll.Token

// Interest is a bitmask over the readiness conditions a registration cares about.
type Interest = netpoll.Interest

// PollOpt selects the trigger mode of a registration.
type PollOpt = netpoll.PollOpt

// Event is one readiness notification: the token a resource was registered
// under and the conditions observed on it.
type Event = netpoll.Event

// Re-exported interest and trigger-mode values, so most callers only import mio.
const (
	Readable      = netpoll.Readable
	Writable      = netpoll.Writable
	ErrorInterest = netpoll.ErrorInterest
	Hangup        = netpoll.Hangup

	Level   = netpoll.Level
	Edge    = netpoll.Edge
	Oneshot = netpoll.Oneshot
)

// NotifyToken is the reserved token under which the notify channel's wakeup
// descriptor is registered. It is never issued to a resource.
const NotifyToken Token = netpoll.MaxToken

// Source is the capability required of any registrable resource: it must
// expose a raw OS descriptor for the selector to register. Nothing else.
type Source interface {
	Descriptor() int
}

// Fd adapts a raw descriptor into a Source.
type Fd int

// Descriptor implements Source.
func (fd Fd) Descriptor() int { return int(fd) }
