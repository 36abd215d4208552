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

// Package netpoll wraps the OS event multiplexer (epoll on Linux, kqueue on
// *BSD/Darwin) behind a registration-and-poll Selector, along with a Waker
// for cross-thread wakeups. The Selector is stateful the same way the OS
// facility is: callers track what is currently registered and pick Register
// or Reregister accordingly.
package netpoll

// Token is an opaque handle identifying one registered descriptor. The
// selector never derives meaning from its value; it is carried through the
// multiplexer and handed back with each readiness event.
type Token int

// MaxToken is the largest token value a registration may carry; the token
// rides in the 32-bit user-data field of the multiplexer.
const MaxToken Token = 1<<31 - 1

// Interest is a bitmask over the readiness conditions a registration cares
// about. The zero value means "none".
type Interest uint8

const (
	// Readable indicates the descriptor has data to read.
	Readable Interest = 1 << iota
	// Writable indicates the descriptor accepts writes without blocking.
	Writable
	// ErrorInterest indicates an exceptional condition on the descriptor.
	// It is always reported when observed, whether requested or not.
	ErrorInterest
	// Hangup indicates the peer closed its end of the connection.
	Hangup
)

// IsReadable reports whether the set contains Readable.
func (i Interest) IsReadable() bool { return i&Readable != 0 }

// IsWritable reports whether the set contains Writable.
func (i Interest) IsWritable() bool { return i&Writable != 0 }

// IsError reports whether the set contains ErrorInterest.
func (i Interest) IsError() bool { return i&ErrorInterest != 0 }

// IsHangup reports whether the set contains Hangup.
func (i Interest) IsHangup() bool { return i&Hangup != 0 }

// Contains reports whether the set covers every bit of o.
func (i Interest) Contains(o Interest) bool { return i&o == o }

func (i Interest) String() string {
	if i == 0 {
		return "none"
	}
	var s string
	appendBit := func(on bool, name string) {
		if !on {
			return
		}
		if len(s) > 0 {
			s += "|"
		}
		s += name
	}
	appendBit(i.IsReadable(), "readable")
	appendBit(i.IsWritable(), "writable")
	appendBit(i.IsError(), "error")
	appendBit(i.IsHangup(), "hangup")
	return s
}

// PollOpt selects the trigger mode of a registration. The zero value is
// level-triggered without oneshot.
type PollOpt uint8

const (
	// Level reports a condition on every poll while it holds.
	Level PollOpt = 0
	// Edge reports a condition once per transition into it; the caller must
	// reregister to be notified again.
	Edge PollOpt = 1 << 0
	// Oneshot suspends the registration after one delivery until it is
	// explicitly reregistered. Combinable with either trigger mode.
	Oneshot PollOpt = 1 << 1
)

// IsEdge reports whether the options select edge triggering.
func (o PollOpt) IsEdge() bool { return o&Edge != 0 }

// IsOneshot reports whether the options select oneshot delivery.
func (o PollOpt) IsOneshot() bool { return o&Oneshot != 0 }

// Event is one readiness notification produced by Poll.
type Event struct {
	// Token is the handle the descriptor was registered under.
	Token Token
	// Ready is the set of conditions observed on the descriptor.
	Ready Interest
}
