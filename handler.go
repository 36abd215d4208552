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

package mio

// Handler receives everything the event loop dispatches. All callbacks run
// on the loop thread, never concurrently with each other, and may call back
// into the loop (register, reregister, deregister, schedule, cancel,
// shutdown) through the passed loop reference.
type Handler interface {
	// OnReady fires when a registered resource reports readiness. ready is
	// the union of conditions observed for token in this poll batch.
	OnReady(loop *EventLoop, token Token, ready Interest)

	// OnTimeout fires when a scheduled timer expires, with the payload it
	// was scheduled with.
	OnTimeout(loop *EventLoop, payload any)

	// OnMessage fires for each message delivered through the notify
	// channel, in enqueue order.
	OnMessage(loop *EventLoop, msg any)
}

// BuiltinHandler is a no-op Handler implementation, to be embedded by
// handlers that only care about a subset of the callbacks.
type BuiltinHandler struct{}

// OnReady implements Handler.
func (*BuiltinHandler) OnReady(*EventLoop, Token, Interest) {}

// OnTimeout implements Handler.
func (*BuiltinHandler) OnTimeout(*EventLoop, any) {}

// OnMessage implements Handler.
func (*BuiltinHandler) OnMessage(*EventLoop, any) {}
