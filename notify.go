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

import (
	"sync/atomic"

	"github.com/jnicholls/mio/internal/queue"
	"github.com/jnicholls/mio/pkg/errors"
	"github.com/jnicholls/mio/pkg/netpoll"
)

// Sender injects messages into the event loop from any goroutine. It is the
// only part of mio that may be used off the loop thread. Obtain one from
// EventLoop.Channel; it stays valid for the loop's lifetime.
type Sender struct {
	messages *queue.BoundedQueue[any]
	waker    *netpoll.Waker
	wakeSig  *int32
}

// Send enqueues msg for delivery to the handler's OnMessage and wakes the
// loop if it is blocked polling. The wakeup is signalled at most once per
// empty-to-nonempty transition; the loop drains the whole queue per wake.
//
// Send never blocks: on a full queue it fails immediately with
// ErrChannelFull and the caller decides whether to retry or drop.
func (s *Sender) Send(msg any) error {
	if !s.messages.Enqueue(msg) {
		return errors.ErrChannelFull
	}
	if atomic.CompareAndSwapInt32(s.wakeSig, 0, 1) {
		return s.waker.Wake()
	}
	return nil
}
