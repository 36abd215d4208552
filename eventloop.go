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

//go:build darwin || dragonfly || freebsd || linux

package mio

import (
	"sync/atomic"
	"time"

	"github.com/jnicholls/mio/internal/queue"
	"github.com/jnicholls/mio/pkg/errors"
	"github.com/jnicholls/mio/pkg/logging"
	"github.com/jnicholls/mio/pkg/netpoll"
)

// initPollEventsCap is the size of the reusable poll batch buffer.
const initPollEventsCap = 128

// EventLoop drives a selector, a timer wheel, and a notify channel on one
// goroutine, dispatching readiness events, expired timers, and delivered
// messages into a Handler.
//
// Everything except Sender.Send and the handle returned by Channel is
// loop-thread only: registration, timer scheduling, and shutdown are meant
// to be called from handler callbacks (or before Run starts). None of the
// internal structures carry locks; they rely on that single-writer
// discipline.
type EventLoop struct {
	selector *netpoll.Selector
	waker    *netpoll.Waker
	timers   *TimerWheel
	registry *Slab[registration]
	reserved []reservedSlot
	messages *queue.BoundedQueue[any]
	wakeSig  int32
	opts     *Options

	events   []Event       // reusable poll buffer
	batch    []Event       // reusable dedup buffer
	seen     map[Token]int // token -> index in batch, cleared per iteration
	running  int32
	wantStop bool
	closed   bool
}

// registration is the per-token state kept while a resource is registered.
// The descriptor is borrowed: closing it remains the caller's job.
type registration struct {
	src      Source
	fd       int
	interest Interest
	opt      PollOpt
}

type reservedSlot struct {
	reg      registration
	occupied bool
}

// New creates an event loop with the given options. The returned loop owns
// its selector and wakeup descriptors until Close.
func New(options ...Option) (*EventLoop, error) {
	opts := initOptions(options...)
	selector, err := netpoll.OpenSelector()
	if err != nil {
		return nil, err
	}
	waker, err := netpoll.NewWaker(selector, NotifyToken)
	if err != nil {
		_ = selector.Close()
		return nil, err
	}
	return &EventLoop{
		selector: selector,
		waker:    waker,
		timers:   NewTimerWheel(opts.TimerTick, opts.TimerWheelSize, opts.TimerTiers),
		registry: NewSlab[registration](opts.RegistryCapacity, Token(opts.ReservedTokens)),
		reserved: make([]reservedSlot, opts.ReservedTokens),
		messages: queue.New[any](opts.NotifyCapacity),
		opts:     opts,
		events:   make([]Event, initPollEventsCap),
		batch:    make([]Event, 0, initPollEventsCap),
		seen:     make(map[Token]int, initPollEventsCap),
	}, nil
}

// Register enrolls src with the selector under a pool-issued token and
// records the association. On a selector failure the slot is rolled back, so
// a failed registration leaves no trace.
func (l *EventLoop) Register(src Source, interest Interest, opt PollOpt) (Token, error) {
	if l.closed {
		return 0, errors.ErrLoopClosed
	}
	fd := src.Descriptor()
	token, err := l.registry.Insert(registration{src: src, fd: fd, interest: interest, opt: opt})
	if err != nil {
		return 0, err
	}
	if err = l.selector.Register(fd, token, interest, opt); err != nil {
		l.registry.Remove(token)
		return 0, err
	}
	return token, nil
}

// RegisterReserved enrolls src under a token from the reserved prefix, for
// application singletons like a listening socket at token 0.
func (l *EventLoop) RegisterReserved(token Token, src Source, interest Interest, opt PollOpt) error {
	if l.closed {
		return errors.ErrLoopClosed
	}
	if token < 0 || int(token) >= len(l.reserved) {
		return errors.ErrTokenOutOfRange
	}
	if l.reserved[token].occupied {
		return errors.ErrTokenInUse
	}
	fd := src.Descriptor()
	if err := l.selector.Register(fd, token, interest, opt); err != nil {
		return err
	}
	l.reserved[token] = reservedSlot{
		reg:      registration{src: src, fd: fd, interest: interest, opt: opt},
		occupied: true,
	}
	return nil
}

// Reregister replaces the interest set and options of a live registration.
// This is also how edge and oneshot registrations are re-armed after a
// delivery. Reregistering a vacant token fails with ErrUnknownToken.
func (l *EventLoop) Reregister(token Token, interest Interest, opt PollOpt) error {
	if l.closed {
		return errors.ErrLoopClosed
	}
	reg := l.lookup(token)
	if reg == nil {
		return errors.ErrUnknownToken
	}
	if err := l.selector.Reregister(reg.fd, token, interest, opt); err != nil {
		return err
	}
	reg.interest, reg.opt = interest, opt
	return nil
}

// Deregister removes the registration behind token. The slot is freed even
// if the selector call fails (a descriptor closed by the caller has already
// left the multiplexer); deregistering a vacant token is a no-op.
func (l *EventLoop) Deregister(token Token) error {
	if l.closed {
		return errors.ErrLoopClosed
	}
	var fd int
	if int(token) >= 0 && int(token) < len(l.reserved) {
		if !l.reserved[token].occupied {
			return nil
		}
		fd = l.reserved[token].reg.fd
		l.reserved[token] = reservedSlot{}
	} else {
		reg, ok := l.registry.Remove(token)
		if !ok {
			return nil
		}
		fd = reg.fd
	}
	return l.selector.Deregister(fd)
}

// Resource returns the source registered under token.
func (l *EventLoop) Resource(token Token) (Source, bool) {
	if reg := l.lookup(token); reg != nil {
		return reg.src, true
	}
	return nil, false
}

// ScheduleTimeout arms a timer delivering payload to OnTimeout no earlier
// than delay from now, rounded up to the wheel tick.
func (l *EventLoop) ScheduleTimeout(delay time.Duration, payload any) Timeout {
	return l.timers.Schedule(delay, payload)
}

// CancelTimeout disarms a pending timer and returns its payload. Stale
// handles are a no-op reporting false.
func (l *EventLoop) CancelTimeout(t Timeout) (any, bool) {
	return l.timers.Cancel(t)
}

// Channel returns the cross-thread sender feeding OnMessage. It is the only
// sanctioned way for foreign goroutines to reach the loop.
func (l *EventLoop) Channel() *Sender {
	return &Sender{messages: l.messages, waker: l.waker, wakeSig: &l.wakeSig}
}

// Shutdown requests the loop to stop once the current iteration's dispatch
// completes. It is re-entrant: handlers call it from inside any callback.
func (l *EventLoop) Shutdown() {
	l.wantStop = true
}

// Run drives the loop until Shutdown is requested or polling fails. The
// handler is borrowed exclusively for the duration; only one Run (or
// RunOnce) may be active at a time.
func (l *EventLoop) Run(h Handler) error {
	if l.closed {
		return errors.ErrLoopClosed
	}
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return errors.ErrLoopRunning
	}
	defer atomic.StoreInt32(&l.running, 0)

	l.wantStop = false
	for !l.wantStop {
		if err := l.runOnce(h); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce performs a single poll-and-dispatch iteration, mostly useful for
// tests and callers embedding the loop in their own scheduler.
func (l *EventLoop) RunOnce(h Handler) error {
	if l.closed {
		return errors.ErrLoopClosed
	}
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return errors.ErrLoopRunning
	}
	defer atomic.StoreInt32(&l.running, 0)
	return l.runOnce(h)
}

func (l *EventLoop) runOnce(h Handler) error {
	n, err := l.selector.Poll(l.events, l.pollTimeout())
	if err != nil {
		l.opts.Logger.Errorf("mio: poll failed: %v", err)
		return err
	}
	if n > 0 {
		l.dispatchReady(h, l.events[:n])
	}
	for _, payload := range l.timers.Drain(time.Now()) {
		h.OnTimeout(l, payload)
	}
	return nil
}

// pollTimeout bounds the next poll by the nearer of the configured ceiling
// and the next timer deadline; neither means block indefinitely.
func (l *EventLoop) pollTimeout() time.Duration {
	timeout := time.Duration(-1)
	if l.opts.PollTimeout > 0 {
		timeout = l.opts.PollTimeout
	}
	if d, ok := l.timers.TimeUntilNext(); ok && (timeout < 0 || d < timeout) {
		timeout = d
	}
	return timeout
}

// dispatchReady merges duplicate tokens in the batch (union of observed
// interests, first-seen order) and invokes the handler per token. Events for
// tokens deregistered since the poll started are dropped; that race is part
// of the contract, not a fault.
func (l *EventLoop) dispatchReady(h Handler, events []Event) {
	batch := l.batch[:0]
	for token := range l.seen {
		delete(l.seen, token)
	}
	for _, ev := range events {
		if i, ok := l.seen[ev.Token]; ok {
			batch[i].Ready |= ev.Ready
			continue
		}
		l.seen[ev.Token] = len(batch)
		batch = append(batch, ev)
	}
	l.batch = batch

	for _, ev := range batch {
		if ev.Token == NotifyToken {
			l.drainMessages(h)
			continue
		}
		if l.lookup(ev.Token) == nil {
			l.opts.Logger.Debugf("mio: dropping event for stale token %d", ev.Token)
			continue
		}
		h.OnReady(l, ev.Token, ev.Ready)
	}
}

// drainMessages clears the wakeup signal and empties the message queue in
// enqueue order. Messages that slip in after the signal reset trigger one
// more self-wake so nothing is stranded until the next unrelated poll.
func (l *EventLoop) drainMessages(h Handler) {
	l.waker.Drain()
	for {
		msg, ok := l.messages.Dequeue()
		if !ok {
			break
		}
		h.OnMessage(l, msg)
	}
	atomic.StoreInt32(&l.wakeSig, 0)
	if !l.messages.IsEmpty() && atomic.CompareAndSwapInt32(&l.wakeSig, 0, 1) {
		if err := l.waker.Wake(); err != nil {
			l.opts.Logger.Warnf("mio: re-arming notify wakeup failed: %v", err)
		}
	}
}

func (l *EventLoop) lookup(token Token) *registration {
	if int(token) >= 0 && int(token) < len(l.reserved) {
		if l.reserved[token].occupied {
			return &l.reserved[token].reg
		}
		return nil
	}
	reg, ok := l.registry.Get(token)
	if !ok {
		return nil
	}
	return reg
}

// Close releases the selector and wakeup descriptors. Registered resources
// are the caller's to close; the loop never owned them. Close is not safe to
// call while Run is active; request Shutdown first.
func (l *EventLoop) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	err := l.waker.Close()
	if cerr := l.selector.Close(); err == nil {
		err = cerr
	}
	logging.Cleanup()
	return err
}
