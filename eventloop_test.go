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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/jnicholls/mio/pkg/errors"
	"github.com/jnicholls/mio/pkg/pool/goroutine"
)

// funcHandler routes callbacks to per-test closures.
type funcHandler struct {
	onReady   func(*EventLoop, Token, Interest)
	onTimeout func(*EventLoop, any)
	onMessage func(*EventLoop, any)
}

func (h *funcHandler) OnReady(l *EventLoop, token Token, ready Interest) {
	if h.onReady != nil {
		h.onReady(l, token, ready)
	}
}

func (h *funcHandler) OnTimeout(l *EventLoop, payload any) {
	if h.onTimeout != nil {
		h.onTimeout(l, payload)
	}
}

func (h *funcHandler) OnMessage(l *EventLoop, msg any) {
	if h.onMessage != nil {
		h.onMessage(l, msg)
	}
}

func testPipe(t *testing.T) (r, w int) {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	r, w = fds[0], fds[1]
	require.NoError(t, unix.SetNonblock(r, true))
	require.NoError(t, unix.SetNonblock(w, true))
	t.Cleanup(func() {
		_ = unix.Close(r)
		_ = unix.Close(w)
	})
	return r, w
}

func newTestLoop(t *testing.T, options ...Option) *EventLoop {
	t.Helper()
	l, err := New(options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoopNotifyBeforeRun(t *testing.T) {
	l := newTestLoop(t)
	sender := l.Channel()

	// Messages sent before the loop runs are parked and delivered on the
	// first iteration.
	require.NoError(t, sender.Send("pre-run"))

	p := goroutine.Default()
	defer p.Release()
	require.NoError(t, p.Submit(func() { _ = sender.Send("concurrent") }))

	var got []any
	h := &funcHandler{onMessage: func(l *EventLoop, msg any) {
		got = append(got, msg)
		if len(got) == 2 {
			l.Shutdown()
		}
	}}
	require.NoError(t, l.Run(h))
	assert.ElementsMatch(t, []any{"pre-run", "concurrent"}, got)
}

func TestLoopChannelFull(t *testing.T) {
	l := newTestLoop(t, WithNotifyCapacity(1))
	sender := l.Channel()
	require.NoError(t, sender.Send("fits"))
	assert.ErrorIs(t, sender.Send("overflow"), errors.ErrChannelFull)
}

func TestLoopReservedListener(t *testing.T) {
	l := newTestLoop(t, WithPollTimeout(100*time.Millisecond))
	r, w := testPipe(t)

	require.NoError(t, l.RegisterReserved(Token(0), Fd(r), Readable, Level))
	for i := 0; i < 3; i++ {
		_, err := unix.Write(w, []byte{byte(i)})
		require.NoError(t, err)
	}

	// Level-triggered: the backlog keeps the token ready until the handler
	// has consumed every pending byte, one per wakeup.
	served := 0
	buf := make([]byte, 1)
	h := &funcHandler{onReady: func(l *EventLoop, token Token, ready Interest) {
		require.EqualValues(t, 0, token)
		require.True(t, ready.IsReadable())
		_, err := unix.Read(r, buf)
		require.NoError(t, err)
		if served++; served == 3 {
			l.Shutdown()
		}
	}}
	require.NoError(t, l.Run(h))
	assert.Equal(t, 3, served)

	// Backlog drained: one more iteration stays quiet.
	require.NoError(t, l.RunOnce(h))
	assert.Equal(t, 3, served)
}

func TestLoopEdgeOneshotWithTimer(t *testing.T) {
	l := newTestLoop(t,
		WithReservedTokens(6),
		WithTimerTick(10*time.Millisecond),
		WithPollTimeout(time.Second))
	r, w := testPipe(t)

	_, err := unix.Write(w, []byte("ping"))
	require.NoError(t, err)
	require.NoError(t, l.RegisterReserved(Token(5), Fd(r), Readable, Edge|Oneshot))

	start := time.Now()
	l.ScheduleTimeout(50*time.Millisecond, "X")

	readyCount := 0
	var firedAt time.Duration
	var payload any
	h := &funcHandler{
		onReady: func(l *EventLoop, token Token, ready Interest) {
			require.EqualValues(t, 5, token)
			readyCount++
		},
		onTimeout: func(l *EventLoop, p any) {
			payload = p
			firedAt = time.Since(start)
			l.Shutdown()
		},
	}
	require.NoError(t, l.Run(h))

	// Oneshot suspends after the first delivery, so the wait until the
	// timer fires must not produce repeats despite the unread bytes.
	assert.Equal(t, 1, readyCount)
	assert.Equal(t, "X", payload)
	assert.GreaterOrEqual(t, firedAt, 50*time.Millisecond)
	assert.Less(t, firedAt, 500*time.Millisecond)
}

func TestLoopOneshotReregister(t *testing.T) {
	l := newTestLoop(t, WithPollTimeout(50*time.Millisecond))
	r, w := testPipe(t)

	_, err := unix.Write(w, []byte("x"))
	require.NoError(t, err)
	token, err := l.Register(Fd(r), Readable, Oneshot)
	require.NoError(t, err)

	count := 0
	h := &funcHandler{onReady: func(l *EventLoop, tok Token, ready Interest) {
		require.Equal(t, token, tok)
		count++
	}}

	require.NoError(t, l.RunOnce(h))
	assert.Equal(t, 1, count)
	require.NoError(t, l.RunOnce(h))
	assert.Equal(t, 1, count, "suspended until reregistered")

	require.NoError(t, l.Reregister(token, Readable, Oneshot))
	require.NoError(t, l.RunOnce(h))
	assert.Equal(t, 2, count)
}

func TestLoopEdgeVersusLevel(t *testing.T) {
	l := newTestLoop(t, WithPollTimeout(50*time.Millisecond))
	rl, wl := testPipe(t)
	re, we := testPipe(t)

	_, err := unix.Write(wl, []byte("x"))
	require.NoError(t, err)
	_, err = unix.Write(we, []byte("x"))
	require.NoError(t, err)

	tokLevel, err := l.Register(Fd(rl), Readable, Level)
	require.NoError(t, err)
	tokEdge, err := l.Register(Fd(re), Readable, Edge)
	require.NoError(t, err)

	counts := map[Token]int{}
	h := &funcHandler{onReady: func(l *EventLoop, tok Token, ready Interest) {
		counts[tok]++
	}}

	require.NoError(t, l.RunOnce(h))
	require.NoError(t, l.RunOnce(h))

	assert.Equal(t, 2, counts[tokLevel], "level re-reports while unread")
	assert.Equal(t, 1, counts[tokEdge], "edge reports each transition once")
}

func TestLoopTimerCancel(t *testing.T) {
	l := newTestLoop(t, WithTimerTick(10*time.Millisecond))

	doomed := l.ScheduleTimeout(80*time.Millisecond, "no")
	l.ScheduleTimeout(150*time.Millisecond, "yes")

	payload, ok := l.CancelTimeout(doomed)
	require.True(t, ok)
	assert.Equal(t, "no", payload)
	_, ok = l.CancelTimeout(doomed)
	assert.False(t, ok, "stale handle")

	var fired []any
	h := &funcHandler{onTimeout: func(l *EventLoop, p any) {
		fired = append(fired, p)
		l.Shutdown()
	}}
	require.NoError(t, l.Run(h))
	assert.Equal(t, []any{"yes"}, fired)
}

func TestLoopTimerFIFO(t *testing.T) {
	l := newTestLoop(t, WithTimerTick(20*time.Millisecond))

	l.ScheduleTimeout(50*time.Millisecond, "first")
	l.ScheduleTimeout(50*time.Millisecond, "second")

	var fired []any
	h := &funcHandler{onTimeout: func(l *EventLoop, p any) {
		fired = append(fired, p)
		if len(fired) == 2 {
			l.Shutdown()
		}
	}}
	require.NoError(t, l.Run(h))
	assert.Equal(t, []any{"first", "second"}, fired)
}

func TestLoopRegistryCapacityAndRollback(t *testing.T) {
	l := newTestLoop(t, WithRegistryCapacity(1), WithReservedTokens(1))
	r1, _ := testPipe(t)
	r2, _ := testPipe(t)

	token, err := l.Register(Fd(r1), Readable, Level)
	require.NoError(t, err)

	_, err = l.Register(Fd(r2), Readable, Level)
	assert.ErrorIs(t, err, errors.ErrRegistryFull)

	require.NoError(t, l.Deregister(token))

	// A selector failure rolls the slot back, so the token value is still
	// available to the next successful registration.
	_, err = l.Register(Fd(-1), Readable, Level)
	require.Error(t, err)
	token2, err := l.Register(Fd(r2), Readable, Level)
	require.NoError(t, err)
	assert.Equal(t, token, token2)
}

func TestLoopStaleTokenLookups(t *testing.T) {
	l := newTestLoop(t)

	assert.NoError(t, l.Deregister(Token(999)), "vacant deregister is a no-op")
	assert.ErrorIs(t, l.Reregister(Token(999), Readable, Level), errors.ErrUnknownToken)
	_, ok := l.Resource(Token(999))
	assert.False(t, ok)
}

func TestLoopReservedTokenErrors(t *testing.T) {
	l := newTestLoop(t, WithReservedTokens(1))
	r, _ := testPipe(t)

	assert.ErrorIs(t, l.RegisterReserved(Token(5), Fd(r), Readable, Level),
		errors.ErrTokenOutOfRange)

	require.NoError(t, l.RegisterReserved(Token(0), Fd(r), Readable, Level))
	assert.ErrorIs(t, l.RegisterReserved(Token(0), Fd(r), Readable, Level),
		errors.ErrTokenInUse)

	src, ok := l.Resource(Token(0))
	require.True(t, ok)
	assert.Equal(t, Fd(r), src)

	require.NoError(t, l.Deregister(Token(0)))
	assert.NoError(t, l.RegisterReserved(Token(0), Fd(r), Readable, Level))
}

func TestLoopStaleEventDropped(t *testing.T) {
	l := newTestLoop(t, WithPollTimeout(time.Second))
	rA, wA := testPipe(t)
	rB, wB := testPipe(t)

	_, err := unix.Write(wA, []byte("x"))
	require.NoError(t, err)
	_, err = unix.Write(wB, []byte("x"))
	require.NoError(t, err)

	tokA, err := l.Register(Fd(rA), Readable, Level)
	require.NoError(t, err)
	tokB, err := l.Register(Fd(rB), Readable, Level)
	require.NoError(t, err)

	// Whichever token is dispatched first deregisters its sibling; the
	// sibling's event from the same poll batch must be silently dropped.
	var calls []Token
	h := &funcHandler{onReady: func(l *EventLoop, tok Token, ready Interest) {
		calls = append(calls, tok)
		other := tokA
		if tok == tokA {
			other = tokB
		}
		require.NoError(t, l.Deregister(other))
	}}
	require.NoError(t, l.RunOnce(h))
	assert.Len(t, calls, 1)
}

func TestLoopRunReentrant(t *testing.T) {
	l := newTestLoop(t)
	require.NoError(t, l.Channel().Send("kick"))

	var nested, nestedOnce error
	h := &funcHandler{onMessage: func(l *EventLoop, msg any) {
		nested = l.Run(&funcHandler{})
		nestedOnce = l.RunOnce(&funcHandler{})
		l.Shutdown()
	}}
	require.NoError(t, l.Run(h))
	assert.ErrorIs(t, nested, errors.ErrLoopRunning)
	assert.ErrorIs(t, nestedOnce, errors.ErrLoopRunning)
}

func TestLoopPollCeiling(t *testing.T) {
	l := newTestLoop(t, WithPollTimeout(50*time.Millisecond))

	start := time.Now()
	require.NoError(t, l.RunOnce(&funcHandler{}))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestLoopWritableInterest(t *testing.T) {
	l := newTestLoop(t, WithPollTimeout(time.Second))
	_, w := testPipe(t)

	token, err := l.Register(Fd(w), Writable, Level)
	require.NoError(t, err)

	var seen Interest
	h := &funcHandler{onReady: func(l *EventLoop, tok Token, ready Interest) {
		require.Equal(t, token, tok)
		seen = ready
		l.Shutdown()
	}}
	require.NoError(t, l.RunOnce(h))
	assert.True(t, seen.IsWritable())
}

func TestLoopClosed(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "double close")

	r, _ := testPipe(t)
	_, err = l.Register(Fd(r), Readable, Level)
	assert.ErrorIs(t, err, errors.ErrLoopClosed)
	assert.ErrorIs(t, l.RegisterReserved(Token(0), Fd(r), Readable, Level), errors.ErrLoopClosed)
	assert.ErrorIs(t, l.Run(&funcHandler{}), errors.ErrLoopClosed)
	assert.ErrorIs(t, l.RunOnce(&funcHandler{}), errors.ErrLoopClosed)
}
