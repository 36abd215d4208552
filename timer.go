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
	"time"

	ring "github.com/eapache/queue"
)

// Timeout is the handle returned by Schedule, used only for cancellation.
// It stays valid until the timer fires or is cancelled; using it afterwards
// is a no-op, not an error.
type Timeout struct {
	index int32
	seq   uint32
}

// TimerWheel schedules timeouts on a hierarchical bucketed wheel. The finest
// tier advances one slot per tick; each coarser tier covers slots^tier ticks
// per slot and cascades its entries downwards as they approach expiration.
// Insert and expiration are O(1) amortized regardless of how many timers are
// pending.
//
// Entries for one slot are held in FIFO order, which is also the tie-break
// for timers expiring on the same tick. Cancellation is lazy: the entry is
// freed immediately but its slot reference is skipped when popped, keyed by
// a per-entry sequence number.
//
// Not safe for concurrent use; the event loop drives it from the loop thread.
type TimerWheel struct {
	tick    time.Duration
	start   time.Time
	tiers   [][]*ring.Queue
	mask    uint64
	shift   uint
	current uint64 // last fully processed tick

	entries  []timerEntry
	freeHead int32
	pending  int

	next    uint64 // cached earliest pending deadline, valid when nextOK
	nextOK  bool
	expired []any // reusable drain buffer
}

type timerEntry struct {
	payload  any
	deadline uint64
	seq      uint32
	occupied bool
	nextFree int32
}

// NewTimerWheel creates a wheel with the given tick granularity, slots per
// tier (rounded up to a power of two, minimum 4), and tier count (minimum 1).
func NewTimerWheel(tick time.Duration, slots, tiers int) *TimerWheel {
	if tick <= 0 {
		tick = DefaultTimerTick
	}
	if tiers < 1 {
		tiers = 1
	}
	size, shift := 4, uint(2)
	for size < slots {
		size <<= 1
		shift++
	}
	w := &TimerWheel{
		tick:     tick,
		start:    time.Now(),
		tiers:    make([][]*ring.Queue, tiers),
		mask:     uint64(size - 1),
		shift:    shift,
		freeHead: -1,
	}
	for t := range w.tiers {
		w.tiers[t] = make([]*ring.Queue, size)
		for i := range w.tiers[t] {
			w.tiers[t][i] = ring.New()
		}
	}
	return w
}

// Schedule arms a timer firing no earlier than delay from now and returns its
// handle. The deadline rounds up to the next tick boundary.
func (w *TimerWheel) Schedule(delay time.Duration, payload any) Timeout {
	if delay < 0 {
		delay = 0
	}
	elapsed := time.Since(w.start) + delay
	deadline := uint64((elapsed + w.tick - 1) / time.Duration(w.tick))
	if deadline <= w.current {
		deadline = w.current + 1
	}

	id := w.alloc()
	e := &w.entries[id]
	e.payload = payload
	e.deadline = deadline
	e.occupied = true
	w.pending++
	w.place(id, e.seq, deadline)

	if !w.nextOK || deadline < w.next {
		w.next, w.nextOK = deadline, true
	}
	return Timeout{index: id, seq: e.seq}
}

// Cancel disarms the timer behind t and returns its payload. Cancelling a
// fired, cancelled, or otherwise stale handle is a no-op reporting false.
func (w *TimerWheel) Cancel(t Timeout) (any, bool) {
	if int(t.index) < 0 || int(t.index) >= len(w.entries) {
		return nil, false
	}
	e := &w.entries[t.index]
	if !e.occupied || e.seq != t.seq {
		return nil, false
	}
	payload := e.payload
	if e.deadline == w.next {
		w.nextOK = false
	}
	w.release(t.index)
	return payload, true
}

// TimeUntilNext reports how long until the earliest pending timer expires,
// or false when none is pending. A due-or-overdue timer reports zero.
func (w *TimerWheel) TimeUntilNext() (time.Duration, bool) {
	if w.pending == 0 {
		return 0, false
	}
	if !w.nextOK {
		w.recomputeNext()
	}
	deadline := time.Duration(w.next) * w.tick
	if now := time.Since(w.start); deadline > now {
		return deadline - now, true
	}
	return 0, true
}

// Drain advances the wheel to now and returns the payloads of every expired
// timer in expiration order, FIFO for equal deadlines. The returned slice is
// reused by the next call.
func (w *TimerWheel) Drain(now time.Time) []any {
	w.expired = w.expired[:0]
	target := uint64(now.Sub(w.start) / w.tick)
	for w.current < target {
		w.current++
		if w.current&w.mask == 0 {
			w.cascade(1)
		}
		w.expireSlot(w.tiers[0][w.current&w.mask])
	}
	if len(w.expired) > 0 {
		w.nextOK = false
	}
	return w.expired
}

// place buckets an entry by its distance from the current tick: tier t holds
// entries expiring within slots^(t+1) ticks. Anything beyond the coarsest
// tier's horizon parks there and re-buckets on cascade.
func (w *TimerWheel) place(id int32, seq uint32, deadline uint64) {
	delta := deadline - w.current
	span := w.mask + 1
	for t := 0; t < len(w.tiers); t++ {
		if delta < span || t == len(w.tiers)-1 {
			slot := (deadline >> (uint(t) * w.shift)) & w.mask
			w.tiers[t][slot].Add(packRef(id, seq))
			return
		}
		span <<= w.shift
	}
}

// cascade pulls the current slot of tier t down into finer tiers. When tier
// t itself wraps, the next coarser tier cascades first.
func (w *TimerWheel) cascade(t int) {
	if t >= len(w.tiers) {
		return
	}
	slot := (w.current >> (uint(t) * w.shift)) & w.mask
	if slot == 0 {
		w.cascade(t + 1)
	}
	q := w.tiers[t][slot]
	for n := q.Length(); n > 0; n-- {
		id, seq := unpackRef(q.Remove().(uint64))
		e := &w.entries[id]
		if !e.occupied || e.seq != seq {
			continue // cancelled or already fired
		}
		w.place(id, seq, e.deadline)
	}
}

func (w *TimerWheel) expireSlot(q *ring.Queue) {
	for n := q.Length(); n > 0; n-- {
		id, seq := unpackRef(q.Remove().(uint64))
		e := &w.entries[id]
		if !e.occupied || e.seq != seq {
			continue
		}
		if e.deadline > w.current {
			// Shares the slot but belongs to a later revolution.
			w.place(id, seq, e.deadline)
			continue
		}
		w.expired = append(w.expired, e.payload)
		w.release(id)
	}
}

func (w *TimerWheel) alloc() int32 {
	if w.freeHead >= 0 {
		id := w.freeHead
		w.freeHead = w.entries[id].nextFree
		return id
	}
	w.entries = append(w.entries, timerEntry{nextFree: -1})
	return int32(len(w.entries) - 1)
}

// release frees an entry and bumps its sequence so queued references and
// outstanding handles to it go stale.
func (w *TimerWheel) release(id int32) {
	e := &w.entries[id]
	e.payload = nil
	e.occupied = false
	e.seq++
	e.nextFree = w.freeHead
	w.freeHead = id
	w.pending--
}

// recomputeNext rescans the arena for the earliest pending deadline. Only
// runs after a drain or a cancel invalidated the cached value.
func (w *TimerWheel) recomputeNext() {
	w.nextOK = false
	for i := range w.entries {
		e := &w.entries[i]
		if !e.occupied {
			continue
		}
		if !w.nextOK || e.deadline < w.next {
			w.next, w.nextOK = e.deadline, true
		}
	}
}

func packRef(id int32, seq uint32) uint64 {
	return uint64(uint32(id))<<32 | uint64(seq)
}

func unpackRef(ref uint64) (int32, uint32) {
	return int32(ref >> 32), uint32(ref)
}
