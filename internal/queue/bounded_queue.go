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

// Package queue delivers a bounded, lock-free concurrent queue based on the
// non-blocking queue algorithm presented by Maged M. Michael and Michael L.
// Scott in 1996: https://dl.acm.org/doi/10.1145/248052.248106
//
// The bound is enforced by an atomic reservation counter in front of the
// linked structure: producers that cannot reserve a slot fail immediately
// instead of blocking, which is the backpressure contract of the notify
// channel built on top of this queue.
package queue

import (
	"sync/atomic"
	"unsafe"
)

type node[T any] struct {
	value T
	next  unsafe.Pointer
}

// BoundedQueue is a multi-producer, single-or-multi-consumer queue with a
// fixed capacity and no locks.
type BoundedQueue[T any] struct {
	head     unsafe.Pointer
	tail     unsafe.Pointer
	length   int32
	capacity int32
}

// New instantiates a BoundedQueue holding at most capacity elements.
func New[T any](capacity int) *BoundedQueue[T] {
	n := unsafe.Pointer(&node[T]{})
	return &BoundedQueue[T]{head: n, tail: n, capacity: int32(capacity)}
}

// Enqueue puts the given value v at the tail of the queue.
// It reports false when the queue is full and leaves the queue unchanged.
func (q *BoundedQueue[T]) Enqueue(v T) bool {
	if atomic.AddInt32(&q.length, 1) > q.capacity {
		atomic.AddInt32(&q.length, -1)
		return false
	}
	n := &node[T]{value: v}
retry:
	tail := load[T](&q.tail)
	next := load[T](&tail.next)
	// Are tail and next consistent?
	if tail == load[T](&q.tail) {
		if next == nil {
			// Try to link the node at the end of the linked list.
			if cas[T](&tail.next, next, n) { // enqueue is done.
				// Try to swing tail to the inserted node.
				cas[T](&q.tail, tail, n)
				return true
			}
		} else { // tail was not pointing to the last node
			// Try to swing tail to the next node.
			cas[T](&q.tail, tail, next)
		}
	}
	goto retry
}

// Dequeue removes and returns the value at the head of the queue.
// It reports false if the queue is empty.
func (q *BoundedQueue[T]) Dequeue() (T, bool) {
retry:
	head := load[T](&q.head)
	tail := load[T](&q.tail)
	next := load[T](&head.next)
	// Are head, tail, and next consistent?
	if head == load[T](&q.head) {
		// Is the queue empty or is tail falling behind?
		if head == tail {
			// Is the queue empty?
			if next == nil {
				var zero T
				return zero, false
			}
			cas[T](&q.tail, tail, next) // tail is falling behind, try to advance it.
		} else {
			// Read the value before CAS, otherwise another dequeue might free the next node.
			v := next.value
			if cas[T](&q.head, head, next) { // dequeue is done, return the value.
				atomic.AddInt32(&q.length, -1)
				return v, true
			}
		}
	}
	goto retry
}

// IsEmpty indicates whether this queue is empty or not.
//
// A producer that has reserved a slot but not yet linked its node makes the
// queue transiently non-empty here while Dequeue still misses it; the caller
// must tolerate that window (the notify channel re-signals itself for it).
func (q *BoundedQueue[T]) IsEmpty() bool {
	return atomic.LoadInt32(&q.length) == 0
}

func load[T any](p *unsafe.Pointer) *node[T] {
	return (*node[T])(atomic.LoadPointer(p))
}

func cas[T any](p *unsafe.Pointer, old, new *node[T]) bool {
	return atomic.CompareAndSwapPointer(p, unsafe.Pointer(old), unsafe.Pointer(new))
}
