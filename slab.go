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

import "github.com/jnicholls/mio/pkg/errors"

// Slab is a fixed-capacity token-to-value registry. Vacant slots form an
// intrusive free list, so insert and remove are O(1) with no scanning, and
// nothing allocates after construction.
//
// Tokens map bijectively to slot indices plus the configured offset. There
// is no generation counter: a freed index is reused by the very next insert,
// and callers must not retain tokens across a Remove. Callers that need
// staleness detection layer their own tag into the stored value.
type Slab[T any] struct {
	entries []slabEntry[T]
	free    int // head of the free list, -1 when full
	count   int
	offset  Token
}

type slabEntry[T any] struct {
	value    T
	nextFree int
	occupied bool
}

// NewSlab creates a slab holding at most capacity values, issuing tokens
// starting at offset. The range [0, offset) is left to the owner for
// reserved singleton resources.
func NewSlab[T any](capacity int, offset Token) *Slab[T] {
	s := &Slab[T]{
		entries: make([]slabEntry[T], capacity),
		free:    0,
		offset:  offset,
	}
	if capacity == 0 {
		s.free = -1
	}
	for i := range s.entries {
		if i == capacity-1 {
			s.entries[i].nextFree = -1
		} else {
			s.entries[i].nextFree = i + 1
		}
	}
	return s
}

// Insert stores v and returns its token. It fails with ErrRegistryFull when
// no slot is vacant, leaving the slab unchanged.
func (s *Slab[T]) Insert(v T) (Token, error) {
	return s.InsertWith(func(Token) T { return v })
}

// InsertWith reserves a token first and then stores the value built from it,
// for state that needs to know its own token.
func (s *Slab[T]) InsertWith(factory func(Token) T) (Token, error) {
	if s.free < 0 {
		return 0, errors.ErrRegistryFull
	}
	idx := s.free
	token := s.offset + Token(idx)
	e := &s.entries[idx]
	s.free = e.nextFree
	e.value = factory(token)
	e.occupied = true
	s.count++
	return token, nil
}

// Get returns a pointer to the value registered under token, or false if the
// token is vacant or out of range. The pointer lets callers mutate the value
// in place; it is invalidated by Remove.
func (s *Slab[T]) Get(token Token) (*T, bool) {
	idx := int(token - s.offset)
	if idx < 0 || idx >= len(s.entries) || !s.entries[idx].occupied {
		return nil, false
	}
	return &s.entries[idx].value, true
}

// Remove frees the slot behind token and returns the removed value. Removing
// a vacant or out-of-range token is a no-op reporting false.
func (s *Slab[T]) Remove(token Token) (T, bool) {
	idx := int(token - s.offset)
	if idx < 0 || idx >= len(s.entries) || !s.entries[idx].occupied {
		var zero T
		return zero, false
	}
	e := &s.entries[idx]
	v := e.value
	var zero T
	e.value = zero // release any references held by the slot
	e.occupied = false
	e.nextFree = s.free
	s.free = idx
	s.count--
	return v, true
}

// Len reports the number of occupied slots.
func (s *Slab[T]) Len() int { return s.count }

// Cap reports the fixed capacity.
func (s *Slab[T]) Cap() int { return len(s.entries) }
