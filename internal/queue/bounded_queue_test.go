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

package queue_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnicholls/mio/internal/queue"
)

func TestBoundedQueueFIFO(t *testing.T) {
	q := queue.New[int](8)
	for i := 0; i < 8; i++ {
		require.Truef(t, q.Enqueue(i), "enqueue %d", i)
	}
	for i := 0; i < 8; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}

func TestBoundedQueueCapacity(t *testing.T) {
	q := queue.New[string](2)
	require.True(t, q.Enqueue("a"))
	require.True(t, q.Enqueue("b"))
	assert.False(t, q.Enqueue("c"), "enqueue beyond capacity must fail")

	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	assert.True(t, q.Enqueue("d"), "a slot freed by dequeue is usable again")
}

func TestBoundedQueueConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perSender = 1000
	)
	q := queue.New[int](producers * perSender)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				for !q.Enqueue(p*perSender + i) {
				}
			}
		}(p)
	}
	wg.Wait()

	lastPerSender := make(map[int]int)
	total := 0
	for {
		v, ok := q.Dequeue()
		if !ok {
			break
		}
		total++
		sender, seq := v/perSender, v%perSender
		if last, seen := lastPerSender[sender]; seen {
			require.Greaterf(t, seq, last, "per-sender order broken for sender %d", sender)
		}
		lastPerSender[sender] = seq
	}
	assert.Equal(t, producers*perSender, total)
}
