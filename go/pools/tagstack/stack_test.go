// Copyright 2025 The Burrow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tagstack

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNode is a minimal intrusive node for testing.
type testNode struct {
	value int
	next  atomic.Pointer[testNode]
	tag   atomic.Uint64
}

func (n *testNode) NextPtr() *atomic.Pointer[testNode] { return &n.next }
func (n *testNode) TagRef() *atomic.Uint64             { return &n.tag }

type testStack = Stack[testNode, *testNode]

func TestStackBasicOperations(t *testing.T) {
	var s testStack

	assert.True(t, s.IsEmpty(), "new stack should be empty")
	assert.Nil(t, s.Pop(), "pop from empty stack should return nil")

	node1 := &testNode{value: 1}
	s.Push(node1)
	assert.False(t, s.IsEmpty(), "stack should not be empty after push")

	peeked := s.Peek()
	require.NotNil(t, peeked, "peek should return non-nil")
	assert.Equal(t, 1, peeked.value)
	assert.False(t, s.IsEmpty(), "peek must not remove the element")

	popped := s.Pop()
	require.NotNil(t, popped, "pop should return non-nil")
	assert.Same(t, node1, popped)
	assert.True(t, s.IsEmpty(), "stack should be empty after popping only element")
}

func TestStackLIFOOrder(t *testing.T) {
	var s testStack

	for i := 0; i < 5; i++ {
		s.Push(&testNode{value: i + 1})
	}

	for i := 5; i >= 1; i-- {
		popped := s.Pop()
		require.NotNil(t, popped, "pop should return non-nil for value %d", i)
		assert.Equal(t, i, popped.value)
	}

	assert.True(t, s.IsEmpty())
}

func TestStackTagIncrementsPerPop(t *testing.T) {
	var s testStack
	n := &testNode{value: 1}

	for i := range 10 {
		s.Push(n)
		popped := s.Pop()
		require.Same(t, n, popped)
		assert.Equal(t, uint64(i+1), n.tag.Load(), "tag increments once per pop")
		assert.Nil(t, n.next.Load(), "next pointer is cleared after pop")
	}
}

func TestStackStaleCASFails(t *testing.T) {
	var s testStack
	b := &testNode{value: 2}
	a := &testNode{value: 1}
	s.Push(b)
	s.Push(a)

	// A popper loads the head and stalls before its CAS.
	oldTop, oldTag := s.top.Load()
	require.NotNil(t, oldTop)
	next := oldTop.NextPtr().Load()

	// Another goroutine pops the same node and pushes it back, which
	// bumps the node's tag.
	popped := s.Pop()
	require.Same(t, a, popped)
	require.Equal(t, uint64(1), a.tag.Load())
	s.Push(popped)

	// The stalled CAS must fail: the pointer half matches again, but
	// the head's tag has moved on.
	var nextTag uint64
	if next != nil {
		nextTag = next.TagRef().Load()
	}
	assert.False(t, s.top.CompareAndSwap(oldTop, oldTag, next, nextTag),
		"a CAS holding a pre-pop view of the head must fail")

	// Both elements are still reachable.
	assert.Same(t, a, s.Pop())
	assert.Same(t, b, s.Pop())
	assert.True(t, s.IsEmpty())
}

func TestStackConcurrentPushAndPop(t *testing.T) {
	var s testStack
	const numGoroutines = 50
	const operationsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)

	var pushCount atomic.Int64
	var popCount atomic.Int64
	poppedValues := sync.Map{}

	for i := range numGoroutines {
		go func(base int) {
			defer wg.Done()
			for j := range operationsPerGoroutine {
				s.Push(&testNode{value: base*10000 + j})
				pushCount.Add(1)
			}
		}(i)
	}

	for range numGoroutines {
		go func() {
			defer wg.Done()
			for range operationsPerGoroutine {
				popped := s.Pop()
				if popped != nil {
					popCount.Add(1)
					_, exists := poppedValues.LoadOrStore(popped.value, true)
					assert.False(t, exists, "value %d should not be popped twice", popped.value)
				}
			}
		}()
	}

	wg.Wait()

	remaining := int64(0)
	for {
		popped := s.Pop()
		if popped == nil {
			break
		}
		remaining++
		_, exists := poppedValues.LoadOrStore(popped.value, true)
		assert.False(t, exists, "value %d should not be popped twice", popped.value)
	}

	assert.Equal(t, pushCount.Load(), popCount.Load()+remaining,
		"total pushed should equal total popped")
}

func TestStackConcurrentRecycling(t *testing.T) {
	// A small set of nodes cycling through the stack at high
	// contention is the worst case for ABA: the same pointers keep
	// coming back. Each node may only be held by one goroutine at a
	// time; a double-pop would show up as two holders at once.
	var s testStack
	const nodes = 4
	const goroutines = 8
	const iterations = 5000

	var holder [nodes]atomic.Int32
	for i := range nodes {
		s.Push(&testNode{value: i})
	}

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				n := s.Pop()
				if n == nil {
					continue
				}
				if !holder[n.value].CompareAndSwap(0, 1) {
					t.Error("node held by two goroutines at once")
					return
				}
				holder[n.value].Store(0)
				s.Push(n)
			}
		}()
	}
	wg.Wait()

	count := 0
	for s.Pop() != nil {
		count++
	}
	assert.Equal(t, nodes, count, "no node lost or duplicated")
}

func BenchmarkStackPushPop(b *testing.B) {
	var s testStack
	n := &testNode{value: 1}

	b.ResetTimer()
	for range b.N {
		s.Push(n)
		s.Pop()
	}
}

func BenchmarkStackConcurrentPushPop(b *testing.B) {
	var s testStack

	b.RunParallel(func(pb *testing.PB) {
		n := &testNode{value: 0}
		for pb.Next() {
			s.Push(n)
			if got := s.Pop(); got != nil {
				n = got
			} else {
				n = &testNode{value: 0}
			}
		}
	})
}
