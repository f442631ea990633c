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

// Package tagstack provides a lock-free intrusive stack for pooled
// objects. The head of the stack is a 128-bit (pointer, tag) pair
// manipulated with atomic CAS operations to prevent the ABA problem.
//
// Unlike stacks that keep a single pool-wide pop counter, the tag here
// lives on the node itself and is incremented every time that node is
// popped. A stalled CAS that still holds a pre-pop view of the head
// must observe both the same pointer and the same per-node tag, and the
// popper bumps the tag before the node can be re-published, so the
// stale CAS always fails.
package tagstack

import (
	"runtime"
	"sync/atomic"

	"github.com/burrowdb/burrow/go/atomic2"
)

// Node is the intrusive contract stack elements must satisfy. T is the
// element type itself, not a pointer to it; the methods are
// implemented on *T. The next pointer is only touched while the
// element is inside the stack; the tag is owned by the stack and must
// not be modified by the element's owner.
type Node[T any] interface {
	// NextPtr returns a pointer to the atomic next pointer used to
	// chain elements inside the stack.
	NextPtr() *atomic.Pointer[T]

	// TagRef returns a pointer to the element's pop counter.
	TagRef() *atomic.Uint64
}

// Stack is a lock-free LIFO stack safe for concurrent use. T is the
// element type and P its pointer type implementing Node[T], so the
// head pair and the intrusive next pointers hold plain *T values.
// The zero value is an empty stack.
type Stack[T any, P interface {
	Node[T]
	*T
}] struct {
	// top combines the pointer to the top element and that element's
	// tag as observed when it was pushed.
	top atomic2.PointerAndUint64[T]
}

// Push adds an element to the top of the stack.
// This operation is lock-free and safe for concurrent use.
func (s *Stack[T, P]) Push(elem P) {
	for {
		oldTop, oldTag := s.top.Load()

		elem.NextPtr().Store(oldTop)

		// Publish the element together with its current tag. The tag
		// was bumped by whoever popped it last, so no in-flight CAS
		// from before that pop can match this head value.
		if s.top.CompareAndSwap(oldTop, oldTag, (*T)(elem), elem.TagRef().Load()) {
			return
		}

		runtime.Gosched()
	}
}

// Pop removes and returns the element at the top of the stack.
// Returns nil if the stack is empty.
// This operation is lock-free and safe for concurrent use.
func (s *Stack[T, P]) Pop() P {
	for {
		oldTop, oldTag := s.top.Load()

		if oldTop == nil {
			var zero P
			return zero
		}
		node := P(oldTop)

		next := node.NextPtr().Load()

		// The new head carries the next element's own tag. While the
		// CAS below can still see (oldTop, oldTag), the next element
		// sits beneath the top and cannot have been popped, so its tag
		// is stable.
		var nextTag uint64
		if next != nil {
			nextTag = P(next).TagRef().Load()
		}

		if s.top.CompareAndSwap(oldTop, oldTag, next, nextTag) {
			// Bump the tag before the element can be re-pushed, then
			// unlink it so it does not pin the rest of the stack.
			node.TagRef().Add(1)
			node.NextPtr().Store(nil)
			return node
		}

		runtime.Gosched()
	}
}

// Peek returns the element at the top of the stack without removing it.
// Returns nil if the stack is empty.
// Note: the returned element may be popped by another goroutine at any time.
func (s *Stack[T, P]) Peek() P {
	top, _ := s.top.Load()
	if top == nil {
		var zero P
		return zero
	}
	return P(top)
}

// IsEmpty returns true if the stack is empty.
// Note: the result may be invalidated by concurrent operations.
func (s *Stack[T, P]) IsEmpty() bool {
	top, _ := s.top.Load()
	return top == nil
}
