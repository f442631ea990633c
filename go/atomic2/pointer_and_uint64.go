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

// Package atomic2 provides wider atomic primitives than the standard
// library's sync/atomic, most notably a pointer paired with a 64-bit
// counter that can be loaded and compare-and-swapped as a single unit.
package atomic2

import "sync/atomic"

// PointerAndUint64 is an atomic tuple of (*T, uint64). Both halves are
// read and replaced together, which makes it suitable as the head word
// of lock-free structures that need a version counter next to the
// pointer. The pair is stored behind a single atomic pointer to an
// immutable allocation, so a compare-and-swap can never observe a
// half-updated tuple.
type PointerAndUint64[T any] struct {
	p atomic.Pointer[composite64[T]]
}

type composite64[T any] struct {
	ptr *T
	val uint64
}

// Load returns the current (pointer, counter) pair.
func (x *PointerAndUint64[T]) Load() (*T, uint64) {
	c := x.p.Load()
	if c == nil {
		return nil, 0
	}
	return c.ptr, c.val
}

// Store unconditionally replaces the (pointer, counter) pair.
func (x *PointerAndUint64[T]) Store(p *T, v uint64) {
	x.p.Store(&composite64[T]{ptr: p, val: v})
}

// CompareAndSwap replaces the pair with (newP, newV) only if it still
// equals (oldP, oldV). Every successful swap installs a freshly
// allocated tuple; the garbage collector guarantees a previously loaded
// tuple cannot be recycled while a caller still references it, so the
// comparison cannot be fooled by address reuse.
func (x *PointerAndUint64[T]) CompareAndSwap(oldP *T, oldV uint64, newP *T, newV uint64) bool {
	c := x.p.Load()
	if c == nil {
		if oldP != nil || oldV != 0 {
			return false
		}
		return x.p.CompareAndSwap(nil, &composite64[T]{ptr: newP, val: newV})
	}
	if c.ptr != oldP || c.val != oldV {
		return false
	}
	return x.p.CompareAndSwap(c, &composite64[T]{ptr: newP, val: newV})
}
