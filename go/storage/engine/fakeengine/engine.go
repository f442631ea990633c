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

// Package fakeengine is an instrumented in-memory engine used by the
// pooling tests. It counts opens, closes and resets, and lets tests
// inject failures, mark tables missing, and fake pinned transactional
// state.
package fakeengine

import (
	"sync"
	"sync/atomic"

	"github.com/burrowdb/burrow/go/storage/engine"

	"github.com/cockroachdb/errors"
)

// Conn implements engine.Connection and engine.DropQueuer.
type Conn struct {
	mu      sync.Mutex
	missing map[string]bool

	SessionsOpened atomic.Int64
	SessionsClosed atomic.Int64

	dropsQueued  atomic.Bool
	DropAllCalls atomic.Int64

	// OpenSessionErr, when set, is returned by OpenSession.
	OpenSessionErr error
}

// New returns an empty fake engine connection. Every table exists
// unless marked missing.
func New() *Conn {
	return &Conn{missing: make(map[string]bool)}
}

// MarkMissing makes OpenCursor on the given table return
// engine.ErrTableNotFound.
func (c *Conn) MarkMissing(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missing[uri] = true
}

// QueueDrop flips the drops-queued flag, as a real engine would when a
// table drop is deferred.
func (c *Conn) QueueDrop() {
	c.dropsQueued.Store(true)
}

// OpenSession implements engine.Connection.
func (c *Conn) OpenSession() (engine.Session, error) {
	if c.OpenSessionErr != nil {
		return nil, c.OpenSessionErr
	}
	c.SessionsOpened.Add(1)
	return &Session{conn: c}, nil
}

// HaveDropsQueued implements engine.DropQueuer.
func (c *Conn) HaveDropsQueued() bool {
	return c.dropsQueued.Load()
}

// DropAllQueued implements engine.DropQueuer.
func (c *Conn) DropAllQueued() error {
	c.dropsQueued.Store(false)
	c.DropAllCalls.Add(1)
	return nil
}

// Session implements engine.Session.
type Session struct {
	conn   *Conn
	closed atomic.Bool

	pinnedRange atomic.Uint64

	CursorsOpened atomic.Int64

	// Note is scratch space for tests that assert cross-goroutine
	// visibility of writes made before a session is released.
	Note string

	// CloseErr, when set, is returned by Close.
	CloseErr error

	// PinnedRangeFn, when set, replaces TransactionPinnedRange. Tests
	// use it to park a caller inside the pool's release path.
	PinnedRangeFn func() (uint64, error)
}

// SetPinnedRange fakes transactional state held by the session.
func (s *Session) SetPinnedRange(n uint64) {
	s.pinnedRange.Store(n)
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// OpenCursor implements engine.Session.
func (s *Session) OpenCursor(uri, config string) (engine.Cursor, error) {
	if s.closed.Load() {
		return nil, errors.New("fakeengine: session closed")
	}
	s.conn.mu.Lock()
	missing := s.conn.missing[uri]
	s.conn.mu.Unlock()
	if missing {
		return nil, errors.WithStack(engine.ErrTableNotFound)
	}
	s.CursorsOpened.Add(1)
	return &Cursor{sess: s, URI: uri, Config: config}, nil
}

// TransactionPinnedRange implements engine.Session.
func (s *Session) TransactionPinnedRange() (uint64, error) {
	if s.PinnedRangeFn != nil {
		return s.PinnedRangeFn()
	}
	return s.pinnedRange.Load(), nil
}

// Close implements engine.Session.
func (s *Session) Close() error {
	if s.CloseErr != nil {
		return s.CloseErr
	}
	if s.closed.CompareAndSwap(false, true) {
		s.conn.SessionsClosed.Add(1)
	}
	return nil
}

// Cursor implements engine.Cursor. Navigation is a stub; the pooling
// layer never reads through cursors, it only opens, resets and closes
// them.
type Cursor struct {
	sess   *Session
	URI    string
	Config string

	Resets atomic.Int64
	Closes atomic.Int64

	// ResetErr, when set, is returned by Reset.
	ResetErr error
	// CloseErr, when set, is returned by Close.
	CloseErr error
}

// Seek implements engine.Cursor.
func (c *Cursor) Seek(key []byte) (bool, error) { return false, nil }

// Next implements engine.Cursor.
func (c *Cursor) Next() (bool, error) { return false, nil }

// Key implements engine.Cursor.
func (c *Cursor) Key() []byte { return nil }

// Value implements engine.Cursor.
func (c *Cursor) Value() []byte { return nil }

// Set implements engine.Cursor.
func (c *Cursor) Set(key, value []byte) error { return nil }

// Delete implements engine.Cursor.
func (c *Cursor) Delete(key []byte) error { return nil }

// Reset implements engine.Cursor.
func (c *Cursor) Reset() error {
	if c.ResetErr != nil {
		return c.ResetErr
	}
	c.Resets.Add(1)
	return nil
}

// Close implements engine.Cursor.
func (c *Cursor) Close() error {
	if c.CloseErr != nil {
		return c.CloseErr
	}
	c.Closes.Add(1)
	return nil
}
