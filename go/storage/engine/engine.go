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

// Package engine defines the contract between the storage layer and an
// embedded key-value engine. Sessions are short-lived transactional
// contexts opened from a connection; cursors are iterators opened from
// a session and bound to a named table.
package engine

import "github.com/cockroachdb/errors"

// Cursor open configuration strings.
const (
	// ConfigRecordStore is the cursor configuration for record stores.
	// Writes through such a cursor overwrite existing keys.
	ConfigRecordStore = ""

	// ConfigOverwriteFalse is the cursor configuration for everything
	// else (indexes). Writing an existing key through such a cursor is
	// an error.
	ConfigOverwriteFalse = "overwrite=false"
)

// ErrTableNotFound is returned by OpenCursor when the named table does
// not exist. This is the only recoverable engine outcome; callers
// translate it into a nil cursor.
var ErrTableNotFound = errors.New("engine: table not found")

// ErrKeyExists is returned by Cursor.Set when the cursor was opened
// with ConfigOverwriteFalse and the key is already present.
var ErrKeyExists = errors.New("engine: key already exists")

// Connection is a handle to an open engine. The connection outlives
// every session opened from it; it is borrowed, never owned, by the
// pooling layer.
type Connection interface {
	// OpenSession opens a new transactional context with snapshot
	// isolation.
	OpenSession() (Session, error)
}

// DropQueuer is implemented by connections that defer table drops
// while cursors may still reference the dropped table. The pooling
// layer drains the queue opportunistically when sessions are released.
type DropQueuer interface {
	// HaveDropsQueued reports whether any deferred drops are pending.
	HaveDropsQueued() bool

	// DropAllQueued executes every pending deferred drop.
	DropAllQueued() error
}

// Session is one engine transactional context. A session is used by at
// most one goroutine at a time.
type Session interface {
	// OpenCursor opens a cursor on the named table with the given
	// configuration string. Returns ErrTableNotFound if the table
	// does not exist.
	OpenCursor(uri string, config string) (Cursor, error)

	// TransactionPinnedRange reports how much transactional state the
	// session currently pins. An idle session reports zero.
	TransactionPinnedRange() (uint64, error)

	// Close releases the session and any state it pins.
	Close() error
}

// Cursor is an iterator bound to a named table within a session.
type Cursor interface {
	// Seek positions the cursor at the first key >= key within the
	// table and reports whether such a key exists.
	Seek(key []byte) (bool, error)

	// Next advances to the following key. An unpositioned cursor is
	// positioned at the first key of the table.
	Next() (bool, error)

	// Key returns the key at the current position.
	Key() []byte

	// Value returns the value at the current position.
	Value() []byte

	// Set writes a key/value pair through the cursor's session.
	Set(key, value []byte) error

	// Delete removes a key through the cursor's session.
	Delete(key []byte) error

	// Reset returns the cursor to an idle, unpositioned state and
	// releases any engine state it pins. A reset cursor remains open
	// and can be repositioned.
	Reset() error

	// Close releases the cursor.
	Close() error
}
