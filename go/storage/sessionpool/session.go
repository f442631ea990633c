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

package sessionpool

import (
	"sync/atomic"

	"github.com/burrowdb/burrow/go/storage/engine"

	"github.com/cockroachdb/errors"
)

// MetadataCursorID is the reserved cursor id for the engine's metadata
// cursor. NextCursorID never returns it.
const MetadataCursorID uint64 = 0

var nextCursorID atomic.Uint64

// NextCursorID allocates a process-wide unique cursor id, starting at 1.
func NextCursorID() uint64 {
	return nextCursorID.Add(1)
}

// cursorRecord is one cached cursor. The generation is assigned from
// the session's monotonic counter at insertion time and never changes.
type cursorRecord struct {
	id     uint64
	gen    uint64
	cursor engine.Cursor
}

// Session wraps one engine transactional context together with a cache
// of recently used cursors, keyed by table id.
//
// A session is used by at most one goroutine at a time: either the
// caller it is checked out to, or the pool draining it. The cursor
// cache therefore needs no internal synchronization.
type Session struct {
	// next chains the session into the pool's idle stack. Only the
	// stack touches it.
	next atomic.Pointer[Session]

	// tag is incremented by the idle stack every time this session is
	// popped. See the tagstack package.
	tag atomic.Uint64

	id    uint64
	epoch uint64

	ws engine.Session // owned

	// cursors holds cached cursors ordered oldest first. New entries
	// are appended; eviction trims from the front.
	cursors    []cursorRecord
	cursorGen  uint64
	cursorsOut int

	cacheFloor uint64
}

func newSession(ws engine.Session, id, epoch, cacheFloor uint64) *Session {
	return &Session{
		id:         id,
		epoch:      epoch,
		ws:         ws,
		cacheFloor: cacheFloor,
	}
}

// NextPtr implements tagstack.Node.
func (s *Session) NextPtr() *atomic.Pointer[Session] { return &s.next }

// TagRef implements tagstack.Node.
func (s *Session) TagRef() *atomic.Uint64 { return &s.tag }

// ID returns the session's pool-assigned identifier.
func (s *Session) ID() uint64 { return s.id }

// Tag returns the session's current pop counter.
func (s *Session) Tag() uint64 { return s.tag.Load() }

// EngineSession returns the underlying engine session handle.
func (s *Session) EngineSession() engine.Session { return s.ws }

// CursorsOut returns the number of cursors currently checked out of
// this session's cache.
func (s *Session) CursorsOut() int { return s.cursorsOut }

// GetCursor returns a cursor for the given table, reusing a cached one
// when possible. On a cache miss a new cursor is opened on the engine;
// if the table does not exist, a nil cursor is returned without error.
// forRecordStore selects the record-store cursor configuration.
func (s *Session) GetCursor(uri string, id uint64, forRecordStore bool) engine.Cursor {
	for i, rec := range s.cursors {
		if rec.id == id {
			s.cursors = append(s.cursors[:i], s.cursors[i+1:]...)
			s.cursorsOut++
			return rec.cursor
		}
	}

	config := engine.ConfigOverwriteFalse
	if forRecordStore {
		config = engine.ConfigRecordStore
	}

	c, err := s.ws.OpenCursor(uri, config)
	if err != nil {
		if errors.Is(err, engine.ErrTableNotFound) {
			return nil
		}
		fatalOnErr("open cursor", err)
	}
	if c != nil {
		s.cursorsOut++
	}
	return c
}

// ReleaseCursor returns a cursor to the session's cache. The cursor is
// reset to an idle position and stamped with the current generation,
// then the cache is trimmed by the generational eviction rule: with N
// cursors cached, entries older than max(floor, N*N) generations are
// closed, oldest first.
func (s *Session) ReleaseCursor(id uint64, cursor engine.Cursor) {
	invariant(s.ws != nil, "release cursor on a dead session")
	invariant(cursor != nil, "release of a nil cursor")
	invariant(s.cursorsOut > 0, "cursor release without a matching acquire")

	s.cursorsOut--

	fatalOnErr("reset cursor", cursor.Reset())

	s.cursors = append(s.cursors, cursorRecord{id: id, gen: s.cursorGen, cursor: cursor})
	s.cursorGen++

	n := uint64(len(s.cursors))
	cutoff := n * n
	if cutoff < s.cacheFloor {
		cutoff = s.cacheFloor
	}
	for len(s.cursors) > 0 && s.cursorGen-s.cursors[0].gen > cutoff {
		fatalOnErr("close cursor", s.cursors[0].cursor.Close())
		s.cursors = s.cursors[1:]
		n--
		cutoff = n * n
		if cutoff < s.cacheFloor {
			cutoff = s.cacheFloor
		}
	}
}

// CloseAllCursors closes every cached cursor and empties the cache.
func (s *Session) CloseAllCursors() {
	invariant(s.ws != nil, "close cursors on a dead session")
	for _, rec := range s.cursors {
		if rec.cursor != nil {
			fatalOnErr("close cursor", rec.cursor.Close())
		}
	}
	s.cursors = nil
}

// cachedCursors returns the number of cursors currently cached.
func (s *Session) cachedCursors() int { return len(s.cursors) }

// destroy closes the cached cursors and the engine session.
func (s *Session) destroy() {
	if s.ws == nil {
		return
	}
	s.CloseAllCursors()
	fatalOnErr("close session", s.ws.Close())
	s.ws = nil
}
