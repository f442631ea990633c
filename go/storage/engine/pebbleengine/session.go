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

package pebbleengine

import (
	"github.com/burrowdb/burrow/go/storage/engine"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// session is one transactional context over the engine. Writes
// accumulate in an indexed batch created on first use; the batch is
// the session's pinned transactional state until it is committed or
// rolled back. A session is used by one goroutine at a time.
type session struct {
	eng    *Engine
	batch  *pebble.Batch
	closed bool
}

var _ engine.Session = (*session)(nil)

// ensureBatch lazily creates the session's write batch.
func (s *session) ensureBatch() *pebble.Batch {
	if s.batch == nil {
		s.batch = s.eng.db.NewIndexedBatch()
	}
	return s.batch
}

// OpenCursor implements engine.Session.
func (s *session) OpenCursor(uri, config string) (engine.Cursor, error) {
	if s.closed {
		return nil, errors.New("session is closed")
	}
	if !s.eng.tableExists(uri) {
		return nil, errors.WithStack(engine.ErrTableNotFound)
	}

	prefix := tablePrefix(uri)
	return &cursor{
		sess:      s,
		table:     uri,
		lower:     prefix,
		upper:     prefixUpperBound(prefix),
		overwrite: config == engine.ConfigRecordStore,
	}, nil
}

// TransactionPinnedRange implements engine.Session. It reports the
// size of the uncommitted write batch; an idle session reports zero.
func (s *session) TransactionPinnedRange() (uint64, error) {
	if s.closed {
		return 0, errors.New("session is closed")
	}
	if s.batch == nil || s.batch.Count() == 0 {
		return 0, nil
	}
	return uint64(s.batch.Len()), nil
}

// Commit applies the session's pending writes durably and leaves the
// session idle.
func (s *session) Commit() error {
	if s.batch == nil {
		return nil
	}
	err := s.batch.Commit(pebble.Sync)
	cerr := s.batch.Close()
	s.batch = nil
	if err != nil {
		return errors.Wrap(err, "committing batch")
	}
	return errors.Wrap(cerr, "closing committed batch")
}

// Rollback discards the session's pending writes.
func (s *session) Rollback() error {
	if s.batch == nil {
		return nil
	}
	err := s.batch.Close()
	s.batch = nil
	return errors.Wrap(err, "discarding batch")
}

// Close implements engine.Session. Pending writes are discarded.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Rollback()
}
