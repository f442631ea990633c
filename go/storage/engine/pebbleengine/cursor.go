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
	"io"

	"github.com/burrowdb/burrow/go/storage/engine"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// cursor iterates one table's key range. The pebble iterator is
// created lazily on first positioning and released by Reset, so an
// idle cached cursor pins no engine state.
type cursor struct {
	sess  *session
	table string

	lower, upper []byte
	overwrite    bool

	iter       *pebble.Iterator
	positioned bool
	key, value []byte
}

var _ engine.Cursor = (*cursor)(nil)

func (c *cursor) getIter() *pebble.Iterator {
	if c.iter == nil {
		opts := &pebble.IterOptions{
			LowerBound: c.lower,
			UpperBound: c.upper,
		}
		if c.sess.batch != nil {
			c.iter = c.sess.batch.NewIter(opts)
		} else {
			c.iter = c.sess.eng.db.NewIter(opts)
		}
	}
	return c.iter
}

// capture copies the iterator's current entry; the iterator's own
// buffers are invalidated by the next positioning call.
func (c *cursor) capture(it *pebble.Iterator, valid bool) (bool, error) {
	if !valid {
		c.key = nil
		c.value = nil
		if err := it.Error(); err != nil {
			return false, errors.Wrap(err, "iterating table")
		}
		return false, nil
	}
	c.key = append(c.key[:0], it.Key()[len(c.lower):]...)
	c.value = append(c.value[:0], it.Value()...)
	return true, nil
}

// Seek implements engine.Cursor.
func (c *cursor) Seek(key []byte) (bool, error) {
	it := c.getIter()
	c.positioned = true
	return c.capture(it, it.SeekGE(tableKey(c.table, key)))
}

// Next implements engine.Cursor.
func (c *cursor) Next() (bool, error) {
	it := c.getIter()
	if !c.positioned {
		c.positioned = true
		return c.capture(it, it.First())
	}
	return c.capture(it, it.Next())
}

// Key implements engine.Cursor.
func (c *cursor) Key() []byte { return c.key }

// Value implements engine.Cursor.
func (c *cursor) Value() []byte { return c.value }

// Set implements engine.Cursor. Writes go through the session's
// batch; with overwrite disabled, setting an existing key fails.
func (c *cursor) Set(key, value []byte) error {
	fullKey := tableKey(c.table, key)

	if !c.overwrite {
		exists, err := c.sess.keyExists(fullKey)
		if err != nil {
			return err
		}
		if exists {
			return errors.WithStack(engine.ErrKeyExists)
		}
	}

	return errors.Wrap(c.sess.ensureBatch().Set(fullKey, value, nil), "writing key")
}

// Delete implements engine.Cursor.
func (c *cursor) Delete(key []byte) error {
	return errors.Wrap(c.sess.ensureBatch().Delete(tableKey(c.table, key), nil), "deleting key")
}

// Reset implements engine.Cursor. It releases the iterator and any
// engine state it pins; the cursor stays open and repositions on the
// next use.
func (c *cursor) Reset() error {
	c.positioned = false
	c.key = nil
	c.value = nil
	if c.iter == nil {
		return nil
	}
	err := c.iter.Close()
	c.iter = nil
	return errors.Wrap(err, "resetting cursor")
}

// Close implements engine.Cursor.
func (c *cursor) Close() error {
	err := c.Reset()
	c.sess = nil
	return err
}

// keyExists probes for a key through the session's batch when one is
// open, falling back to the database.
func (s *session) keyExists(key []byte) (bool, error) {
	var closer io.Closer
	var err error
	if s.batch != nil {
		_, closer, err = s.batch.Get(key)
	} else {
		_, closer, err = s.eng.db.Get(key)
	}
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "probing key")
	}
	return true, errors.Wrap(closer.Close(), "probing key")
}
