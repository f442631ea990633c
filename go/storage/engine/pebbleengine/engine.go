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

// Package pebbleengine implements the engine contract on top of
// pebble. Tables are key ranges under a per-table prefix, tracked in a
// small catalog that is itself persisted in pebble. Table drops are
// deferred through a queue so they can be executed while no cursor
// ranges over the dropped keyspace.
package pebbleengine

import (
	"sync"

	"github.com/burrowdb/burrow/go/storage/engine"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

const (
	catalogTag = 'c'
	tableTag   = 't'
	keySep     = 0x00
)

// catalogKey returns the key under which a table's catalog entry lives.
func catalogKey(table string) []byte {
	k := make([]byte, 0, len(table)+2)
	k = append(k, catalogTag, keySep)
	return append(k, table...)
}

// tablePrefix returns the key prefix shared by all rows of a table.
func tablePrefix(table string) []byte {
	p := make([]byte, 0, len(table)+3)
	p = append(p, tableTag, keySep)
	p = append(p, table...)
	return append(p, keySep)
}

// tableKey builds the full storage key for a row.
func tableKey(table string, k []byte) []byte {
	p := tablePrefix(table)
	return append(p, k...)
}

// prefixUpperBound returns the smallest key greater than every key
// with the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	ub := make([]byte, len(prefix))
	copy(ub, prefix)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}

// Engine is a pebble-backed implementation of engine.Connection and
// engine.DropQueuer.
type Engine struct {
	db *pebble.DB

	mu        sync.Mutex
	tables    map[string]struct{}
	dropQueue []string
}

var (
	_ engine.Connection = (*Engine)(nil)
	_ engine.DropQueuer = (*Engine)(nil)
)

// Open opens or creates a pebble database at path and loads the table
// catalog. Pass pebble options with an in-memory FS for tests.
func Open(path string, opts *pebble.Options) (*Engine, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening pebble database")
	}

	e := &Engine{
		db:     db,
		tables: make(map[string]struct{}),
	}
	if err := e.loadCatalog(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadCatalog() error {
	prefix := []byte{catalogTag, keySep}
	it := e.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	for it.First(); it.Valid(); it.Next() {
		e.tables[string(it.Key()[len(prefix):])] = struct{}{}
	}
	return errors.Wrap(it.Close(), "loading table catalog")
}

// DB exposes the underlying pebble database.
func (e *Engine) DB() *pebble.DB { return e.db }

// Close flushes and closes the database. All sessions must be closed
// first.
func (e *Engine) Close() error {
	return errors.Wrap(e.db.Close(), "closing pebble database")
}

// CreateTable registers a new table in the catalog.
func (e *Engine) CreateTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tables[name]; ok {
		return errors.Errorf("table %q already exists", name)
	}
	if err := e.db.Set(catalogKey(name), nil, pebble.Sync); err != nil {
		return errors.Wrapf(err, "creating table %q", name)
	}
	e.tables[name] = struct{}{}
	return nil
}

// DropTable removes a table from the catalog and queues the deletion
// of its data. New cursors on the table fail immediately; the data is
// reclaimed when DropAllQueued runs, which does not check for cursors
// still positioned on the table.
func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tables[name]; !ok {
		return errors.WithStack(engine.ErrTableNotFound)
	}
	if err := e.db.Delete(catalogKey(name), pebble.Sync); err != nil {
		return errors.Wrapf(err, "dropping table %q", name)
	}
	delete(e.tables, name)
	e.dropQueue = append(e.dropQueue, name)
	return nil
}

// HaveDropsQueued implements engine.DropQueuer.
func (e *Engine) HaveDropsQueued() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dropQueue) > 0
}

// DropAllQueued implements engine.DropQueuer. It deletes the key
// ranges of every queued table drop.
func (e *Engine) DropAllQueued() error {
	e.mu.Lock()
	queued := e.dropQueue
	e.dropQueue = nil
	e.mu.Unlock()

	for _, name := range queued {
		prefix := tablePrefix(name)
		if err := e.db.DeleteRange(prefix, prefixUpperBound(prefix), pebble.Sync); err != nil {
			return errors.Wrapf(err, "deleting data of dropped table %q", name)
		}
	}
	return nil
}

// OpenSession implements engine.Connection.
func (e *Engine) OpenSession() (engine.Session, error) {
	return &session{eng: e}, nil
}

func (e *Engine) tableExists(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tables[name]
	return ok
}
