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

// Package sessionpool caches engine sessions and their cursors.
//
// Sessions are expensive to open and are acquired and released at very
// high rates, so idle sessions are kept on a lock-free stack and
// recycled. The pool survives shutdown races through a shared/exclusive
// barrier, and invalidates every pooled session at once by bumping an
// epoch counter.
package sessionpool

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/burrowdb/burrow/go/pools/tagstack"
	"github.com/burrowdb/burrow/go/storage/engine"
)

// DefaultCursorCacheFloor is the default lower bound on the cursor
// cache eviction cutoff. It keeps tiny workloads from thrashing their
// cursor caches.
const DefaultCursorCacheFloor = 100

// Config holds the pool's tunables.
type Config struct {
	// CursorCacheFloor is the minimum eviction cutoff for per-session
	// cursor caches. Zero means DefaultCursorCacheFloor.
	CursorCacheFloor uint64
}

// SessionPool is a process-wide cache of idle engine sessions, shared
// by all worker goroutines.
//
// Idle sessions live on a lock-free stack whose head is a tagged
// pointer; see the tagstack package for the ABA argument. The number
// of cached sessions is capped by the smaller of the sessions currently
// checked out and their high-water mark. Bumping the epoch invalidates every session
// created before the bump: such sessions are closed instead of cached
// when they come back.
type SessionPool struct {
	conn  engine.Connection // borrowed, outlives the pool
	drops engine.DropQueuer // nil when conn does not queue drops

	idle tagstack.Stack[Session, *Session]

	sessionsOut    atomic.Int64
	sessionsCached atomic.Int64
	highWaterMark  atomic.Int64
	epoch          atomic.Uint64

	// Regular operations take the barrier in shared mode. Shutdown
	// sets the flag and then takes it in exclusive mode, which waits
	// out all in-flight get/release callers; any caller entering
	// afterwards observes the flag.
	shutdownLock sync.RWMutex
	shuttingDown atomic.Bool

	nextSessionID atomic.Uint64
	cacheFloor    uint64
}

// NewSessionPool creates a pool over the given engine connection. The
// connection is borrowed: the engine must outlive the pool. If the
// connection implements engine.DropQueuer, queued table drops are
// drained opportunistically as sessions are released.
func NewSessionPool(conn engine.Connection, cfg Config) *SessionPool {
	floor := cfg.CursorCacheFloor
	if floor == 0 {
		floor = DefaultCursorCacheFloor
	}
	p := &SessionPool{
		conn:       conn,
		cacheFloor: floor,
	}
	p.drops, _ = conn.(engine.DropQueuer)
	return p
}

// Connection returns the engine connection the pool was built over.
func (p *SessionPool) Connection() engine.Connection { return p.conn }

// GetSession returns an idle session from the cache, or opens a new
// one. The caller owns the session exclusively until it hands it back
// through ReleaseSession.
func (p *SessionPool) GetSession() *Session {
	p.shutdownLock.RLock()
	defer p.shutdownLock.RUnlock()

	// No new operations may start once shutdown has begun.
	invariant(!p.shuttingDown.Load(), "getSession during shutdown")

	out := p.sessionsOut.Add(1)

	// The high-water mark only rises.
	for {
		hwm := p.highWaterMark.Load()
		if out <= hwm || p.highWaterMark.CompareAndSwap(hwm, out) {
			break
		}
	}

	if s := p.idle.Pop(); s != nil {
		cached := p.sessionsCached.Add(-1)
		invariant(cached >= 0, "negative cached session count")
		return s
	}

	return p.newSession()
}

func (p *SessionPool) newSession() *Session {
	ws, err := p.conn.OpenSession()
	fatalOnErr("open session", err)
	return newSession(ws, p.nextSessionID.Add(1), p.epoch.Load(), p.cacheFloor)
}

// ReleaseSession hands a session back to the pool. The session must be
// idle: no cursors out and no pinned transactional state. The pool
// either caches it (same epoch, and fewer sessions cached than are
// checked out, counting this one, and than the high-water mark), closes it,
// or — during shutdown — deliberately leaks it.
func (p *SessionPool) ReleaseSession(s *Session) {
	invariant(s != nil, "release of a nil session")
	invariant(s.CursorsOut() == 0, "released session has %d cursors out", s.CursorsOut())

	p.shutdownLock.RLock()
	defer p.shutdownLock.RUnlock()

	if p.shuttingDown.Load() {
		// Leak the session. Engine teardown may race with sessions
		// that hold no locks but are still about to be destroyed;
		// closing such a session would touch engine state that
		// shutdown is ripping out underneath us.
		slog.Debug("leaking session on shutdown", "session", s.id)
		return
	}

	// Only idle sessions may be cached. A non-zero pinned range means
	// the caller returned a session still holding transactional state.
	pinned, err := s.ws.TransactionPinnedRange()
	fatalOnErr("transaction pinned range", err)
	invariant(pinned == 0, "released session pins %d bytes of transactional state", pinned)

	epoch := p.epoch.Load()
	invariant(s.epoch <= epoch, "session epoch %d ahead of pool epoch %d", s.epoch, epoch)

	// Cache the session only while demand justifies it: never more
	// cached sessions than are still checked out right now, nor than
	// the high-water mark (which may briefly lag the checked-out count
	// after a GetSession increment), and never a session
	// from a closed epoch. The cached count is reserved with a CAS so
	// the cap holds under concurrent releases.
	returned := false
	if s.epoch == epoch {
		for {
			bound := p.sessionsOut.Load()
			if hwm := p.highWaterMark.Load(); hwm < bound {
				bound = hwm
			}
			cached := p.sessionsCached.Load()
			if cached >= bound {
				break
			}
			if p.sessionsCached.CompareAndSwap(cached, cached+1) {
				p.idle.Push(s)
				returned = true
				break
			}
		}
	}

	out := p.sessionsOut.Add(-1)
	invariant(out >= 0, "negative sessions-out count")

	if !returned {
		s.destroy()
	}

	if p.drops != nil && p.drops.HaveDropsQueued() {
		fatalOnErr("drop queued tables", p.drops.DropAllQueued())
	}
}

// CloseAll invalidates and drains the cache. The epoch is bumped
// first, so sessions still checked out are closed rather than cached
// when they come back, and concurrent GetSession calls mint sessions
// of the new epoch.
func (p *SessionPool) CloseAll() {
	p.epoch.Add(1)
	for {
		s := p.idle.Pop()
		if s == nil {
			return
		}
		cached := p.sessionsCached.Add(-1)
		invariant(cached >= 0, "negative cached session count")
		s.destroy()
	}
}

// ShuttingDown makes the pool terminal. It is idempotent and safe to
// call from concurrent goroutines: the flag is set once, then the
// barrier is taken exclusively to wait out every in-flight get/release
// call, and finally the cache is drained. After this returns, no new
// operations may enter; sessions released later are leaked.
func (p *SessionPool) ShuttingDown() {
	if !p.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	// Wait for callers currently inside getSession/releaseSession to
	// leave their shared sections. Anyone arriving after this point
	// sees the flag.
	p.shutdownLock.Lock()
	//nolint:staticcheck // empty critical section is the barrier
	p.shutdownLock.Unlock()

	slog.Debug("session pool shutting down",
		"sessions_out", p.sessionsOut.Load(),
		"sessions_cached", p.sessionsCached.Load(),
	)

	p.CloseAll()
}

// Stats is a point-in-time snapshot of the pool counters.
type Stats struct {
	SessionsOut    int64
	SessionsCached int64
	HighWaterMark  int64
	Epoch          uint64
}

// Stats returns a snapshot of the pool counters. The values are read
// independently and may not be mutually consistent under concurrency.
func (p *SessionPool) Stats() Stats {
	return Stats{
		SessionsOut:    p.sessionsOut.Load(),
		SessionsCached: p.sessionsCached.Load(),
		HighWaterMark:  p.highWaterMark.Load(),
		Epoch:          p.epoch.Load(),
	}
}
