// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/trimdb/trimdb/internal/arenaskl"
	"github.com/trimdb/trimdb/internal/base"
)

// memTableEntrySize returns the worst case number of arena bytes an entry
// consumes.
func memTableEntrySize(keyBytes, valueBytes int) uint64 {
	return uint64(arenaskl.MaxNodeSize(uint32(keyBytes), uint32(valueBytes)))
}

// A memTable implements an in-memory layer of the LSM. A memTable is mutable,
// but append-only. Records are added, but never removed. Deletion is
// supported via tombstones, which shadow older values for the key until a
// compaction into the last level elides them.
//
// A memTable is implemented on top of a lock-free arena-backed skiplist. An
// arena is a fixed size contiguous chunk of memory (see
// Options.MemTableSize). Writes to a memTable fail, rather than block, once
// the arena is exhausted; the DB then rotates to a fresh memTable and queues
// the full one for flushing.
//
// Writers hold a writer reference for the duration of a set or delete. A
// memTable is frozen before it is flushed: once frozen, new writers are
// turned away, and the flush waits for the in-flight writers to drain so
// that no structural mutation races the flush iterator.
//
// It is safe to call set, delete, get and newIter concurrently.
type memTable struct {
	skl *arenaskl.Skiplist
	// writerRefs is the number of in-flight writers.
	writerRefs atomic.Int32
	frozen     atomic.Bool
	emptySize  uint32
	// flushed is closed once the contents of the memTable are durably
	// represented in L0.
	flushed chan struct{}
	// id orders memTables by creation. It is only used for logging.
	id uint64
	// rotateReason records why the memTable was frozen. It is set before the
	// memTable is queued for flushing.
	rotateReason string
}

// newMemTable returns a new memTable with an arena of the given size.
func newMemTable(size uint64, id uint64) *memTable {
	arena := arenaskl.NewArena(make([]byte, size))
	m := &memTable{
		skl:     arenaskl.NewSkiplist(arena),
		flushed: make(chan struct{}),
		id:      id,
	}
	m.emptySize = arena.Size()
	return m
}

// writerRef registers an in-flight writer. It returns false if the memTable
// is frozen, in which case the caller must retry against the current mutable
// memTable.
//
// The increment is ordered before the frozen check, and freeze sets frozen
// before waiting for writerRefs to drain, so either the writer observes the
// freeze or the freeze observes the writer.
func (m *memTable) writerRef() bool {
	m.writerRefs.Add(1)
	if m.frozen.Load() {
		m.writerUnref()
		return false
	}
	return true
}

func (m *memTable) writerUnref() {
	if v := m.writerRefs.Add(-1); v < 0 {
		panic("trimdb: inconsistent memtable writer reference count")
	}
}

// set adds a live entry. It returns false if the arena is exhausted. The
// caller must hold a writer reference.
func (m *memTable) set(key, value []byte) bool {
	return m.skl.Put(key, value)
}

// delete adds a tombstone. It returns false if the arena is exhausted. The
// caller must hold a writer reference.
func (m *memTable) delete(key []byte) bool {
	return m.skl.Delete(key)
}

// get looks up the key. The returned value aliases the arena, which is never
// reused, so it remains valid for as long as the caller retains it.
func (m *memTable) get(key []byte) ([]byte, base.SearchResult) {
	return m.skl.Get(key)
}

// freeze turns away subsequent writers. It returns false if the memTable was
// already frozen.
func (m *memTable) freeze() bool {
	return m.frozen.CompareAndSwap(false, true)
}

func (m *memTable) isFrozen() bool {
	return m.frozen.Load()
}

// waitForWriters blocks until every writer that acquired a reference before
// the memTable was frozen has released it. It spins briefly before falling
// back to sleeping.
func (m *memTable) waitForWriters() {
	const spins = 64
	for i := 0; m.writerRefs.Load() != 0; i++ {
		if i < spins {
			runtime.Gosched()
			continue
		}
		time.Sleep(50 * time.Microsecond)
	}
}

// newIter returns an iterator over the memTable. The iterator observes
// writes that race with it, so a consistent view requires the memTable to be
// frozen and drained.
func (m *memTable) newIter() *arenaskl.Iterator {
	return m.skl.NewIter()
}

func (m *memTable) empty() bool {
	return m.skl.Empty()
}

// inuseBytes returns the number of arena bytes consumed by entries.
func (m *memTable) inuseBytes() uint64 {
	return uint64(m.skl.Size() - m.emptySize)
}

// availBytes returns the number of arena bytes still free.
func (m *memTable) availBytes() uint64 {
	a := m.skl.Arena()
	return uint64(a.Capacity() - a.Size())
}

func (m *memTable) markFlushed() {
	close(m.flushed)
}
