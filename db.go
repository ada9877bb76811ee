// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package trimdb provides an embedded, ordered key/value store built on a
// log-structured merge tree.
//
// Writes land in a lock-free, arena-backed skiplist memtable. Full memtables
// are flushed to immutable sorted tables in L0, whose key ranges may overlap.
// A background worker compacts L0 into the sorted levels L1 and deeper,
// where the tables of a level hold disjoint key ranges. Reads consult the
// mutable memtable, then the memtables awaiting flush newest first, then the
// L0 tables newest first, and finally the sorted levels from shallow to
// deep; the first record found for a key, value or tombstone, wins.
package trimdb // import "github.com/trimdb/trimdb"

import (
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trimdb/trimdb/cache"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/sstable/slotblk"
)

var (
	// ErrNotFound is returned when a get operation does not find the
	// requested key.
	ErrNotFound = base.ErrNotFound
	// ErrClosed is returned when an operation is performed on a closed DB.
	ErrClosed = base.ErrClosed
	// ErrReadOnly is returned when a write operation is performed on a
	// read-only database.
	ErrReadOnly = errors.New("trimdb: read-only")
	// ErrCorruption is a marker to indicate that data in a file (WAL,
	// MANIFEST, sstable) isn't in the expected format.
	ErrCorruption = base.ErrCorruption
	// ErrEntryTooLarge is returned when a key and value cannot be stored in
	// a single table block.
	ErrEntryTooLarge = base.ErrEntryTooLarge
)

// IsCorruptionError returns true if the given error indicates database
// corruption.
func IsCorruptionError(err error) bool {
	return base.IsCorruptionError(err)
}

// MaxEntrySize is the largest combined key and value length that can be
// written.
const MaxEntrySize = slotblk.MaxEntrySize

// memTableList is an immutable snapshot of the DB's memtables. It is replaced
// wholesale whenever a memtable is rotated or flushed.
type memTableList struct {
	// mutable is the memtable receiving writes.
	mutable *memTable
	// queue holds the frozen memtables awaiting flush, oldest first.
	queue []*memTable
}

// DB provides a concurrent, persistent ordered key/value store.
//
// A DB's basic operations (Get, Set, Delete) should be self-explanatory. Get
// and Delete will return ErrNotFound if the requested key is not in the
// store. Callers are free to ignore this error.
//
// A DB also allows for iterating over the key/value pairs in key order. If d
// is a DB, the code below prints all key/value pairs whose keys are 'greater
// than or equal to' k:
//
//	iter := d.NewIter(nil)
//	for iter.SeekGE(k); iter.Valid(); iter.Next() {
//		fmt.Printf("key=%q value=%q\n", iter.Key(), iter.Value())
//	}
//	return iter.Close()
//
// Iterators observe writes that race with them; they are not snapshots.
//
// All methods of a DB are safe for concurrent use.
type DB struct {
	dirname    string
	opts       *Options
	fileLock   io.Closer
	cache      *cache.Cache
	tableCache tableCache
	layers     []*layer
	mem        atomic.Pointer[memTableList]
	prom       promMetrics
	closed     atomic.Bool

	// workMu serializes flushes, compactions and manifest commits. It is
	// acquired before mu when both are held.
	workMu sync.Mutex
	// compactCursor holds, per level, the largest key of the last table
	// compacted out of the level. Protected by workMu.
	compactCursor [][]byte

	mu struct {
		sync.Mutex
		// cond is signaled whenever a memtable is flushed, a background
		// error is recorded, or the DB is closed.
		cond      sync.Cond
		nextMemID uint64
		nextJobID int
		// bgErr is the error of the most recent failed flush or compaction.
		// It is cleared by Flush and by the next successful background job.
		bgErr   error
		stalled bool
		// stallStart is when the current write stall began.
		stallStart crtime.Mono
		metrics    Metrics
	}

	bg struct {
		workCh  chan struct{}
		closeCh chan struct{}
		wg      sync.WaitGroup
	}
}

func (d *DB) newJobIDLocked() int {
	d.mu.nextJobID++
	return d.mu.nextJobID
}

func (d *DB) newJobID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newJobIDLocked()
}

// Get gets the value for the given key. It returns ErrNotFound if the DB does
// not contain the key.
//
// The caller may modify the returned slice.
func (d *DB) Get(key []byte) ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	v, res, err := d.get(key)
	if err != nil {
		return nil, err
	}
	if res != base.Found {
		return nil, ErrNotFound
	}
	return append(make([]byte, 0, len(v)), v...), nil
}

func (d *DB) get(key []byte) ([]byte, base.SearchResult, error) {
	list := d.mem.Load()
	if v, res := list.mutable.get(key); res != base.NotFound {
		return v, res, nil
	}
	for i := len(list.queue) - 1; i >= 0; i-- {
		if v, res := list.queue[i].get(key); res != base.NotFound {
			return v, res, nil
		}
	}
	hash := base.Hash64(key)
	for _, l := range d.layers {
		v, res, err := l.get(key, hash)
		if err != nil || res != base.NotFound {
			return v, res, err
		}
	}
	return nil, base.NotFound, nil
}

// Set sets the value for the given key. It overwrites any previous value for
// that key; a DB is not a multi-map.
//
// It is safe to modify the contents of the arguments after Set returns.
func (d *DB) Set(key, value []byte) error {
	return d.apply(key, value, false /* isDelete */)
}

// Delete deletes the value for the given key. Deletes are blind and will
// succeed even if the given key does not exist.
//
// It is safe to modify the contents of the arguments after Delete returns.
func (d *DB) Delete(key []byte) error {
	return d.apply(key, nil, true /* isDelete */)
}

func (d *DB) apply(key, value []byte, isDelete bool) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if d.opts.ReadOnly {
		return ErrReadOnly
	}
	if !slotblk.Fits(len(key), len(value), isDelete) {
		return base.EntryTooLargeErrorf(
			"trimdb: entry with %d byte key and %d byte value exceeds the maximum entry size of %d bytes",
			len(key), len(value), MaxEntrySize)
	}

	for {
		m := d.mem.Load().mutable
		if !m.writerRef() {
			// The memtable was frozen after we loaded it. The list has
			// already been replaced.
			continue
		}
		var ok bool
		if isDelete {
			ok = m.delete(key)
		} else {
			ok = m.set(key, value)
		}
		m.writerUnref()
		if ok {
			return nil
		}
		if err := d.makeRoomForWrite(m); err != nil {
			return err
		}
	}
}

// makeRoomForWrite rotates the full memtable m, stalling while too many
// memtables are awaiting flush. It returns immediately if m has already been
// rotated by a concurrent writer.
func (d *DB) makeRoomForWrite(m *memTable) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if d.closed.Load() {
			return ErrClosed
		}
		list := d.mem.Load()
		if list.mutable != m {
			return nil
		}
		if len(list.queue) < d.opts.MemTableStopWritesThreshold {
			d.maybeEndWriteStallLocked()
			d.rotateMemTableLocked("memtable full")
			return nil
		}
		if d.mu.bgErr != nil {
			return d.mu.bgErr
		}
		if !d.mu.stalled {
			d.mu.stalled = true
			d.mu.stallStart = crtime.NowMono()
			d.mu.metrics.WriteStall.Count++
			d.opts.EventListener.WriteStallBegin(WriteStallBeginInfo{
				Reason: "memtable count limit reached",
			})
		}
		d.mu.cond.Wait()
	}
}

func (d *DB) maybeEndWriteStallLocked() {
	if !d.mu.stalled {
		return
	}
	d.mu.stalled = false
	dur := d.mu.stallStart.Elapsed()
	d.mu.metrics.WriteStall.Duration += dur
	d.prom.writeStallLatency.Observe(dur.Seconds())
	d.opts.EventListener.WriteStallEnd()
}

// rotateMemTableLocked installs a fresh mutable memtable and queues the
// current one for flushing. d.mu must be held.
func (d *DB) rotateMemTableLocked(reason string) *memTable {
	list := d.mem.Load()
	old := list.mutable
	old.rotateReason = reason
	d.mu.nextMemID++
	next := newMemTable(d.opts.MemTableSize, d.mu.nextMemID)
	queue := make([]*memTable, 0, len(list.queue)+1)
	queue = append(append(queue, list.queue...), old)
	d.mem.Store(&memTableList{mutable: next, queue: queue})
	// Writers that loaded the old list before the store observe the freeze
	// and retry against next.
	old.freeze()
	d.maybeScheduleWork()
	return old
}

// NewIter returns an iterator that is unpositioned (Iterator.Valid() will
// return false). The iterator can be positioned via a call to SeekGE or
// First.
func (d *DB) NewIter(o *IterOptions) (*Iterator, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	return d.newIter(o), nil
}

// Flush flushes the mutable memtable, and every memtable queued before it,
// to L0. Flush clears a sticky background error, giving a failed flush
// another chance.
func (d *DB) Flush() error {
	if d.closed.Load() {
		return ErrClosed
	}
	if d.opts.ReadOnly {
		return ErrReadOnly
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mu.bgErr = nil
	list := d.mem.Load()
	var target *memTable
	switch {
	case !list.mutable.empty():
		target = d.rotateMemTableLocked("manual")
	case len(list.queue) > 0:
		target = list.queue[len(list.queue)-1]
		d.maybeScheduleWork()
	default:
		return nil
	}
	for {
		select {
		case <-target.flushed:
			return nil
		default:
		}
		if d.mu.bgErr != nil {
			return d.mu.bgErr
		}
		if d.closed.Load() {
			return ErrClosed
		}
		d.mu.cond.Wait()
	}
}

// Compact flushes the memtables and then compacts the LSM until L0 is empty
// and every sorted level is within its file count limit.
func (d *DB) Compact() error {
	if err := d.Flush(); err != nil {
		return err
	}
	d.workMu.Lock()
	defer d.workMu.Unlock()
	for {
		if d.closed.Load() {
			return ErrClosed
		}
		c := d.pickCompaction(true /* manual */)
		if c == nil {
			return nil
		}
		if err := d.runCompaction(c); err != nil {
			return err
		}
	}
}

// Metrics returns metrics about the database.
func (d *DB) Metrics() *Metrics {
	m := &Metrics{}
	d.mu.Lock()
	*m = d.mu.metrics
	m.Levels = slices.Clone(d.mu.metrics.Levels)
	d.mu.Unlock()

	list := d.mem.Load()
	m.MemTable.Count = int64(1 + len(list.queue))
	m.MemTable.Size = d.opts.MemTableSize * uint64(m.MemTable.Count)
	m.Table.OpenCount = d.tableCache.openTables.Load()
	m.BlockCache = d.cache.Metrics()
	for level, l := range d.layers {
		lm := &m.Levels[level]
		lm.NumFiles = int64(l.numFiles())
		lm.Size = l.size()
		lm.Score = d.levelScore(level, int(lm.NumFiles))
	}
	return m
}

// SSTables retrieves the current tables, grouped by level. The returned
// slice is indexed by level.
func (d *DB) SSTables() ([][]TableInfo, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	v := d.currentVersion()
	levels := make([][]TableInfo, len(v.Levels))
	for level, tables := range v.Levels {
		levels[level] = tableInfos(tables)
	}
	return levels, nil
}

// Collectors returns the prometheus collectors exporting the DB's flush,
// compaction and write stall latencies and throughput. The caller registers
// them with a registry of its choosing.
func (d *DB) Collectors() []prometheus.Collector {
	return d.prom.collectors()
}

// Close closes the DB. The contents of the memtables are flushed to L0
// before the tables are closed.
//
// It is not safe to close a DB until all outstanding iterators are closed.
// It is valid to call Close multiple times. Other methods should not be
// called after the DB has been closed.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return ErrClosed
	}
	if !d.opts.ReadOnly && !d.mem.Load().mutable.empty() {
		d.rotateMemTableLocked("close")
	}
	d.closed.Store(true)
	d.mu.cond.Broadcast()
	d.mu.Unlock()

	// Stop the background worker. It finishes the job at hand before
	// exiting.
	close(d.bg.closeCh)
	d.bg.wg.Wait()

	var err error
	if !d.opts.ReadOnly {
		d.workMu.Lock()
		for {
			flushed, ferr := d.flush1()
			if ferr != nil {
				err = errors.Wrap(ferr, "trimdb: flushing on close")
				break
			}
			if !flushed {
				break
			}
		}
		d.workMu.Unlock()
	}

	for _, l := range d.layers {
		lt := l.load()
		l.tables.Store(&layerTables{})
		lt.unref()
	}
	if n := d.tableCache.openTables.Load(); n != 0 && err == nil {
		err = errors.Errorf("trimdb: leaked table readers: %d", n)
	}
	if d.fileLock != nil {
		err = errors.CombineErrors(err, d.fileLock.Close())
	}
	d.cache.Unref()
	return err
}
