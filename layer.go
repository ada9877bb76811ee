// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"slices"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/internal/manifest"
)

// layerTables is an immutable snapshot of a layer's tables. Unsorted layers
// order their tables oldest first; sorted layers order them by key.
type layerTables struct {
	handles []*tableHandle
	metas   []*manifest.TableMetadata
}

func makeLayerTables(handles []*tableHandle, sorted bool) *layerTables {
	lt := &layerTables{handles: handles}
	if sorted {
		slices.SortFunc(lt.handles, func(a, b *tableHandle) int {
			return base.Compare(a.meta.Smallest, b.meta.Smallest)
		})
	} else {
		slices.SortFunc(lt.handles, func(a, b *tableHandle) int {
			switch {
			case a.meta.FileNum < b.meta.FileNum:
				return -1
			case a.meta.FileNum > b.meta.FileNum:
				return +1
			}
			return 0
		})
	}
	lt.metas = make([]*manifest.TableMetadata, len(lt.handles))
	for i, t := range lt.handles {
		lt.metas[i] = t.meta
	}
	return lt
}

// unref releases the references taken by layer.acquire.
func (lt *layerTables) unref() {
	for _, t := range lt.handles {
		t.unref()
	}
}

// A layer is one level of the LSM. L0 is unsorted: its tables may overlap
// and are searched newest first. Every deeper level is sorted: its tables
// hold disjoint key ranges and a lookup consults at most one of them.
//
// The table array is replaced wholesale on every mutation. Readers load it
// without locking; writers build a new array and install it with
// compare-and-swap, retrying if another mutation won the race.
type layer struct {
	level  int
	sorted bool
	opts   LevelOptions
	tables atomic.Pointer[layerTables]
	// fileNum is the last file number handed out for the level.
	fileNum atomic.Uint64
}

func newLayer(level int, opts LevelOptions, handles []*tableHandle) *layer {
	l := &layer{
		level:  level,
		sorted: level > 0,
		opts:   opts,
	}
	l.tables.Store(makeLayerTables(slices.Clone(handles), l.sorted))
	for _, t := range handles {
		l.markFileNumUsed(t.meta.FileNum)
	}
	return l
}

// load returns the current table array. The handles are not referenced; a
// caller that reads a table must reference it with tryRef.
func (l *layer) load() *layerTables {
	return l.tables.Load()
}

// acquire returns the current table array with a reference held on every
// table. The caller must call unref on the result.
func (l *layer) acquire() *layerTables {
	for {
		lt := l.tables.Load()
		n := 0
		for ; n < len(lt.handles); n++ {
			if !lt.handles[n].tryRef() {
				break
			}
		}
		if n == len(lt.handles) {
			return lt
		}
		// A table was released by a concurrent compaction. The array has
		// already been replaced; release what we took and reload.
		for _, t := range lt.handles[:n] {
			t.unref()
		}
	}
}

// nextFileNum returns a file number not used by any table of the level.
func (l *layer) nextFileNum() base.FileNum {
	return base.FileNum(l.fileNum.Add(1))
}

// markFileNumUsed ensures nextFileNum never returns fileNum or a smaller
// number.
func (l *layer) markFileNumUsed(fileNum base.FileNum) {
	for {
		cur := l.fileNum.Load()
		if cur >= uint64(fileNum) || l.fileNum.CompareAndSwap(cur, uint64(fileNum)) {
			return
		}
	}
}

// addTables installs new tables. The layer takes over the references held by
// the caller on the handles.
func (l *layer) addTables(add ...*tableHandle) error {
	return l.replaceTables(nil, add)
}

// removeTables removes tables from the layer. The references the layer held
// on them are transferred to the caller.
func (l *layer) removeTables(remove ...*tableHandle) error {
	return l.replaceTables(remove, nil)
}

// replaceTables atomically removes the tables in remove and installs the
// tables in add. For a sorted layer the resulting array must not contain
// overlapping tables, in which case the layer is left unchanged and an error
// is returned.
func (l *layer) replaceTables(remove, add []*tableHandle) error {
	for {
		old := l.tables.Load()
		handles := make([]*tableHandle, 0, len(old.handles)+len(add)-len(remove))
		for _, t := range old.handles {
			if !slices.Contains(remove, t) {
				handles = append(handles, t)
			}
		}
		if len(handles) != len(old.handles)-len(remove) {
			return errors.AssertionFailedf("trimdb: removing tables not present in L%d", l.level)
		}
		handles = append(handles, add...)
		lt := makeLayerTables(handles, l.sorted)
		if err := manifest.CheckOrdering(l.level, l.sorted, lt.metas); err != nil {
			return err
		}
		if l.tables.CompareAndSwap(old, lt) {
			for _, t := range add {
				l.markFileNumUsed(t.meta.FileNum)
			}
			return nil
		}
	}
}

// get looks up key. An unsorted layer searches its tables newest first and
// stops at the first table holding a record for the key. A sorted layer
// consults the one table whose range contains the key. hash is
// base.Hash64(key).
func (l *layer) get(key []byte, hash uint64) ([]byte, base.SearchResult, error) {
	for {
		lt := l.tables.Load()
		if l.sorted {
			i := manifest.FindTable(lt.metas, key)
			if i < 0 {
				return nil, base.NotFound, nil
			}
			t := lt.handles[i]
			if !t.tryRef() {
				continue
			}
			v, res, err := t.get(key, hash)
			t.unref()
			return v, res, err
		}

		retry := false
		for i := len(lt.handles) - 1; i >= 0; i-- {
			t := lt.handles[i]
			if !t.meta.ContainsKey(key) {
				continue
			}
			if !t.tryRef() {
				retry = true
				break
			}
			v, res, err := t.get(key, hash)
			t.unref()
			if err != nil || res != base.NotFound {
				return v, res, err
			}
		}
		if !retry {
			return nil, base.NotFound, nil
		}
	}
}

// numFiles returns the number of tables in the layer.
func (l *layer) numFiles() int {
	return len(l.tables.Load().handles)
}

// size returns the total size of the layer's tables.
func (l *layer) size() uint64 {
	return manifest.TotalSize(l.tables.Load().metas)
}
