// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"fmt"
	"sort"

	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/internal/manifest"
	"github.com/trimdb/trimdb/sstable"
)

// levelIter provides a merged view of the tables in a sorted level. Since the
// tables hold disjoint key ranges and are ordered by key, the merged view is
// the concatenation of the tables. At most one table iterator is open at a
// time.
//
// The levelIter does not reference the tables; the caller must hold a
// reference on every table for the lifetime of the iterator.
type levelIter struct {
	level  int
	tables []*tableHandle
	metas  []*manifest.TableMetadata
	// index is the position of the current table in tables.
	index int
	iter  *sstable.Iter
	err   error
}

// levelIter implements the base.InternalIterator interface.
var _ base.InternalIterator = (*levelIter)(nil)

func newLevelIter(level int, lt *layerTables) *levelIter {
	return &levelIter{
		level:  level,
		tables: lt.handles,
		metas:  lt.metas,
		index:  -1,
	}
}

// loadTable closes the current table iterator and opens the iterator for the
// table at index i. It returns false if i is past the last table.
func (l *levelIter) loadTable(i int) bool {
	if l.iter != nil {
		if err := l.iter.Close(); err != nil && l.err == nil {
			l.err = err
		}
		l.iter = nil
	}
	l.index = i
	if l.err != nil || i < 0 || i >= len(l.tables) {
		return false
	}
	l.iter = l.tables[i].newIter()
	return true
}

// skipEmptyTables moves forward past exhausted tables, returning the first
// record of the next non-empty table.
func (l *levelIter) skipEmptyTables(kv *base.InternalKV) *base.InternalKV {
	for kv == nil {
		if err := l.iter.Error(); err != nil {
			l.err = err
			return nil
		}
		if !l.loadTable(l.index + 1) {
			return nil
		}
		kv = l.iter.First()
	}
	return kv
}

// First implements base.InternalIterator.First.
func (l *levelIter) First() *base.InternalKV {
	l.err = nil
	if !l.loadTable(0) {
		return nil
	}
	return l.skipEmptyTables(l.iter.First())
}

// SeekGE implements base.InternalIterator.SeekGE.
func (l *levelIter) SeekGE(key []byte) *base.InternalKV {
	l.err = nil
	// Find the first table whose largest key is >= key.
	i := sort.Search(len(l.metas), func(i int) bool {
		return base.Compare(l.metas[i].Largest, key) >= 0
	})
	if !l.loadTable(i) {
		return nil
	}
	return l.skipEmptyTables(l.iter.SeekGE(key))
}

// Next implements base.InternalIterator.Next.
func (l *levelIter) Next() *base.InternalKV {
	if l.err != nil {
		return nil
	}
	if l.iter == nil {
		if l.index >= 0 {
			return nil
		}
		return l.First()
	}
	return l.skipEmptyTables(l.iter.Next())
}

// Error implements base.InternalIterator.Error.
func (l *levelIter) Error() error {
	return l.err
}

// Close implements base.InternalIterator.Close.
func (l *levelIter) Close() error {
	if l.iter != nil {
		if err := l.iter.Close(); err != nil && l.err == nil {
			l.err = err
		}
		l.iter = nil
	}
	return l.err
}

func (l *levelIter) String() string {
	if l.iter != nil && l.index < len(l.tables) {
		return fmt.Sprintf("L%d: fileNum=%s", l.level, l.tables[l.index].meta.FileNum)
	}
	return fmt.Sprintf("L%d", l.level)
}
