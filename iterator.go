// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"github.com/trimdb/trimdb/internal/base"
)

// Iterator iterates over a DB's key/value pairs in key order.
//
// An iterator must be closed after use, but it is not necessary to read an
// iterator until exhaustion.
//
// An iterator is not goroutine-safe, but it is safe to use multiple
// iterators concurrently, with each in a dedicated goroutine.
//
// It is also safe to use an iterator concurrently with modifying its
// underlying DB. Such modifications may or may not be observed by the
// iterator. The tables the iterator reads are pinned until it is closed:
// compactions that supersede them do not remove their files before then.
type Iterator struct {
	iter   base.InternalIterator
	tables []*layerTables
	lower  []byte
	upper  []byte
	kv     *base.InternalKV
	err    error
	closed bool
}

// newIter builds the merged view of the memtables and every layer. The
// memtables are consulted newest first, then the L0 tables newest first,
// then the sorted levels from shallow to deep, matching the recency order
// used by Get.
func (d *DB) newIter(o *IterOptions) *Iterator {
	it := &Iterator{
		lower: o.GetLowerBound(),
		upper: o.GetUpperBound(),
	}
	var iters []base.InternalIterator
	list := d.mem.Load()
	iters = append(iters, list.mutable.newIter())
	for i := len(list.queue) - 1; i >= 0; i-- {
		iters = append(iters, list.queue[i].newIter())
	}
	for level, l := range d.layers {
		lt := l.acquire()
		it.tables = append(it.tables, lt)
		if !l.sorted {
			for i := len(lt.handles) - 1; i >= 0; i-- {
				iters = append(iters, lt.handles[i].newIter())
			}
			continue
		}
		if len(lt.handles) > 0 {
			iters = append(iters, newLevelIter(level, lt))
		}
	}
	it.iter = newMergingIter(iters...)
	return it
}

// findNextEntry skips tombstones and enforces the upper bound.
func (i *Iterator) findNextEntry(kv *base.InternalKV) {
	for ; kv != nil; kv = i.iter.Next() {
		if i.upper != nil && base.Compare(kv.K, i.upper) >= 0 {
			kv = nil
			break
		}
		if !kv.Deleted {
			break
		}
	}
	i.kv = kv
	if kv == nil {
		i.err = i.iter.Error()
	}
}

// SeekGE moves the iterator to the first key/value pair whose key is greater
// than or equal to the given key. Returns true if the iterator is pointing
// at a valid entry and false otherwise.
func (i *Iterator) SeekGE(key []byte) bool {
	if i.err != nil {
		return false
	}
	if i.lower != nil && base.Compare(key, i.lower) < 0 {
		key = i.lower
	}
	i.findNextEntry(i.iter.SeekGE(key))
	return i.Valid()
}

// First moves the iterator the first key/value pair. Returns true if the
// iterator is pointing at a valid entry and false otherwise.
func (i *Iterator) First() bool {
	if i.err != nil {
		return false
	}
	if i.lower != nil {
		i.findNextEntry(i.iter.SeekGE(i.lower))
	} else {
		i.findNextEntry(i.iter.First())
	}
	return i.Valid()
}

// Next moves the iterator to the next key/value pair. Returns true if the
// iterator is pointing at a valid entry and false otherwise.
func (i *Iterator) Next() bool {
	if i.err != nil || i.kv == nil {
		return false
	}
	i.findNextEntry(i.iter.Next())
	return i.Valid()
}

// Key returns the key of the current key/value pair, or nil if done. The
// caller should not modify the contents of the returned slice, and its
// contents may change on the next call to Next.
func (i *Iterator) Key() []byte {
	if i.kv == nil {
		return nil
	}
	return i.kv.K
}

// Value returns the value of the current key/value pair, or nil if done. The
// caller should not modify the contents of the returned slice, and its
// contents may change on the next call to Next.
func (i *Iterator) Value() []byte {
	if i.kv == nil {
		return nil
	}
	return i.kv.V
}

// Valid returns true if the iterator is positioned at a valid key/value pair
// and false otherwise.
func (i *Iterator) Valid() bool {
	return i.kv != nil && i.err == nil
}

// Error returns any accumulated error.
func (i *Iterator) Error() error {
	return i.err
}

// Close closes the iterator and returns any accumulated error. Exhausting
// all the key/value pairs in a table is not considered to be an error. It is
// not valid to call any method, including Close, after the iterator has been
// closed.
func (i *Iterator) Close() error {
	if i.closed {
		return ErrClosed
	}
	i.closed = true
	err := i.iter.Close()
	if i.err == nil {
		i.err = err
	}
	for _, lt := range i.tables {
		lt.unref()
	}
	i.tables = nil
	i.kv = nil
	return i.err
}
