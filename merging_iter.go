// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/internal/base"
)

type mergingIterLevel struct {
	// index is the position of the level in the merging iterator. Lower
	// indexes hold newer data.
	index int
	iter  base.InternalIterator
	// iterKV caches the current key-value pair of iter. It is nil once iter
	// is exhausted.
	iterKV *base.InternalKV
}

// mergingIter provides a merged view of multiple iterators from different
// levels of the LSM.
//
// The levels are ordered by recency: index 0 is the newest. Each level is
// sorted and holds at most one record per key, but the same key may appear
// in several levels. The merged view holds each key exactly once, and the
// record surfaced for a key is the one from the newest level holding it.
// Tombstones are surfaced too: a tombstone in a newer level shadows a live
// value for the same key in an older level, and it is up to the caller to
// hide it (see Iterator) or to carry it into the output of a compaction.
//
// The implementation maintains a min-heap of the levels ordered by their
// current key, ties broken by index. The top of the heap is the current
// record. Advancing the iterator skips the current key in every level
// positioned at it; a level that is exhausted is removed from the heap.
type mergingIter struct {
	levels []mergingIterLevel
	heap   mergingIterHeap
	err    error
	// keyBuf holds a copy of the current key while the levels positioned at
	// it are advanced, since advancing may invalidate the key's memory.
	keyBuf []byte
}

// mergingIter implements the base.InternalIterator interface.
var _ base.InternalIterator = (*mergingIter)(nil)

// newMergingIter returns an iterator that merges its input. Walking the
// resultant iterator will return all key/value pairs of all input iterators
// in strictly increasing key order, one record per key, where the record for
// a key comes from the lowest indexed (newest) input holding it.
//
// None of the iters may be nil.
func newMergingIter(iters ...base.InternalIterator) *mergingIter {
	m := &mergingIter{}
	m.levels = make([]mergingIterLevel, len(iters))
	for i := range iters {
		m.levels[i] = mergingIterLevel{index: i, iter: iters[i]}
	}
	m.heap.items = make([]*mergingIterLevel, 0, len(iters))
	return m
}

func (m *mergingIter) initHeap() {
	m.heap.clear()
	for i := range m.levels {
		if l := &m.levels[i]; l.iterKV != nil {
			m.heap.items = append(m.heap.items, l)
		}
	}
	m.heap.init()
}

// checkLevels records the error of the first level whose iterator failed.
func (m *mergingIter) checkLevels() bool {
	for i := range m.levels {
		l := &m.levels[i]
		if l.iterKV == nil {
			if err := l.iter.Error(); err != nil {
				m.err = err
				return false
			}
		}
	}
	return true
}

func (m *mergingIter) current() *base.InternalKV {
	if m.err != nil || m.heap.len() == 0 {
		return nil
	}
	return m.heap.top().iterKV
}

// First implements base.InternalIterator.First.
func (m *mergingIter) First() *base.InternalKV {
	m.err = nil
	for i := range m.levels {
		l := &m.levels[i]
		l.iterKV = l.iter.First()
	}
	if !m.checkLevels() {
		return nil
	}
	m.initHeap()
	return m.current()
}

// SeekGE implements base.InternalIterator.SeekGE.
func (m *mergingIter) SeekGE(key []byte) *base.InternalKV {
	m.err = nil
	for i := range m.levels {
		l := &m.levels[i]
		l.iterKV = l.iter.SeekGE(key)
	}
	if !m.checkLevels() {
		return nil
	}
	m.initHeap()
	return m.current()
}

// Next implements base.InternalIterator.Next. Every level positioned at the
// current key is advanced past it, so that older versions of the key are
// discarded.
func (m *mergingIter) Next() *base.InternalKV {
	if m.err != nil || m.heap.len() == 0 {
		return nil
	}
	m.keyBuf = append(m.keyBuf[:0], m.heap.top().iterKV.K...)
	for m.heap.len() > 0 {
		l := m.heap.top()
		if base.Compare(l.iterKV.K, m.keyBuf) != 0 {
			break
		}
		l.iterKV = l.iter.Next()
		if l.iterKV == nil {
			if err := l.iter.Error(); err != nil {
				m.err = err
				return nil
			}
			m.heap.pop()
			continue
		}
		if base.Compare(l.iterKV.K, m.keyBuf) <= 0 {
			m.err = errors.AssertionFailedf("trimdb: %s yielded %q after %q",
				l.iter, l.iterKV.K, m.keyBuf)
			return nil
		}
		m.heap.fixTop()
	}
	return m.current()
}

// Error implements base.InternalIterator.Error.
func (m *mergingIter) Error() error {
	return m.err
}

// Close implements base.InternalIterator.Close. It closes every input
// iterator and returns the first error encountered.
func (m *mergingIter) Close() error {
	err := m.err
	for i := range m.levels {
		if e := m.levels[i].iter.Close(); err == nil {
			err = e
		}
	}
	m.levels = nil
	m.heap.items = nil
	return err
}

func (m *mergingIter) String() string {
	var buf strings.Builder
	buf.WriteString("merging(")
	for i := range m.levels {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s", m.levels[i].iter)
	}
	buf.WriteString(")")
	return buf.String()
}
