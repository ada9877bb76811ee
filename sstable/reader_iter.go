// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package sstable

import (
	"fmt"

	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/sstable/slotblk"
)

// Iter is a forward iterator over a table's entries, tombstones included.
type Iter struct {
	r        *Reader
	blockIdx int
	blk      slotblk.Reader
	err      error
}

// Iter implements the base.InternalIterator interface.
var _ base.InternalIterator = (*Iter)(nil)

// NewIter returns an iterator positioned before the first entry. The
// iterator must not outlive the reader.
func (r *Reader) NewIter() *Iter {
	return &Iter{r: r, blockIdx: -1}
}

func (i *Iter) String() string {
	return fmt.Sprintf("sstable(%s)", i.r.opts.Filename)
}

// loadBlock positions the block reader on block idx, before its first
// entry.
func (i *Iter) loadBlock(idx int) bool {
	i.blockIdx = idx
	if idx >= len(i.r.index) {
		i.blk = slotblk.Reader{}
		return false
	}
	page, err := i.r.readBlock(idx)
	if err == nil {
		err = i.blk.Init(page)
	}
	if err != nil {
		i.err = err
		i.blockIdx = len(i.r.index)
		return false
	}
	return true
}

// skipForward moves to the first entry of the next non-empty block.
func (i *Iter) skipForward() *base.InternalKV {
	for i.loadBlock(i.blockIdx + 1) {
		if kv := i.blk.First(); kv != nil {
			return kv
		}
	}
	return nil
}

// First implements base.InternalIterator.
func (i *Iter) First() *base.InternalKV {
	i.err = nil
	i.blockIdx = -1
	return i.skipForward()
}

// SeekGE implements base.InternalIterator.
func (i *Iter) SeekGE(key []byte) *base.InternalKV {
	i.err = nil
	idx := i.r.findBlock(key)
	if idx < 0 {
		idx = 0
	}
	if !i.loadBlock(idx) {
		return nil
	}
	if kv := i.blk.SeekGE(key); kv != nil {
		return kv
	}
	return i.skipForward()
}

// Next implements base.InternalIterator. On an unpositioned iterator it
// behaves like First.
func (i *Iter) Next() *base.InternalKV {
	if i.blockIdx < 0 {
		return i.First()
	}
	if i.blockIdx >= len(i.r.index) {
		return nil
	}
	if kv := i.blk.Next(); kv != nil {
		return kv
	}
	return i.skipForward()
}

// Error implements base.InternalIterator.
func (i *Iter) Error() error {
	return i.err
}

// Close implements base.InternalIterator.
func (i *Iter) Close() error {
	err := i.err
	*i = Iter{}
	return err
}
