// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package slotblk

import (
	"bytes"
	"sort"

	"github.com/trimdb/trimdb/internal/base"
)

// View is a borrowing, read-only view of an encoded block. It is a small
// value that aliases the page; it must not outlive the caller's hold on the
// page (e.g. a block cache entry) and is meant for synchronous point
// lookups. Use Reader for iteration.
type View struct {
	data      []byte
	nEntries  int
	dataStart int
}

// MakeView decodes the header of an encoded page. It returns a corruption
// error if the header is inconsistent with the page size.
func MakeView(page []byte) (View, error) {
	if len(page) != PageSize {
		return View{}, base.CorruptionErrorf("slotblk: block is %d bytes, expected %d", len(page), PageSize)
	}
	v := View{
		data:      page,
		nEntries:  int(getUint16(page, 0)),
		dataStart: int(getUint16(page, 2)),
	}
	if dirEnd := headerSize + v.nEntries*slotSize; dirEnd > v.dataStart || v.dataStart > PageSize {
		return View{}, base.CorruptionErrorf("slotblk: invalid header (items=%d, data-start=%d)",
			v.nEntries, v.dataStart)
	}
	return v, nil
}

// Count returns the number of entries in the block.
func (v View) Count() int {
	return v.nEntries
}

// DataStart returns the offset of the data region.
func (v View) DataStart() int {
	return v.dataStart
}

// FreeSpace returns the number of unused bytes between the slot directory
// and the data region.
func (v View) FreeSpace() int {
	return v.dataStart - headerSize - v.nEntries*slotSize
}

// Tag returns the key-hash tag stored in slot i.
func (v View) Tag(i int) uint16 {
	return getUint16(v.data, headerSize+i*slotSize+2)
}

func (v View) recordOffset(i int) int {
	return int(getUint16(v.data, headerSize+i*slotSize))
}

// Key returns the key of entry i.
func (v View) Key(i int) []byte {
	off := v.recordOffset(i)
	keyLen := int(getUint16(v.data, off))
	start := off + recordHeaderSize
	return v.data[start : start+keyLen : start+keyLen]
}

// Entry decodes entry i. The deleted flag is derived from the record's own
// value length; nothing is carried over from neighbouring records.
func (v View) Entry(i int) (key, value []byte, isDeleted bool) {
	off := v.recordOffset(i)
	keyLen := int(getUint16(v.data, off))
	valueLen := int(getUint16(v.data, off+2))
	start := off + recordHeaderSize
	key = v.data[start : start+keyLen : start+keyLen]
	if valueLen == TombstoneValueLen {
		return key, nil, true
	}
	start += keyLen
	return key, v.data[start : start+valueLen : start+valueLen], false
}

// FirstKey returns the smallest key in the block, or nil if it is empty.
func (v View) FirstKey() []byte {
	if v.nEntries == 0 {
		return nil
	}
	return v.Key(0)
}

// LastKey returns the largest key in the block, or nil if it is empty.
func (v View) LastKey() []byte {
	if v.nEntries == 0 {
		return nil
	}
	return v.Key(v.nEntries - 1)
}

// SeekGE returns the index of the first entry whose key is greater than or
// equal to key, or Count() if there is none.
func (v View) SeekGE(key []byte) int {
	return sort.Search(v.nEntries, func(i int) bool {
		return base.Compare(v.Key(i), key) >= 0
	})
}

// FindKey searches the slot directory for key. Before and After report that
// the key lies outside the block's range, letting callers skip adjacent
// blocks; NotFound means it would lie within this block but is absent. The
// returned index is only meaningful for Found.
func (v View) FindKey(key []byte) (int, FindResult) {
	if v.nEntries == 0 {
		return 0, NotFound
	}
	if base.Compare(key, v.Key(0)) < 0 {
		return 0, Before
	}
	if base.Compare(key, v.Key(v.nEntries-1)) > 0 {
		return v.nEntries, After
	}
	i := v.SeekGE(key)
	if i < v.nEntries && bytes.Equal(v.Key(i), key) {
		return i, Found
	}
	return i, NotFound
}

// Validate decodes every slot and record and checks the block's structural
// invariants: records lie inside the data region, keys are strictly
// increasing and slot tags match their keys.
func (v View) Validate() error {
	var prev []byte
	for i := 0; i < v.nEntries; i++ {
		off := v.recordOffset(i)
		if off < v.dataStart || off+recordHeaderSize > PageSize {
			return base.CorruptionErrorf("slotblk: slot %d points outside the data region (offset %d)", i, off)
		}
		keyLen := int(getUint16(v.data, off))
		valueLen := int(getUint16(v.data, off+2))
		if valueLen == TombstoneValueLen {
			valueLen = 0
		}
		if end := off + recordHeaderSize + keyLen + valueLen; end > PageSize {
			return base.CorruptionErrorf("slotblk: record %d at offset %d overruns the block", i, off)
		}
		key := v.Key(i)
		if i > 0 && base.Compare(prev, key) >= 0 {
			return base.CorruptionErrorf("slotblk: keys out of order at slot %d", i)
		}
		if v.Tag(i) != KeyTag(key) {
			return base.CorruptionErrorf("slotblk: tag mismatch at slot %d", i)
		}
		prev = key
	}
	return nil
}

// Reader is an owning, sequential reader over an encoded block. It holds on
// to the page for as long as it is in use, so it may be kept across calls
// that release other resources. The page must not be modified.
type Reader struct {
	view View
	pos  int
	kv   base.InternalKV
}

// Reader implements the base.InternalIterator interface.
var _ base.InternalIterator = (*Reader)(nil)

// NewReader returns a Reader over page. The reader is positioned before the
// first entry.
func NewReader(page []byte) (*Reader, error) {
	r := &Reader{}
	if err := r.Init(page); err != nil {
		return nil, err
	}
	return r, nil
}

// Init initializes the reader over page, positioning it before the first
// entry.
func (r *Reader) Init(page []byte) error {
	v, err := MakeView(page)
	if err != nil {
		return err
	}
	*r = Reader{view: v, pos: -1}
	return nil
}

// View returns the borrowed view the reader decodes through.
func (r *Reader) View() View {
	return r.view
}

func (r *Reader) String() string {
	return "slotblk"
}

func (r *Reader) at(i int) *base.InternalKV {
	r.pos = i
	if i < 0 || i >= r.view.nEntries {
		r.kv = base.InternalKV{}
		return nil
	}
	r.kv.K, r.kv.V, r.kv.Deleted = r.view.Entry(i)
	return &r.kv
}

// First positions the reader at the first entry.
func (r *Reader) First() *base.InternalKV {
	return r.at(0)
}

// SeekGE positions the reader at the first entry whose key is greater than
// or equal to key.
func (r *Reader) SeekGE(key []byte) *base.InternalKV {
	return r.at(r.view.SeekGE(key))
}

// Next advances the sequential cursor. On a freshly initialized reader it
// returns the first entry.
func (r *Reader) Next() *base.InternalKV {
	if r.pos >= r.view.nEntries {
		return nil
	}
	return r.at(r.pos + 1)
}

// FindKey positions the reader at key if it is present and reports where
// the key lies relative to the block.
func (r *Reader) FindKey(key []byte) FindResult {
	i, res := r.view.FindKey(key)
	if res == Found {
		r.at(i)
	}
	return res
}

// KV returns the entry at the current position, or nil.
func (r *Reader) KV() *base.InternalKV {
	if r.pos < 0 || r.pos >= r.view.nEntries {
		return nil
	}
	return &r.kv
}

// Error implements base.InternalIterator.
func (r *Reader) Error() error { return nil }

// Close releases the page.
func (r *Reader) Close() error {
	*r = Reader{}
	return nil
}
