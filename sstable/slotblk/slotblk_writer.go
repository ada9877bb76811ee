// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package slotblk

// Writer builds a single slotted block. Entries must be added in strictly
// increasing key order; the writer does not sort.
type Writer struct {
	buf       []byte
	nEntries  int
	dataStart int
}

// NewWriter returns a Writer backed by a fresh page.
func NewWriter() *Writer {
	w := &Writer{}
	w.Init(make([]byte, PageSize))
	return w
}

// Init resets the writer to build a new block into buf, which must be
// PageSize bytes long.
func (w *Writer) Init(buf []byte) {
	if len(buf) != PageSize {
		panic("slotblk: buffer is not one page")
	}
	*w = Writer{buf: buf, dataStart: PageSize}
}

// Reset discards the entries added so far, keeping the buffer.
func (w *Writer) Reset() {
	w.nEntries = 0
	w.dataStart = PageSize
}

// EntryCount returns the number of entries added.
func (w *Writer) EntryCount() int {
	return w.nEntries
}

// Empty returns true if no entries have been added.
func (w *Writer) Empty() bool {
	return w.nEntries == 0
}

// FreeSpace returns the number of bytes between the end of the slot
// directory and the start of the data region.
func (w *Writer) FreeSpace() int {
	return w.dataStart - (headerSize + w.nEntries*slotSize)
}

// TryAdd appends an entry. It returns false, leaving the block unchanged,
// if the remaining free space cannot hold the entry's slot and record.
func (w *Writer) TryAdd(key, value []byte, isDeleted bool) bool {
	if isDeleted {
		value = nil
	}
	if len(key) >= TombstoneValueLen || len(value) >= TombstoneValueLen {
		return false
	}
	need := EncodedSize(len(key), len(value), isDeleted)
	if need > w.FreeSpace() {
		return false
	}

	recLen := recordHeaderSize + len(key) + len(value)
	off := w.dataStart - recLen
	putUint16(w.buf, off, uint16(len(key)))
	if isDeleted {
		putUint16(w.buf, off+2, TombstoneValueLen)
	} else {
		putUint16(w.buf, off+2, uint16(len(value)))
	}
	copy(w.buf[off+recordHeaderSize:], key)
	copy(w.buf[off+recordHeaderSize+len(key):], value)

	slot := headerSize + w.nEntries*slotSize
	putUint16(w.buf, slot, uint16(off))
	putUint16(w.buf, slot+2, KeyTag(key))

	w.dataStart = off
	w.nEntries++
	return true
}

// Finish writes the header, zero-fills the free space and returns the
// encoded page. The returned slice aliases the writer's buffer and is valid
// until the next call to Init or Reset followed by TryAdd.
func (w *Writer) Finish() []byte {
	putUint16(w.buf, 0, uint16(w.nEntries))
	putUint16(w.buf, 2, uint16(w.dataStart))
	clear(w.buf[headerSize+w.nEntries*slotSize : w.dataStart])
	return w.buf
}
