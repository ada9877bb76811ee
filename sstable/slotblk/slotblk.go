// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package slotblk defines the slotted page format used for sstable data
// blocks.
//
// A block is a fixed PageSize buffer laid out as:
//
//	+--------+---------------------+------------+------------------------+
//	| header | slot 0 ... slot n-1 | free space | record n-1 ... record 0 |
//	+--------+---------------------+------------+------------------------+
//
// The header holds the item count and the offset at which the data region
// starts (both uint16). The slot directory grows forward from the header and
// is ordered by key. Each slot holds the offset of its record (uint16) and a
// 16-bit tag taken from the key's hash. Records are packed backwards from the
// end of the page and consist of the key length (uint16), the value length
// (uint16, 0xFFFF for a tombstone), the key bytes and, for live entries, the
// value bytes. All integers are little-endian.
//
// Because every slot is fixed-size and ordered, a key can be located by
// binary search over the directory without decoding any other record.
package slotblk

import (
	"encoding/binary"

	"github.com/trimdb/trimdb/internal/base"
)

const (
	// PageSize is the size of every block.
	PageSize = 4096

	headerSize       = 4
	slotSize         = 4
	recordHeaderSize = 4

	// TombstoneValueLen is the value length recorded for a tombstone. No
	// value bytes follow the key of a tombstone record.
	TombstoneValueLen = 0xFFFF

	// MaxEntrySize is the largest key+value payload that fits in an empty
	// block. Larger entries can never be written.
	MaxEntrySize = PageSize - headerSize - slotSize - recordHeaderSize
)

// EncodedSize returns the number of bytes an entry consumes in a block,
// including its slot.
func EncodedSize(keyLen, valueLen int, isDeleted bool) int {
	n := slotSize + recordHeaderSize + keyLen
	if !isDeleted {
		n += valueLen
	}
	return n
}

// Fits reports whether an entry can be stored in an empty block.
func Fits(keyLen, valueLen int, isDeleted bool) bool {
	if isDeleted {
		valueLen = 0
	}
	return keyLen+valueLen <= MaxEntrySize && valueLen < TombstoneValueLen
}

// KeyTag returns the 16-bit tag stored in a key's slot.
func KeyTag(key []byte) uint16 {
	return uint16(base.Hash64(key))
}

// FindResult is the outcome of looking up a key in a single block.
type FindResult int8

const (
	// NotFound means the key lies within the block's key range but is absent.
	NotFound FindResult = iota
	// Found means the key is present in the block.
	Found
	// Before means the key sorts before the block's first key.
	Before
	// After means the key sorts after the block's last key.
	After
)

// String implements fmt.Stringer.
func (r FindResult) String() string {
	switch r {
	case NotFound:
		return "not-found"
	case Found:
		return "found"
	case Before:
		return "before"
	case After:
		return "after"
	}
	return "unknown"
}

func putUint16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:], v)
}

func getUint16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}
