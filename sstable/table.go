// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

/*
Package sstable implements readers and writers of trimdb tables.

Tables are either opened for reading or created for writing but not both.

A reader can be used concurrently. Multiple goroutines can call Get and
NewIter concurrently, and each iterator can run concurrently with other
iterators. However, any particular iterator should not be used concurrently,
and iterators should not be used once a reader is closed.

A writer writes entries in strictly increasing key order, and cannot be used
concurrently. A table cannot be read until the writer has finished.

To write a table with three entries:

	w := sstable.NewWriter(file, sstable.WriterOptions{})
	for _, kv := range []base.InternalKV{
		base.MakeKV([]byte("apple"), []byte("red")),
		base.MakeKV([]byte("banana"), []byte("yellow")),
		base.MakeTombstone([]byte("cherry")),
	} {
		if err := w.Add(kv); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Close()
*/
package sstable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/sstable/slotblk"
)

/*
The table file format looks like:

<start_of_file>
[data block 0]
[data block 1]
...
[data block N-1]
[filter]
[statistics]
[block index]
[checksums]
[table of contents]
[trailer]
<end_of_file>

Every data block is exactly slotblk.PageSize bytes, so block i starts at
offset i*PageSize; see package slotblk for the block layout. Blocks are not
compressed.

The filter section is an encoded bloom filter over every key in the table
(see package bloom).

The statistics section records the table's key range and entry count:

	firstKeyLen:i32 firstKey lastKeyLen:i32 lastKey count:i32

The block index holds the offset and first key of every data block, which
lets a reader binary search for the one block that can contain a key:

	count:i32 (offset:i64 firstKeyLen:i32 firstKey)*

The checksums section holds one CRC-32C (Castagnoli) per data block, computed
over the full page, as a sequence of u32s.

The table of contents has one 16 byte entry per footer section:

	offset:i64 length:i32 sectionType:i32

and the 12 byte trailer closes the file:

	version:i32 tocSize:i32 magic:u32

where tocSize is the length of the table of contents in bytes. All integers
are little-endian.
*/

const (
	// TableMagic is the trailing magic number of every table.
	TableMagic uint32 = 0x4D495254
	// TableVersion is the only supported format version.
	TableVersion = 1

	trailerLen  = 12
	tocEntryLen = 16
	numSections = 4

	blockChecksumLen = 4
	blockOffsetLen   = 8
	lenPrefixLen     = 4
)

// SectionType identifies a footer section in the table of contents.
type SectionType int32

// The footer sections, in the order they are written.
const (
	SectionFilter     SectionType = 1
	SectionStatistics SectionType = 2
	SectionIndex      SectionType = 3
	SectionChecksums  SectionType = 4
)

func (t SectionType) String() string {
	switch t {
	case SectionFilter:
		return "filter"
	case SectionStatistics:
		return "statistics"
	case SectionIndex:
		return "index"
	case SectionChecksums:
		return "checksums"
	}
	return fmt.Sprintf("SectionType(%d)", int32(t))
}

// TOCEntry locates one footer section.
type TOCEntry struct {
	Offset int64
	Length int32
	Type   SectionType
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// BlockChecksum returns the checksum stored for a data block.
func BlockChecksum(page []byte) uint32 {
	return crc32.Checksum(page, crcTable)
}

// blockHandle is an entry in the block index.
type blockHandle struct {
	Offset   int64
	FirstKey []byte
}

func appendU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendI32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func appendI64(b []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(v))
}

func appendLenPrefixed(b, data []byte) []byte {
	b = appendI32(b, int32(len(data)))
	return append(b, data...)
}

// decoder reads little-endian fields from a footer section, latching the
// first error.
type decoder struct {
	section SectionType
	offset  int64
	buf     []byte
	pos     int
	err     error
}

func makeDecoder(section SectionType, offset int64, buf []byte) decoder {
	return decoder{section: section, offset: offset, buf: buf}
}

func (d *decoder) fail(what string) {
	if d.err == nil {
		d.err = base.CorruptionErrorf("truncated %s reading %s at offset %d",
			d.section, what, d.offset+int64(d.pos))
	}
}

func (d *decoder) need(n int, what string) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.buf)-d.pos < n {
		d.fail(what)
		return false
	}
	return true
}

func (d *decoder) u32(what string) uint32 {
	if !d.need(4, what) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) i32(what string) int32 {
	return int32(d.u32(what))
}

func (d *decoder) i64(what string) int64 {
	if !d.need(8, what) {
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return int64(v)
}

func (d *decoder) bytes(what string) []byte {
	n := int(d.i32(what + " length"))
	if !d.need(n, what) {
		return nil
	}
	b := d.buf[d.pos : d.pos+n : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) finish() error {
	if d.err == nil && d.pos != len(d.buf) {
		d.err = base.CorruptionErrorf("%s has %d trailing bytes at offset %d",
			d.section, len(d.buf)-d.pos, d.offset+int64(d.pos))
	}
	return d.err
}

// maxBlocks bounds the block count read from a footer before allocation.
func maxBlocks(fileSize int64) int {
	return int(fileSize / slotblk.PageSize)
}
