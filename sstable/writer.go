// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package sstable

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/bloom"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/sstable/slotblk"
)

// Writable is the sink a Writer streams a table into. vfs.File implements
// it.
type Writable interface {
	io.Writer
	SyncData() error
	Close() error
}

// WriterOptions holds the parameters used to control building a table.
type WriterOptions struct {
	// BloomBitsPerKey sizes the table's bloom filter. The default is 10.
	BloomBitsPerKey uint32
}

func (o WriterOptions) ensureDefaults() WriterOptions {
	if o.BloomBitsPerKey == 0 {
		o.BloomBitsPerKey = 10
	}
	return o
}

// WriterMetadata holds info about a finished table.
type WriterMetadata struct {
	Size      uint64
	Smallest  []byte
	Largest   []byte
	Count     uint64
	NumBlocks int
}

// Writer is a table writer.
type Writer struct {
	writable Writable
	opts     WriterOptions
	meta     WriterMetadata
	// err is sticky: once set, every subsequent call returns it.
	err    error
	closed bool

	block     slotblk.Writer
	filter    *bloom.Writer
	index     []blockHandle
	checksums []uint32
	offset    int64
	lastKey   []byte
}

// NewWriter returns a new table writer for the file. Closing the writer will
// close the file.
func NewWriter(writable Writable, o WriterOptions) *Writer {
	o = o.ensureDefaults()
	w := &Writer{
		writable: writable,
		opts:     o,
		filter:   bloom.NewWriter(o.BloomBitsPerKey),
	}
	w.block.Init(make([]byte, slotblk.PageSize))
	return w
}

// Set adds a live entry. For a given Writer, keys must be added in strictly
// increasing order.
func (w *Writer) Set(key, value []byte) error {
	return w.add(key, value, false)
}

// Delete adds a tombstone for key.
func (w *Writer) Delete(key []byte) error {
	return w.add(key, nil, true)
}

// Add adds an entry, live or deleted.
func (w *Writer) Add(kv *base.InternalKV) error {
	return w.add(kv.K, kv.V, kv.Deleted)
}

func (w *Writer) add(key, value []byte, isDeleted bool) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errors.AssertionFailedf("sstable: writer is closed")
	}
	if w.meta.Count > 0 && base.Compare(w.lastKey, key) >= 0 {
		w.err = errors.AssertionFailedf("sstable: keys must be added in strictly increasing order: %q, %q",
			w.lastKey, key)
		return w.err
	}
	if isDeleted {
		value = nil
	}
	// An entry that cannot fit in an empty block would otherwise cause the
	// block to be finished and the entry retried forever.
	if !slotblk.Fits(len(key), len(value), isDeleted) {
		w.err = base.EntryTooLargeErrorf(
			"sstable: entry with %d byte key and %d byte value exceeds the block capacity of %d bytes",
			len(key), len(value), slotblk.MaxEntrySize)
		return w.err
	}

	if !w.block.TryAdd(key, value, isDeleted) {
		if err := w.finishBlock(); err != nil {
			w.err = err
			return err
		}
		if !w.block.TryAdd(key, value, isDeleted) {
			w.err = errors.AssertionFailedf("sstable: entry of %d bytes does not fit in an empty block",
				slotblk.EncodedSize(len(key), len(value), isDeleted))
			return w.err
		}
	}
	if w.block.EntryCount() == 1 {
		w.index = append(w.index, blockHandle{
			Offset:   w.offset,
			FirstKey: append([]byte(nil), key...),
		})
	}

	w.filter.AddKey(key)
	if w.meta.Count == 0 {
		w.meta.Smallest = append([]byte(nil), key...)
	}
	w.lastKey = append(w.lastKey[:0], key...)
	w.meta.Count++
	return nil
}

// finishBlock writes the pending block and records its checksum.
func (w *Writer) finishBlock() error {
	page := w.block.Finish()
	w.checksums = append(w.checksums, BlockChecksum(page))
	if _, err := w.writable.Write(page); err != nil {
		return errors.Wrap(err, "sstable: writing data block")
	}
	w.offset += slotblk.PageSize
	w.block.Reset()
	return nil
}

// EstimatedSize returns the size the table would have if it were closed now.
func (w *Writer) EstimatedSize() uint64 {
	size := w.offset
	if !w.block.Empty() {
		size += slotblk.PageSize
	}
	// The filter is roughly bitsPerKey per key; the rest of the footer is a
	// handful of bytes per block.
	size += int64(w.meta.Count) * int64(w.opts.BloomBitsPerKey) / 8
	for _, h := range w.index {
		size += blockOffsetLen + lenPrefixLen + int64(len(h.FirstKey)) + blockChecksumLen
	}
	return uint64(size)
}

// EntryCount returns the number of entries added so far.
func (w *Writer) EntryCount() uint64 {
	return w.meta.Count
}

// Close finishes writing the table, syncs and closes the file. The Writer
// must not be used after Close.
func (w *Writer) Close() (err error) {
	defer func() {
		if w.writable == nil {
			return
		}
		if closeErr := w.writable.Close(); err == nil {
			err = closeErr
		}
		w.writable = nil
		if err != nil {
			w.err = err
		}
	}()
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errors.AssertionFailedf("sstable: writer is closed")
	}
	w.closed = true

	if !w.block.Empty() {
		if err := w.finishBlock(); err != nil {
			return err
		}
	}
	footer := w.encodeFooter()
	if _, err := w.writable.Write(footer); err != nil {
		return errors.Wrap(err, "sstable: writing footer")
	}
	if err := w.writable.SyncData(); err != nil {
		return errors.Wrap(err, "sstable: syncing table")
	}

	w.meta.Size = uint64(w.offset) + uint64(len(footer))
	w.meta.Largest = append([]byte(nil), w.lastKey...)
	w.meta.NumBlocks = len(w.index)
	return nil
}

// Abort closes the underlying file without finishing the table. The caller
// is responsible for removing the partially written file.
func (w *Writer) Abort() {
	if w.err == nil {
		w.err = errors.New("sstable: writer aborted")
	}
	if w.writable != nil {
		_ = w.writable.Close()
		w.writable = nil
	}
}

// Metadata returns the metadata for the finished table. Only valid to call
// after the table has been finished successfully.
func (w *Writer) Metadata() (*WriterMetadata, error) {
	if !w.closed || w.err != nil {
		return nil, errors.AssertionFailedf("sstable: writer is not closed")
	}
	return &w.meta, nil
}

func (w *Writer) encodeFooter() []byte {
	var buf []byte
	var toc [numSections]TOCEntry
	section := func(i int, t SectionType, start int) {
		toc[i] = TOCEntry{
			Offset: w.offset + int64(start),
			Length: int32(len(buf) - start),
			Type:   t,
		}
	}

	start := len(buf)
	buf = append(buf, w.filter.Finish()...)
	section(0, SectionFilter, start)

	start = len(buf)
	buf = appendLenPrefixed(buf, w.meta.Smallest)
	buf = appendLenPrefixed(buf, w.lastKey)
	buf = appendI32(buf, int32(w.meta.Count))
	section(1, SectionStatistics, start)

	start = len(buf)
	buf = appendI32(buf, int32(len(w.index)))
	for _, h := range w.index {
		buf = appendI64(buf, h.Offset)
		buf = appendLenPrefixed(buf, h.FirstKey)
	}
	section(2, SectionIndex, start)

	start = len(buf)
	for _, c := range w.checksums {
		buf = appendU32(buf, c)
	}
	section(3, SectionChecksums, start)

	for _, e := range toc {
		buf = appendI64(buf, e.Offset)
		buf = appendI32(buf, e.Length)
		buf = appendI32(buf, int32(e.Type))
	}
	buf = appendI32(buf, TableVersion)
	buf = appendI32(buf, numSections*tocEntryLen)
	buf = appendU32(buf, TableMagic)
	return buf
}
