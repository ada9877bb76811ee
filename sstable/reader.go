// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package sstable

import (
	"io"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/bloom"
	"github.com/trimdb/trimdb/cache"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/sstable/slotblk"
)

// Readable is the source a Reader reads a table from. vfs.File implements
// it.
type Readable interface {
	io.ReaderAt
	io.Closer
	Stat() (os.FileInfo, error)
}

// ReaderOptions holds the parameters needed for reading a table.
type ReaderOptions struct {
	// Cache is used to cache verified data blocks. It may be nil.
	Cache *cache.Cache
	// Filename names the table in errors.
	Filename string
}

// Properties holds the table statistics decoded from the footer.
type Properties struct {
	Smallest   []byte
	Largest    []byte
	Count      uint64
	NumBlocks  int
	FilterSize uint64
	IndexSize  uint64
	Size       uint64
}

// Reader is a table reader.
type Reader struct {
	readable  Readable
	opts      ReaderOptions
	cacheID   uint64
	toc       [numSections]TOCEntry
	filter    bloom.Filter
	props     Properties
	index     []blockHandle
	checksums []uint32
}

// NewReader returns a new table reader for the file. Closing the reader will
// close the file. On error the file is closed as well.
func NewReader(f Readable, o ReaderOptions) (*Reader, error) {
	r := &Reader{
		readable: f,
		opts:     o,
	}
	if r.opts.Filename == "" {
		r.opts.Filename = "(unnamed)"
	}
	if err := r.readFooter(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if o.Cache != nil {
		r.cacheID = o.Cache.NewID()
	}
	return r, nil
}

func (r *Reader) corruptionf(format string, args ...interface{}) error {
	return errors.Wrapf(base.CorruptionErrorf(format, args...), "sstable: file %s", r.opts.Filename)
}

func (r *Reader) readFooter() error {
	fi, err := r.readable.Stat()
	if err != nil {
		return errors.Wrapf(err, "sstable: stat of file %s", r.opts.Filename)
	}
	size := fi.Size()
	if size < trailerLen {
		return r.corruptionf("%d bytes is too small to be a table", size)
	}
	r.props.Size = uint64(size)

	var trailer [trailerLen]byte
	if err := r.readAt(trailer[:], size-trailerLen); err != nil {
		return err
	}
	d := makeDecoder(0, size-trailerLen, trailer[:])
	version := d.i32("version")
	tocSize := d.i32("toc size")
	magic := d.u32("magic")
	if magic != TableMagic {
		return r.corruptionf("bad magic number %#x at offset %d", magic, size-4)
	}
	if version != TableVersion {
		return r.corruptionf("unsupported table version %d at offset %d", version, size-trailerLen)
	}
	if tocSize != numSections*tocEntryLen || int64(tocSize) > size-trailerLen {
		return r.corruptionf("invalid table of contents size %d at offset %d", tocSize, size-trailerLen+4)
	}

	tocStart := size - trailerLen - int64(tocSize)
	tocBuf := make([]byte, tocSize)
	if err := r.readAt(tocBuf, tocStart); err != nil {
		return err
	}
	footerStart := tocStart
	var seen [numSections + 1]bool
	for i := range r.toc {
		d := makeDecoder(0, tocStart+int64(i*tocEntryLen), tocBuf[i*tocEntryLen:(i+1)*tocEntryLen])
		e := TOCEntry{
			Offset: d.i64("section offset"),
			Length: d.i32("section length"),
			Type:   SectionType(d.i32("section type")),
		}
		if e.Type < SectionFilter || e.Type > SectionChecksums || seen[e.Type] {
			return r.corruptionf("invalid section type %d in table of contents at offset %d",
				e.Type, tocStart+int64(i*tocEntryLen))
		}
		if e.Offset < 0 || e.Length < 0 || e.Offset+int64(e.Length) > tocStart {
			return r.corruptionf("%s section [%d, +%d) out of bounds at offset %d",
				e.Type, e.Offset, e.Length, tocStart+int64(i*tocEntryLen))
		}
		seen[e.Type] = true
		r.toc[e.Type-1] = e
		footerStart = min(footerStart, e.Offset)
	}

	footer := make([]byte, tocStart-footerStart)
	if err := r.readAt(footer, footerStart); err != nil {
		return err
	}
	section := func(t SectionType) ([]byte, int64) {
		e := r.toc[t-1]
		start := e.Offset - footerStart
		return footer[start : start+int64(e.Length)], e.Offset
	}

	buf, off := section(SectionFilter)
	if r.filter, err = bloom.Decode(buf); err != nil {
		return errors.Wrapf(err, "sstable: file %s: filter at offset %d", r.opts.Filename, off)
	}
	r.props.FilterSize = uint64(len(buf))

	buf, off = section(SectionStatistics)
	d = makeDecoder(SectionStatistics, off, buf)
	r.props.Smallest = d.bytes("first key")
	r.props.Largest = d.bytes("last key")
	count := d.i32("count")
	if err := d.finish(); err != nil {
		return errors.Wrapf(err, "sstable: file %s", r.opts.Filename)
	}
	if count < 0 {
		return r.corruptionf("negative entry count %d at offset %d", count, off)
	}
	r.props.Count = uint64(count)

	buf, off = section(SectionIndex)
	r.props.IndexSize = uint64(len(buf))
	d = makeDecoder(SectionIndex, off, buf)
	n := int(d.i32("block count"))
	if n < 0 || n > maxBlocks(footerStart) {
		return r.corruptionf("block count %d does not fit before the footer at offset %d", n, off)
	}
	r.index = make([]blockHandle, n)
	for i := range r.index {
		r.index[i].Offset = d.i64("block offset")
		r.index[i].FirstKey = d.bytes("first key")
		if d.err == nil && r.index[i].Offset != int64(i)*slotblk.PageSize {
			return r.corruptionf("block %d has offset %d, expected %d", i, r.index[i].Offset,
				int64(i)*slotblk.PageSize)
		}
	}
	if err := d.finish(); err != nil {
		return errors.Wrapf(err, "sstable: file %s", r.opts.Filename)
	}
	r.props.NumBlocks = n
	if (n == 0) != (count == 0) {
		return r.corruptionf("%d blocks for %d entries", n, count)
	}

	buf, off = section(SectionChecksums)
	if len(buf) != n*blockChecksumLen {
		return r.corruptionf("%d checksum bytes for %d blocks at offset %d", len(buf), n, off)
	}
	d = makeDecoder(SectionChecksums, off, buf)
	r.checksums = make([]uint32, n)
	for i := range r.checksums {
		r.checksums[i] = d.u32("checksum")
	}
	return d.finish()
}

func (r *Reader) readAt(buf []byte, off int64) error {
	n, err := r.readable.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		return r.corruptionf("short read of %d bytes at offset %d", len(buf), off)
	}
	return errors.Wrapf(err, "sstable: reading file %s at offset %d", r.opts.Filename, off)
}

// readRawBlock reads and verifies block i, bypassing the cache.
func (r *Reader) readRawBlock(i int) ([]byte, error) {
	page := make([]byte, slotblk.PageSize)
	off := r.index[i].Offset
	if err := r.readAt(page, off); err != nil {
		return nil, err
	}
	if sum := BlockChecksum(page); sum != r.checksums[i] {
		return nil, r.corruptionf("checksum mismatch in block %d at offset %d: expected %#x, computed %#x",
			i, off, r.checksums[i], sum)
	}
	return page, nil
}

// readBlock returns block i, consulting the cache first. Pages are only
// inserted into the cache once their checksum has been verified.
func (r *Reader) readBlock(i int) ([]byte, error) {
	c := r.opts.Cache
	if c != nil {
		if page := c.Get(r.cacheID, uint64(i)); page != nil {
			return page, nil
		}
	}
	page, err := r.readRawBlock(i)
	if err != nil {
		return nil, err
	}
	if c != nil {
		page = c.Set(r.cacheID, uint64(i), page)
	}
	return page, nil
}

func (r *Reader) view(i int) (slotblk.View, error) {
	page, err := r.readBlock(i)
	if err != nil {
		return slotblk.View{}, err
	}
	v, err := slotblk.MakeView(page)
	if err != nil {
		return slotblk.View{}, errors.Wrapf(err, "sstable: file %s: block %d at offset %d",
			r.opts.Filename, i, r.index[i].Offset)
	}
	return v, nil
}

// findBlock returns the index of the last block whose first key is less
// than or equal to key, or -1 if key sorts before every block.
func (r *Reader) findBlock(key []byte) int {
	return sort.Search(len(r.index), func(i int) bool {
		return base.Compare(r.index[i].FirstKey, key) > 0
	}) - 1
}

// Get looks up key, whose base.Hash64 is hash. The returned value aliases an
// immutable block and must not be modified.
func (r *Reader) Get(key []byte, hash uint64) ([]byte, base.SearchResult, error) {
	if r.props.Count == 0 ||
		base.Compare(key, r.props.Smallest) < 0 || base.Compare(key, r.props.Largest) > 0 {
		return nil, base.NotFound, nil
	}
	if !r.filter.MayContainKey(hash) {
		return nil, base.NotFound, nil
	}
	i := r.findBlock(key)
	if i < 0 {
		return nil, base.NotFound, nil
	}
	v, err := r.view(i)
	if err != nil {
		return nil, base.NotFound, err
	}
	idx, res := v.FindKey(key)
	if res != slotblk.Found {
		return nil, base.NotFound, nil
	}
	_, value, isDeleted := v.Entry(idx)
	if isDeleted {
		return nil, base.Deleted, nil
	}
	return value, base.Found, nil
}

// Properties returns the table's statistics.
func (r *Reader) Properties() *Properties {
	return &r.props
}

// Filename returns the name the reader was opened with.
func (r *Reader) Filename() string {
	return r.opts.Filename
}

// Close closes the reader and its file and drops the table's pages from
// the cache.
func (r *Reader) Close() error {
	if r.opts.Cache != nil {
		r.opts.Cache.EvictFile(r.cacheID)
	}
	err := r.readable.Close()
	r.readable = nil
	return err
}

// ValidateChecksums reads every data block, bypassing the cache, and checks
// its checksum, its structure and its agreement with the block index and
// the table statistics.
func (r *Reader) ValidateChecksums() error {
	var count uint64
	var prevLast []byte
	for i := range r.index {
		page, err := r.readRawBlock(i)
		if err != nil {
			return err
		}
		v, err := slotblk.MakeView(page)
		if err == nil {
			err = v.Validate()
		}
		if err != nil {
			return errors.Wrapf(err, "sstable: file %s: block %d at offset %d",
				r.opts.Filename, i, r.index[i].Offset)
		}
		if v.Count() == 0 {
			return r.corruptionf("block %d at offset %d is empty", i, r.index[i].Offset)
		}
		if base.Compare(v.FirstKey(), r.index[i].FirstKey) != 0 {
			return r.corruptionf("block %d at offset %d starts with %q, index says %q",
				i, r.index[i].Offset, v.FirstKey(), r.index[i].FirstKey)
		}
		if prevLast != nil && base.Compare(prevLast, v.FirstKey()) >= 0 {
			return r.corruptionf("block %d at offset %d overlaps its predecessor", i, r.index[i].Offset)
		}
		prevLast = v.LastKey()
		count += uint64(v.Count())
	}
	if count != r.props.Count {
		return r.corruptionf("blocks hold %d entries, statistics say %d", count, r.props.Count)
	}
	if len(r.index) > 0 && base.Compare(prevLast, r.props.Largest) != 0 {
		return r.corruptionf("last key %q does not match statistics %q", prevLast, r.props.Largest)
	}
	return nil
}
