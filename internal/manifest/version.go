// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/vfs"
)

/*
The MANIFEST file records the set of live tables. It is rewritten in full
whenever the set changes:

	magic:u32 version:u32 count:u32
	(level:u32 fileNum:u64 size:u64 count:u64
	 smallestLen:u32 smallest largestLen:u32 largest)*
	crc:u32

The CRC-32C covers every preceding byte. A new MANIFEST is written to a
temporary file, synced and renamed over the old one, after which the
directory is synced. The rename is the commit point of every flush and
compaction.
*/

const (
	manifestMagic   uint32 = 0x4E414D54
	manifestVersion uint32 = 1
	headerLen              = 12
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Version is a collection of table metadata for on-disk tables at various
// levels.
type Version struct {
	// Levels holds the tables of each level. Levels[0] is ordered by file
	// number (oldest first); deeper levels are ordered by key.
	Levels [][]*TableMetadata
}

// NewVersion returns a version with the tables distributed into numLevels
// levels and each level ordered.
func NewVersion(numLevels int, tables []*TableMetadata) (*Version, error) {
	v := &Version{Levels: make([][]*TableMetadata, numLevels)}
	for _, t := range tables {
		if t.Level < 0 || t.Level >= numLevels {
			return nil, base.CorruptionErrorf("table %s has level outside [0, %d)", t, errors.Safe(numLevels))
		}
		v.Levels[t.Level] = append(v.Levels[t.Level], t)
	}
	for level, ts := range v.Levels {
		if level == 0 {
			SortByFileNum(ts)
		} else {
			SortBySmallest(ts)
		}
		if err := CheckOrdering(level, level > 0, ts); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Tables returns every table, shallowest level first.
func (v *Version) Tables() []*TableMetadata {
	var out []*TableMetadata
	for _, ts := range v.Levels {
		out = append(out, ts...)
	}
	return out
}

// String implements fmt.Stringer.
func (v *Version) String() string {
	var buf bytes.Buffer
	for level, ts := range v.Levels {
		if len(ts) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "L%d:\n", level)
		for _, t := range ts {
			fmt.Fprintf(&buf, "  %s:[%s-%s]\n", t.FileNum, t.Smallest, t.Largest)
		}
	}
	return buf.String()
}

// Encode serializes the table list in MANIFEST format.
func Encode(tables []*TableMetadata) []byte {
	le := binary.LittleEndian
	buf := make([]byte, 0, headerLen+len(tables)*64)
	buf = le.AppendUint32(buf, manifestMagic)
	buf = le.AppendUint32(buf, manifestVersion)
	buf = le.AppendUint32(buf, uint32(len(tables)))
	for _, t := range tables {
		buf = le.AppendUint32(buf, uint32(t.Level))
		buf = le.AppendUint64(buf, uint64(t.FileNum))
		buf = le.AppendUint64(buf, t.Size)
		buf = le.AppendUint64(buf, t.Count)
		buf = le.AppendUint32(buf, uint32(len(t.Smallest)))
		buf = append(buf, t.Smallest...)
		buf = le.AppendUint32(buf, uint32(len(t.Largest)))
		buf = append(buf, t.Largest...)
	}
	return le.AppendUint32(buf, crc32.Checksum(buf, crcTable))
}

// Decode parses a MANIFEST.
func Decode(b []byte) ([]*TableMetadata, error) {
	le := binary.LittleEndian
	if len(b) < headerLen+4 {
		return nil, base.CorruptionErrorf("manifest: %d bytes is too short", errors.Safe(len(b)))
	}
	body, sum := b[:len(b)-4], le.Uint32(b[len(b)-4:])
	if magic := le.Uint32(body); magic != manifestMagic {
		return nil, base.CorruptionErrorf("manifest: bad magic number %#x", errors.Safe(magic))
	}
	if version := le.Uint32(body[4:]); version != manifestVersion {
		return nil, base.CorruptionErrorf("manifest: unsupported version %d", errors.Safe(version))
	}
	if computed := crc32.Checksum(body, crcTable); computed != sum {
		return nil, base.CorruptionErrorf("manifest: checksum mismatch: expected %#x, computed %#x",
			errors.Safe(sum), errors.Safe(computed))
	}

	n := le.Uint32(body[8:])
	pos := headerLen
	truncated := func() error {
		return base.CorruptionErrorf("manifest: truncated entry at offset %d", errors.Safe(pos))
	}
	readBytes := func() ([]byte, bool) {
		if len(body)-pos < 4 {
			return nil, false
		}
		l := int(le.Uint32(body[pos:]))
		pos += 4
		if l < 0 || len(body)-pos < l {
			return nil, false
		}
		v := append([]byte(nil), body[pos:pos+l]...)
		pos += l
		return v, true
	}

	var tables []*TableMetadata
	for i := uint32(0); i < n; i++ {
		const fixedLen = 4 + 8 + 8 + 8
		if len(body)-pos < fixedLen {
			return nil, truncated()
		}
		t := &TableMetadata{
			Level:   int(le.Uint32(body[pos:])),
			FileNum: base.FileNum(le.Uint64(body[pos+4:])),
			Size:    le.Uint64(body[pos+12:]),
			Count:   le.Uint64(body[pos+20:]),
		}
		pos += fixedLen
		var ok bool
		if t.Smallest, ok = readBytes(); !ok {
			return nil, truncated()
		}
		if t.Largest, ok = readBytes(); !ok {
			return nil, truncated()
		}
		tables = append(tables, t)
	}
	if pos != len(body) {
		return nil, base.CorruptionErrorf("manifest: %d trailing bytes", errors.Safe(len(body)-pos))
	}
	return tables, nil
}

// Commit atomically replaces the MANIFEST in dirname with one listing
// tables.
func Commit(fs vfs.FS, dirname string, tables []*TableMetadata) error {
	name := fs.PathJoin(dirname, base.ManifestFilename())
	tmp := base.TempFilename(name)
	f, err := fs.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "manifest: creating temporary file")
	}
	if _, err := f.Write(Encode(tables)); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "manifest: writing")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "manifest: syncing")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "manifest: closing")
	}
	if err := fs.Rename(tmp, name); err != nil {
		return errors.Wrap(err, "manifest: installing")
	}
	return errors.Wrap(vfs.SyncDir(fs, dirname), "manifest: syncing directory")
}

// Load reads the MANIFEST in dirname. A missing MANIFEST describes an empty
// database.
func Load(fs vfs.FS, dirname string) ([]*TableMetadata, error) {
	f, err := fs.Open(fs.PathJoin(dirname, base.ManifestFilename()))
	if oserror.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "manifest: opening")
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "manifest: reading")
	}
	return Decode(b)
}
