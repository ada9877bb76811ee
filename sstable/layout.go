// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package sstable

import (
	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/sstable/slotblk"
)

// BlockLayout describes one data block.
type BlockLayout struct {
	Index     int
	Offset    int64
	Count     int
	FreeSpace int
	FirstKey  []byte
	LastKey   []byte
	Checksum  uint32
}

// Layout describes the physical layout of a table.
type Layout struct {
	Blocks   []BlockLayout
	Sections []TOCEntry
	Size     uint64
}

// Layout returns the layout of the table, reading every data block.
func (r *Reader) Layout() (*Layout, error) {
	l := &Layout{
		Blocks:   make([]BlockLayout, 0, len(r.index)),
		Sections: append([]TOCEntry(nil), r.toc[:]...),
		Size:     r.props.Size,
	}
	for i, h := range r.index {
		page, err := r.readBlock(i)
		if err != nil {
			return nil, err
		}
		v, err := slotblk.MakeView(page)
		if err != nil {
			return nil, errors.Wrapf(err, "sstable: file %s: block %d", r.opts.Filename, i)
		}
		l.Blocks = append(l.Blocks, BlockLayout{
			Index:     i,
			Offset:    h.Offset,
			Count:     v.Count(),
			FreeSpace: v.FreeSpace(),
			FirstKey:  v.FirstKey(),
			LastKey:   v.LastKey(),
			Checksum:  r.checksums[i],
		})
	}
	return l, nil
}
