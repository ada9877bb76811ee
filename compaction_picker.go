// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/internal/manifest"
)

// levelScore returns the number of files in the level relative to the number
// that triggers a compaction out of the level. The last level is never
// compacted and always scores zero.
func (d *DB) levelScore(level, numFiles int) float64 {
	switch {
	case level == len(d.layers)-1:
		return 0
	case level == 0:
		return float64(numFiles) / float64(d.opts.L0CompactionThreshold)
	default:
		return float64(numFiles) / float64(d.opts.Level(level).MaxFiles)
	}
}

// pickCompaction returns the next compaction to run, or nil if no level
// needs compacting. d.workMu must be held.
//
// L0 is compacted once it holds L0CompactionThreshold tables, or any table
// at all for a manual compaction: every L0 table is merged with the
// overlapping L1 tables into L1. A sorted level Ln that holds more than its
// MaxFiles tables is compacted one table at a time: the table following the
// level's compaction cursor, wrapping around at the end of the level, is
// merged with the overlapping Ln+1 tables into Ln+1.
func (d *DB) pickCompaction(manual bool) *compaction {
	reason := "default"
	if manual {
		reason = "manual"
	}

	l0 := d.layers[0].load()
	if n := len(l0.handles); n > 0 && (n >= d.opts.L0CompactionThreshold || manual) {
		c := &compaction{
			reason:      reason,
			manual:      manual,
			startLevel:  0,
			outputLevel: 1,
		}
		c.inputs[0] = l0.handles
		smallest, largest := manifest.KeyRange(l0.metas)
		c.inputs[1] = overlappingTables(d.layers[1].load(), smallest, largest)
		c.elideTombstones = c.outputLevel == len(d.layers)-1
		return c
	}

	for level := 1; level < len(d.layers)-1; level++ {
		lt := d.layers[level].load()
		if len(lt.handles) <= d.opts.Level(level).MaxFiles {
			continue
		}
		i := d.nextCompactionTable(level, lt)
		t := lt.handles[i]
		d.compactCursor[level] = t.meta.Largest
		c := &compaction{
			reason:      reason,
			manual:      manual,
			startLevel:  level,
			outputLevel: level + 1,
		}
		c.inputs[0] = []*tableHandle{t}
		c.inputs[1] = overlappingTables(d.layers[level+1].load(), t.meta.Smallest, t.meta.Largest)
		c.elideTombstones = c.outputLevel == len(d.layers)-1
		return c
	}
	return nil
}

// nextCompactionTable returns the index of the first table of the sorted
// level that lies entirely after the level's compaction cursor, wrapping
// around to the first table of the level.
func (d *DB) nextCompactionTable(level int, lt *layerTables) int {
	cursor := d.compactCursor[level]
	if cursor == nil {
		return 0
	}
	for i, m := range lt.metas {
		if base.Compare(m.Smallest, cursor) > 0 {
			return i
		}
	}
	return 0
}

func overlappingTables(lt *layerTables, smallest, largest []byte) []*tableHandle {
	var out []*tableHandle
	for i, m := range lt.metas {
		if m.Overlaps(smallest, largest) {
			out = append(out, lt.handles[i])
		}
	}
	return out
}
