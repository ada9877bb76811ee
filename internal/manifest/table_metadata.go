// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package manifest

import (
	"github.com/cockroachdb/redact"
	"github.com/trimdb/trimdb/internal/base"
)

// TableMetadata is maintained for leveled-tables, i.e., tables that are
// part of the LSM. A table is identified by its (Level, FileNum) pair and
// its metadata is immutable once created.
type TableMetadata struct {
	Level   int
	FileNum base.FileNum
	// Size is the size of the file, in bytes.
	Size uint64
	// Smallest and Largest are the inclusive bounds of the table's keys.
	Smallest []byte
	Largest  []byte
	// Count is the number of entries, tombstones included.
	Count uint64
}

// Overlaps returns true if the table's key range intersects the inclusive
// range [smallest, largest].
func (m *TableMetadata) Overlaps(smallest, largest []byte) bool {
	return base.Compare(m.Smallest, largest) <= 0 && base.Compare(smallest, m.Largest) <= 0
}

// ContainsKey returns true if key lies within the table's bounds.
func (m *TableMetadata) ContainsKey(key []byte) bool {
	return base.Compare(m.Smallest, key) <= 0 && base.Compare(key, m.Largest) <= 0
}

// SafeFormat implements redact.SafeFormatter. Keys are user data and are
// redactable.
func (m *TableMetadata) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("L%d:%s:[%q-%q]", redact.SafeInt(m.Level), m.FileNum, m.Smallest, m.Largest)
}

// String implements fmt.Stringer.
func (m *TableMetadata) String() string {
	return redact.StringWithoutMarkers(m)
}

// KeyRange returns the minimum smallest and maximum largest key of the
// given tables.
func KeyRange(tables ...[]*TableMetadata) (smallest, largest []byte) {
	first := true
	for _, ts := range tables {
		for _, t := range ts {
			if first || base.Compare(t.Smallest, smallest) < 0 {
				smallest = t.Smallest
			}
			if first || base.Compare(t.Largest, largest) > 0 {
				largest = t.Largest
			}
			first = false
		}
	}
	return smallest, largest
}

// Overlapping returns the tables whose key ranges intersect [smallest,
// largest], preserving their order.
func Overlapping(tables []*TableMetadata, smallest, largest []byte) []*TableMetadata {
	var out []*TableMetadata
	for _, t := range tables {
		if t.Overlaps(smallest, largest) {
			out = append(out, t)
		}
	}
	return out
}

// TotalSize returns the sum of the sizes of the tables.
func TotalSize(tables []*TableMetadata) uint64 {
	var size uint64
	for _, t := range tables {
		size += t.Size
	}
	return size
}
