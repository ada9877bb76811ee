// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package manifest

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/internal/base"
)

// CheckOrdering checks that the tables of a level are consistent with the
// level's kind. An unsorted level (L0) may hold overlapping tables, which
// must be ordered oldest to newest by file number. A sorted level must hold
// tables in increasing key order with non-overlapping, well-formed bounds.
func CheckOrdering(level int, sorted bool, tables []*TableMetadata) error {
	for i, t := range tables {
		if t.Level != level {
			return base.CorruptionErrorf("table %s found in L%d", t, errors.Safe(level))
		}
		if base.Compare(t.Smallest, t.Largest) > 0 {
			return base.CorruptionErrorf("table %s has inverted bounds", t)
		}
		if i == 0 {
			continue
		}
		prev := tables[i-1]
		if !sorted {
			if prev.FileNum >= t.FileNum {
				return base.CorruptionErrorf("L%d tables %s and %s are not ordered by file number",
					errors.Safe(level), prev, t)
			}
			continue
		}
		if base.Compare(prev.Largest, t.Smallest) >= 0 {
			return base.CorruptionErrorf("L%d tables %s and %s overlap or are out of order",
				errors.Safe(level), prev, t)
		}
	}
	return nil
}

// FindTable returns the index of the table in a sorted level whose range
// may contain key, or -1 if there is none.
func FindTable(tables []*TableMetadata, key []byte) int {
	i := sort.Search(len(tables), func(i int) bool {
		return base.Compare(tables[i].Largest, key) >= 0
	})
	if i < len(tables) && base.Compare(tables[i].Smallest, key) <= 0 {
		return i
	}
	return -1
}

// SortBySmallest sorts tables of a sorted level by their smallest key.
func SortBySmallest(tables []*TableMetadata) {
	sort.Slice(tables, func(i, j int) bool {
		return base.Compare(tables[i].Smallest, tables[j].Smallest) < 0
	})
}

// SortByFileNum sorts the tables of an unsorted level oldest first.
func SortByFileNum(tables []*TableMetadata) {
	sort.Slice(tables, func(i, j int) bool {
		return tables[i].FileNum < tables[j].FileNum
	})
}
