// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package base defines fundamental types used across trimdb: key/value
// records yielded by iterators, lookup results, file names, the hash
// function shared by filters and tables, logging, and error markers.
//
// # Iterators
//
// The [InternalIterator] interface is implemented by every source of sorted
// records: the memtable skiplist, sstable readers, the per-level
// concatenating iterator and the merging iterator that stacks them into a
// single view of the LSM. Internal iterators are forward-only. Tombstones are
// surfaced as records with Deleted set; hiding them is the job of the
// top-level iterator.
package base
