// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Compare is the ordering used for keys throughout trimdb: plain bytewise
// comparison.
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Hash64 is the hash function shared by filter probes, block slot tags and
// table lookup dispatch. Callers compute it once per lookup and pass the
// result down the read path.
func Hash64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// SearchResult is the outcome of a point lookup against an LSM component.
type SearchResult int8

const (
	// NotFound means the component holds no record for the key. Older
	// components must be consulted.
	NotFound SearchResult = iota
	// Found means the component holds a live value for the key.
	Found
	// Deleted means the component holds a tombstone for the key, which
	// shadows any value in older components.
	Deleted
)

// String implements fmt.Stringer.
func (r SearchResult) String() string {
	switch r {
	case NotFound:
		return "not-found"
	case Found:
		return "found"
	case Deleted:
		return "deleted"
	}
	return "SearchResult(" + strconv.Itoa(int(r)) + ")"
}

// InternalKV is a key/value record, possibly a tombstone, as yielded by an
// InternalIterator. Tombstones carry no value.
type InternalKV struct {
	K       []byte
	V       []byte
	Deleted bool
}

// MakeKV constructs a live InternalKV.
func MakeKV(k, v []byte) InternalKV {
	return InternalKV{K: k, V: v}
}

// MakeTombstone constructs a tombstone InternalKV.
func MakeTombstone(k []byte) InternalKV {
	return InternalKV{K: k, Deleted: true}
}

// Size returns the encoded payload size of the record.
func (kv *InternalKV) Size() int {
	return len(kv.K) + len(kv.V)
}

// Clone returns a copy of the record that does not alias the iterator's
// buffers.
func (kv *InternalKV) Clone() InternalKV {
	return InternalKV{
		K:       append([]byte(nil), kv.K...),
		V:       append([]byte(nil), kv.V...),
		Deleted: kv.Deleted,
	}
}

// String returns a human readable representation, "key:value" or
// "key:<del>" for tombstones.
func (kv InternalKV) String() string {
	if kv.Deleted {
		return fmt.Sprintf("%s:<del>", kv.K)
	}
	return fmt.Sprintf("%s:%s", kv.K, kv.V)
}

// InternalIterator iterates over a sorted, duplicate-free run of records in
// ascending key order. Positioning methods return nil when the iterator is
// exhausted or an error occurred; Error distinguishes the two.
//
// The returned *InternalKV, including its K and V slices, is only valid
// until the next positioning call.
type InternalIterator interface {
	// First moves the iterator to the first record.
	First() *InternalKV

	// SeekGE moves the iterator to the first record whose key is greater
	// than or equal to the given key.
	SeekGE(key []byte) *InternalKV

	// Next moves the iterator to the next record.
	Next() *InternalKV

	// Error returns any accumulated error.
	Error() error

	// Close closes the iterator and returns any accumulated error.
	Close() error

	fmt.Stringer
}
