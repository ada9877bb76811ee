// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package bloom implements the Bloom filters stored in sstable footers.
//
// An encoded filter is the bit array followed by two little-endian uint32
// fields: the number of probes and the number of bits. Probes are derived
// from the key's 64-bit hash by double hashing, so a filter can be queried
// with the same hash the table reader already computed for the key.
package bloom

import (
	"encoding/binary"
	"fmt"

	"github.com/trimdb/trimdb/internal/base"
)

// This table contains the optimal number of probes for each bitsPerKey. For
// bits per key over 10, probes[10] should be used.
var probes = [11]uint32{
	1:  1,
	2:  1,
	3:  2,
	4:  3,
	5:  3,
	6:  4,
	7:  4,
	8:  5,
	9:  5,
	10: 6,
}

func calculateProbes(bitsPerKey uint32) uint32 {
	if bitsPerKey > 10 {
		return probes[10]
	}
	return probes[bitsPerKey]
}

const trailerLen = 8

// minBits keeps tiny filters from degenerating into a handful of bits.
const minBits = 64

// Writer accumulates key hashes and builds a filter.
type Writer struct {
	bitsPerKey uint32
	numProbes  uint32
	hashes     []uint64
}

// NewWriter returns a Writer that sizes filters at bitsPerKey bits per key.
// A good value is 10, which yields a filter with a ~1% false positive rate.
func NewWriter(bitsPerKey uint32) *Writer {
	if bitsPerKey < 1 {
		panic(fmt.Sprintf("invalid bitsPerKey %d", bitsPerKey))
	}
	return &Writer{
		bitsPerKey: bitsPerKey,
		numProbes:  calculateProbes(bitsPerKey),
	}
}

// AddKey adds a key to the filter.
func (w *Writer) AddKey(key []byte) {
	w.AddHash(base.Hash64(key))
}

// AddHash adds a precomputed base.Hash64 of a key to the filter.
func (w *Writer) AddHash(h uint64) {
	w.hashes = append(w.hashes, h)
}

// NumKeys returns the number of hashes added since the last Finish.
func (w *Writer) NumKeys() int {
	return len(w.hashes)
}

// Finish encodes the filter and resets the writer. A filter with no keys
// encodes to an empty trailer-only blob which matches every key.
func (w *Writer) Finish() []byte {
	if len(w.hashes) == 0 {
		buf := make([]byte, trailerLen)
		binary.LittleEndian.PutUint32(buf[0:], w.numProbes)
		return buf
	}
	numBits := uint32(len(w.hashes)) * w.bitsPerKey
	if numBits < minBits {
		numBits = minBits
	}
	// Round up to a whole number of bytes.
	numBytes := (numBits + 7) / 8
	numBits = numBytes * 8

	buf := make([]byte, numBytes+trailerLen)
	bits := buf[:numBytes]
	for _, h := range w.hashes {
		h1, h2 := uint32(h), uint32(h>>32)
		for i := uint32(0); i < w.numProbes; i++ {
			pos := (h1 + i*h2) % numBits
			bits[pos/8] |= 1 << (pos % 8)
		}
	}
	binary.LittleEndian.PutUint32(buf[numBytes:], w.numProbes)
	binary.LittleEndian.PutUint32(buf[numBytes+4:], numBits)
	w.hashes = w.hashes[:0]
	return buf
}

// Filter is a decoded, read-only Bloom filter. It aliases the buffer it was
// decoded from.
type Filter struct {
	bits      []byte
	numProbes uint32
	numBits   uint32
}

// Decode parses an encoded filter.
func Decode(b []byte) (Filter, error) {
	if len(b) < trailerLen {
		return Filter{}, base.CorruptionErrorf("bloom: filter is %d bytes, shorter than its trailer", len(b))
	}
	n := len(b) - trailerLen
	f := Filter{
		bits:      b[:n:n],
		numProbes: binary.LittleEndian.Uint32(b[n:]),
		numBits:   binary.LittleEndian.Uint32(b[n+4:]),
	}
	if f.numBits != uint32(n)*8 {
		return Filter{}, base.CorruptionErrorf("bloom: filter declares %d bits but holds %d", f.numBits, n*8)
	}
	if f.numProbes == 0 || f.numProbes > probes[10] {
		return Filter{}, base.CorruptionErrorf("bloom: invalid probe count %d", f.numProbes)
	}
	return f, nil
}

// Empty returns true if the filter was built from zero keys.
func (f Filter) Empty() bool {
	return f.numBits == 0
}

// MayContainKey returns false if the key with the given base.Hash64 is
// definitely absent from the set the filter was built from. An empty filter
// matches everything.
func (f Filter) MayContainKey(h uint64) bool {
	if f.numBits == 0 {
		return true
	}
	h1, h2 := uint32(h), uint32(h>>32)
	for i := uint32(0); i < f.numProbes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// MayContain is a convenience wrapper that hashes key.
func (f Filter) MayContain(key []byte) bool {
	return f.MayContainKey(base.Hash64(key))
}

// Size returns the length of the encoded filter.
func (f Filter) Size() int {
	return len(f.bits) + trailerLen
}
