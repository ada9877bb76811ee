// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package bloom

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/internal/base"
)

func newFilter(t *testing.T, bitsPerKey uint32, keys ...[]byte) Filter {
	w := NewWriter(bitsPerKey)
	for _, key := range keys {
		w.AddKey(key)
	}
	f, err := Decode(w.Finish())
	require.NoError(t, err)
	return f
}

func TestSmallBloomFilter(t *testing.T) {
	f := newFilter(t, 10, []byte("hello"), []byte("world"))
	require.Equal(t, uint32(minBits), f.numBits)
	require.Equal(t, uint32(6), f.numProbes)
	require.True(t, f.MayContain([]byte("hello")))
	require.True(t, f.MayContain([]byte("world")))
	require.True(t, f.MayContainKey(base.Hash64([]byte("hello"))))
}

func TestEmptyFilter(t *testing.T) {
	w := NewWriter(10)
	buf := w.Finish()
	require.Len(t, buf, trailerLen)
	f, err := Decode(buf)
	require.NoError(t, err)
	require.True(t, f.Empty())
	for _, k := range []string{"", "a", "anything"} {
		require.True(t, f.MayContain([]byte(k)))
	}
}

func TestBloomFilter(t *testing.T) {
	nextLength := func(x int) int {
		if x < 10 {
			return x + 1
		}
		if x < 100 {
			return x + 10
		}
		if x < 1000 {
			return x + 100
		}
		return x + 1000
	}
	le32 := func(i int) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(i))
		return b
	}

	nMediocreFilters, nGoodFilters := 0, 0
loop:
	for length := 1; length <= 10000; length = nextLength(length) {
		keys := make([][]byte, 0, length)
		for i := 0; i < length; i++ {
			keys = append(keys, le32(i))
		}
		f := newFilter(t, 10, keys...)
		maxLen := trailerLen + (length*10+minBits)/8 + 1
		if f.Size() > maxLen {
			t.Errorf("length=%d: len(f)=%d > max len %d", length, f.Size(), maxLen)
			continue
		}

		// All added keys must match.
		for _, key := range keys {
			if !f.MayContain(key) {
				t.Errorf("length=%d: did not contain key %q", length, key)
				continue loop
			}
		}

		// Check false positive rate.
		nFalsePositive := 0
		for i := 0; i < 10000; i++ {
			if f.MayContain(le32(1e9 + i)) {
				nFalsePositive++
			}
		}
		if nFalsePositive > 0.03*10000 {
			t.Errorf("length=%d: %d false positives in 10000", length, nFalsePositive)
			continue
		}
		if nFalsePositive > 0.0125*10000 {
			nMediocreFilters++
		} else {
			nGoodFilters++
		}
	}

	if nMediocreFilters > nGoodFilters/2 {
		t.Errorf("%d mediocre filters but only %d good filters", nMediocreFilters, nGoodFilters)
	}
}

func TestWriterReuse(t *testing.T) {
	w := NewWriter(8)
	for i := 0; i < 100; i++ {
		w.AddKey([]byte(fmt.Sprintf("a%03d", i)))
	}
	require.Equal(t, 100, w.NumKeys())
	first := w.Finish()
	require.Equal(t, 0, w.NumKeys())

	w.AddKey([]byte("b"))
	f, err := Decode(w.Finish())
	require.NoError(t, err)
	require.Less(t, f.Size(), len(first))
	require.True(t, f.MayContain([]byte("b")))
}

func TestDecodeCorrupt(t *testing.T) {
	w := NewWriter(10)
	w.AddKey([]byte("k"))
	good := w.Finish()

	_, err := Decode(good[:4])
	require.True(t, base.IsCorruptionError(err))

	bad := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(bad[len(bad)-4:], 12345)
	_, err = Decode(bad)
	require.True(t, base.IsCorruptionError(err))

	bad = append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(bad[len(bad)-8:], 0)
	_, err = Decode(bad)
	require.True(t, base.IsCorruptionError(err))
}
