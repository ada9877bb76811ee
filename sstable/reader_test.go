// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package sstable

import (
	"encoding/binary"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/cache"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/sstable/slotblk"
	"github.com/trimdb/trimdb/vfs"
	"golang.org/x/exp/rand"
)

func makeKVs(n int, rng *rand.Rand) []base.InternalKV {
	kvs := make([]base.InternalKV, n)
	for i := range kvs {
		key := []byte(fmt.Sprintf("key%06d", 2*i))
		if rng.Intn(10) == 0 {
			kvs[i] = base.MakeTombstone(key)
			continue
		}
		value := make([]byte, rng.Intn(300))
		rng.Read(value)
		kvs[i] = base.MakeKV(key, value)
	}
	return kvs
}

func TestReaderManyBlocks(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed: %d", seed)
	rng := rand.New(rand.NewSource(seed))
	kvs := makeKVs(5000, rng)

	fs := vfs.NewMem()
	meta := writeTable(t, fs, "t", kvs, WriterOptions{})
	require.Greater(t, meta.NumBlocks, 10)

	for _, c := range []*cache.Cache{nil, cache.New(1 << 20)} {
		t.Run(fmt.Sprintf("cache=%t", c != nil), func(t *testing.T) {
			r := openTable(t, fs, "t", c)
			defer r.Close()
			require.NoError(t, r.ValidateChecksums())
			require.Equal(t, uint64(len(kvs)), r.Properties().Count)
			require.Equal(t, meta.NumBlocks, r.Properties().NumBlocks)

			for i := range kvs {
				kv := &kvs[i]
				v, res, err := r.Get(kv.K, base.Hash64(kv.K))
				require.NoError(t, err)
				if kv.Deleted {
					require.Equal(t, base.Deleted, res, "%s", kv.K)
				} else {
					require.Equal(t, base.Found, res, "%s", kv.K)
					require.Equal(t, len(kv.V), len(v))
					require.Equal(t, string(kv.V), string(v))
				}
				// Odd keys fall between entries and are never present.
				absent := []byte(fmt.Sprintf("key%06d", 2*i+1))
				_, res, err = r.Get(absent, base.Hash64(absent))
				require.NoError(t, err)
				require.Equal(t, base.NotFound, res)
			}

			it := r.NewIter()
			n := 0
			for kv := it.First(); kv != nil; kv = it.Next() {
				require.Equal(t, string(kvs[n].K), string(kv.K))
				require.Equal(t, kvs[n].Deleted, kv.Deleted)
				n++
			}
			require.Equal(t, len(kvs), n)

			for j := 0; j < 200; j++ {
				i := rng.Intn(len(kvs))
				// Seeking to an absent key lands on its successor, even across
				// block boundaries.
				kv := it.SeekGE([]byte(fmt.Sprintf("key%06d", 2*i-1)))
				require.NotNil(t, kv)
				require.Equal(t, string(kvs[i].K), string(kv.K))
			}
			require.Nil(t, it.SeekGE([]byte("zzz")))
			require.NoError(t, it.Close())

			if c != nil {
				m := c.Metrics()
				require.Greater(t, m.Hits, int64(0))
				require.Greater(t, m.Count, int64(0))
				c.Unref()
			}
		})
	}
}

func TestReaderFilterSkipsBlocks(t *testing.T) {
	fs := vfs.NewMem()
	writeTable(t, fs, "t", makeKVs(1000, rand.New(rand.NewSource(0))), WriterOptions{})
	c := cache.New(1 << 20)
	defer c.Unref()
	r := openTable(t, fs, "t", c)
	defer r.Close()

	for i := 0; i < 1000; i++ {
		absent := []byte(fmt.Sprintf("key%06d", 2*i+1))
		_, res, err := r.Get(absent, base.Hash64(absent))
		require.NoError(t, err)
		require.Equal(t, base.NotFound, res)
	}
	// With 10 bits per key only a small fraction of absent keys should get
	// past the filter and touch a block.
	m := c.Metrics()
	require.Less(t, m.Hits+m.Misses, int64(50))
}

// corruptTable writes a table and a copy of it altered by mutate.
func corruptTable(t *testing.T, mutate func(b []byte) []byte) (vfs.FS, string) {
	fs := vfs.NewMem()
	kvs := makeKVs(500, rand.New(rand.NewSource(1)))
	writeTable(t, fs, "good", kvs, WriterOptions{})
	f, err := fs.Open("good")
	require.NoError(t, err)
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b = mutate(b)
	out, err := fs.Create("bad")
	require.NoError(t, err)
	_, err = out.Write(b)
	require.NoError(t, err)
	require.NoError(t, out.Close())
	return fs, "bad"
}

func TestReaderCorruptFooter(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{"magic", func(b []byte) []byte {
			b[len(b)-1] ^= 0xff
			return b
		}},
		{"version", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[len(b)-trailerLen:], 7)
			return b
		}},
		{"toc-size", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[len(b)-8:], 3)
			return b
		}},
		{"section-type", func(b []byte) []byte {
			toc := len(b) - trailerLen - numSections*tocEntryLen
			binary.LittleEndian.PutUint32(b[toc+12:], 9)
			return b
		}},
		{"section-bounds", func(b []byte) []byte {
			toc := len(b) - trailerLen - numSections*tocEntryLen
			binary.LittleEndian.PutUint32(b[toc+8:], 1<<30)
			return b
		}},
		{"truncated", func(b []byte) []byte {
			return b[:len(b)-trailerLen-1]
		}},
		{"tiny", func(b []byte) []byte {
			return b[:5]
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs, name := corruptTable(t, tc.mutate)
			f, err := fs.Open(name)
			require.NoError(t, err)
			_, err = NewReader(f, ReaderOptions{Filename: name})
			require.Error(t, err)
			require.True(t, base.IsCorruptionError(err), "%v", err)
			require.Contains(t, err.Error(), "bad")
		})
	}
}

func TestReaderCorruptBlock(t *testing.T) {
	fs, name := corruptTable(t, func(b []byte) []byte {
		b[slotblk.PageSize+100] ^= 0x01
		return b
	})
	r := openTable(t, fs, name, nil)
	defer r.Close()

	err := r.ValidateChecksums()
	require.True(t, base.IsCorruptionError(err), "%v", err)
	require.Contains(t, err.Error(), fmt.Sprintf("block 1 at offset %d", slotblk.PageSize))

	// A lookup that reaches the damaged block fails rather than returning
	// garbage.
	key := r.index[1].FirstKey
	_, _, err = r.Get(key, base.Hash64(key))
	require.True(t, base.IsCorruptionError(err), "%v", err)

	it := r.NewIter()
	n := 0
	for kv := it.First(); kv != nil; kv = it.Next() {
		n++
	}
	require.True(t, base.IsCorruptionError(it.Error()))
	require.Greater(t, n, 0)
	require.Error(t, it.Close())
}
