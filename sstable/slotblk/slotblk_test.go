// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package slotblk

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/internal/base"
	"golang.org/x/exp/rand"
)

func parseEntry(line string) (key, value []byte, isDeleted bool) {
	k, v, _ := strings.Cut(line, ":")
	if v == "<del>" {
		return []byte(k), nil, true
	}
	return []byte(k), []byte(v), false
}

func TestBlockDataDriven(t *testing.T) {
	var page []byte
	datadriven.RunTest(t, "testdata/slotblk", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "build":
			w := NewWriter()
			for _, line := range strings.Split(d.Input, "\n") {
				if line == "" {
					continue
				}
				k, v, del := parseEntry(line)
				if !w.TryAdd(k, v, del) {
					return fmt.Sprintf("block full at %q", line)
				}
			}
			free := w.FreeSpace()
			page = append([]byte(nil), w.Finish()...)
			v, err := MakeView(page)
			if err != nil {
				return err.Error()
			}
			require.NoError(t, v.Validate())
			return fmt.Sprintf("entries=%d data-start=%d free=%d", v.Count(), v.DataStart(), free)

		case "find":
			var key string
			d.ScanArgs(t, "key", &key)
			r, err := NewReader(page)
			require.NoError(t, err)
			res := r.FindKey([]byte(key))
			if res == Found {
				return fmt.Sprintf("%s %s", res, r.KV())
			}
			return res.String()

		case "iter", "seek-ge":
			r, err := NewReader(page)
			require.NoError(t, err)
			var kv *base.InternalKV
			if d.Cmd == "iter" {
				kv = r.Next()
			} else {
				var key string
				d.ScanArgs(t, "key", &key)
				kv = r.SeekGE([]byte(key))
			}
			var buf strings.Builder
			for ; kv != nil; kv = r.Next() {
				fmt.Fprintf(&buf, "%s\n", kv)
			}
			if buf.Len() == 0 && d.Cmd == "seek-ge" {
				return "."
			}
			return buf.String()

		default:
			return fmt.Sprintf("unknown command: %s", d.Cmd)
		}
	})
}

func TestBlockRoundTrip(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed: %d", seed)
	rng := rand.New(rand.NewSource(seed))

	for iter := 0; iter < 50; iter++ {
		type entry struct {
			key, value []byte
			deleted    bool
		}
		keys := make(map[string]bool)
		var entries []entry
		w := NewWriter()
		for {
			k := make([]byte, 1+rng.Intn(16))
			for i := range k {
				k[i] = byte('a' + rng.Intn(26))
			}
			if keys[string(k)] {
				continue
			}
			v := make([]byte, rng.Intn(64))
			rng.Read(v)
			e := entry{key: k, value: v, deleted: rng.Intn(5) == 0}
			if e.deleted {
				e.value = nil
			}
			if EncodedSize(len(e.key), len(e.value), e.deleted) > w.FreeSpace() {
				break
			}
			keys[string(k)] = true
			entries = append(entries, e)
			// Reserve the space; the real block is built below in key order.
			require.True(t, w.TryAdd(e.key, e.value, e.deleted))
		}
		sort.Slice(entries, func(i, j int) bool {
			return bytes.Compare(entries[i].key, entries[j].key) < 0
		})

		w = NewWriter()
		for _, e := range entries {
			require.True(t, w.TryAdd(e.key, e.value, e.deleted))
		}
		page := w.Finish()
		r, err := NewReader(page)
		require.NoError(t, err)
		require.NoError(t, r.View().Validate())
		require.Equal(t, len(entries), r.View().Count())

		i := 0
		for kv := r.First(); kv != nil; kv = r.Next() {
			e := entries[i]
			require.Equal(t, e.key, kv.K)
			require.Equal(t, e.deleted, kv.Deleted)
			if e.deleted {
				require.Nil(t, kv.V)
			} else {
				require.Equal(t, len(e.value), len(kv.V))
				require.True(t, bytes.Equal(e.value, kv.V))
			}
			i++
		}
		require.Equal(t, len(entries), i)

		for j, e := range entries {
			idx, res := r.View().FindKey(e.key)
			require.Equal(t, Found, res)
			require.Equal(t, j, idx)
		}
	}
}

func TestBlockTryAddFull(t *testing.T) {
	w := NewWriter()
	value := bytes.Repeat([]byte("x"), 100)
	n := 0
	for ; ; n++ {
		if !w.TryAdd([]byte(fmt.Sprintf("key%04d", n)), value, false) {
			break
		}
	}
	// Each entry uses 4 (slot) + 4 (record header) + 7 (key) + 100 bytes.
	require.Equal(t, (PageSize-headerSize)/115, n)
	before := w.FreeSpace()
	require.False(t, w.TryAdd([]byte("zzz"), value, false))
	require.Equal(t, before, w.FreeSpace())
	require.Equal(t, n, w.EntryCount())

	// A tombstone is smaller and may still fit.
	require.True(t, w.TryAdd([]byte("zzz"), value, true))
	require.Equal(t, before-EncodedSize(3, 0, true), w.FreeSpace())
}

func TestBlockMaxEntry(t *testing.T) {
	key := []byte("k")
	require.True(t, Fits(len(key), MaxEntrySize-len(key), false))
	require.False(t, Fits(len(key), MaxEntrySize-len(key)+1, false))

	w := NewWriter()
	require.True(t, w.TryAdd(key, make([]byte, MaxEntrySize-len(key)), false))
	require.Equal(t, 0, w.FreeSpace())
	require.False(t, w.TryAdd([]byte("l"), nil, true))

	w = NewWriter()
	require.False(t, w.TryAdd(key, make([]byte, MaxEntrySize-len(key)+1), false))
	require.True(t, w.Empty())
}

// TestBlockFinishZeroesFreeSpace checks that bytes left over from a previous
// use of the buffer do not survive into a finished block.
func TestBlockFinishZeroesFreeSpace(t *testing.T) {
	w := NewWriter()
	for i := 0; i < 100; i++ {
		require.True(t, w.TryAdd([]byte(fmt.Sprintf("%03d", i)), []byte("value"), false))
	}
	w.Finish()
	w.Reset()
	require.True(t, w.TryAdd([]byte("a"), []byte("b"), false))
	page := w.Finish()

	v, err := MakeView(page)
	require.NoError(t, err)
	for _, b := range page[headerSize+slotSize : v.DataStart()] {
		require.Equal(t, byte(0), b)
	}
}

func TestBlockCorruptHeader(t *testing.T) {
	w := NewWriter()
	require.True(t, w.TryAdd([]byte("a"), []byte("b"), false))
	page := append([]byte(nil), w.Finish()...)

	_, err := MakeView(page[:100])
	require.True(t, base.IsCorruptionError(err))

	bad := append([]byte(nil), page...)
	putUint16(bad, 0, 2000)
	_, err = MakeView(bad)
	require.True(t, base.IsCorruptionError(err))

	bad = append([]byte(nil), page...)
	putUint16(bad, headerSize+2, KeyTag([]byte("a"))+1)
	v, err := MakeView(bad)
	require.NoError(t, err)
	require.True(t, base.IsCorruptionError(v.Validate()))
}
