// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/internal/base"
	"golang.org/x/exp/rand"
)

// fakeIter is a slice backed base.InternalIterator.
type fakeIter struct {
	kvs   []base.InternalKV
	index int
	// errAt, if positive, makes the iterator fail when positioned at that
	// index.
	errAt  int
	err    error
	closed bool
}

var _ base.InternalIterator = (*fakeIter)(nil)

func newFakeIter(kvs []base.InternalKV) *fakeIter {
	return &fakeIter{kvs: kvs, index: -1}
}

func (f *fakeIter) kv() *base.InternalKV {
	if f.errAt > 0 && f.index >= f.errAt {
		f.err = errors.New("injected error")
		return nil
	}
	if f.index < 0 || f.index >= len(f.kvs) {
		return nil
	}
	return &f.kvs[f.index]
}

func (f *fakeIter) First() *base.InternalKV {
	f.index = 0
	return f.kv()
}

func (f *fakeIter) SeekGE(key []byte) *base.InternalKV {
	f.index = sort.Search(len(f.kvs), func(i int) bool {
		return base.Compare(f.kvs[i].K, key) >= 0
	})
	return f.kv()
}

func (f *fakeIter) Next() *base.InternalKV {
	if f.index >= len(f.kvs) {
		return nil
	}
	f.index++
	return f.kv()
}

func (f *fakeIter) Error() error { return f.err }

func (f *fakeIter) Close() error {
	f.closed = true
	return f.err
}

func (f *fakeIter) String() string { return "fake" }

// parseKVs parses "key:value" pairs separated by spaces. A value of "<del>"
// denotes a tombstone and a lone "." an empty level.
func parseKVs(t *testing.T, line string) []base.InternalKV {
	var kvs []base.InternalKV
	for _, f := range strings.Fields(line) {
		if f == "." {
			continue
		}
		i := strings.IndexByte(f, ':')
		require.Greaterf(t, i, 0, "malformed record %q", f)
		if f[i+1:] == "<del>" {
			kvs = append(kvs, base.MakeTombstone([]byte(f[:i])))
		} else {
			kvs = append(kvs, base.MakeKV([]byte(f[:i]), []byte(f[i+1:])))
		}
	}
	return kvs
}

func runInternalIterCmd(t *testing.T, td *datadriven.TestData, iter base.InternalIterator) string {
	var buf bytes.Buffer
	for _, line := range strings.Split(td.Input, "\n") {
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		var kv *base.InternalKV
		switch parts[0] {
		case "first":
			kv = iter.First()
		case "next":
			kv = iter.Next()
		case "seek-ge":
			require.Len(t, parts, 2)
			kv = iter.SeekGE([]byte(parts[1]))
		default:
			return fmt.Sprintf("unknown op: %s", parts[0])
		}
		if kv != nil {
			fmt.Fprintf(&buf, "%s\n", kv)
		} else if err := iter.Error(); err != nil {
			fmt.Fprintf(&buf, "err=%v\n", err)
		} else {
			fmt.Fprintf(&buf, ".\n")
		}
	}
	return buf.String()
}

func TestMergingIter(t *testing.T) {
	var levels [][]base.InternalKV
	datadriven.RunTest(t, "testdata/merging_iter", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "define":
			levels = levels[:0]
			for _, line := range strings.Split(td.Input, "\n") {
				levels = append(levels, parseKVs(t, line))
			}
			return ""

		case "iter":
			iters := make([]base.InternalIterator, len(levels))
			for i := range levels {
				fi := newFakeIter(levels[i])
				if td.HasArg("err-level") {
					var errLevel, errAt int
					td.ScanArgs(t, "err-level", &errLevel)
					td.ScanArgs(t, "err-at", &errAt)
					if i == errLevel {
						fi.errAt = errAt
					}
				}
				iters[i] = fi
			}
			m := newMergingIter(iters...)
			defer m.Close()
			return runInternalIterCmd(t, td, m)

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

func TestMergingIterClose(t *testing.T) {
	a := newFakeIter(parseKVs(t, "a:1"))
	b := newFakeIter(parseKVs(t, "b:2"))
	m := newMergingIter(a, b)
	require.NotNil(t, m.First())
	require.NoError(t, m.Close())
	require.True(t, a.closed)
	require.True(t, b.closed)
}

// TestMergingIterRandomized checks the merging iterator against a model: for
// every key, the record from the lowest indexed level holding the key.
func TestMergingIterRandomized(t *testing.T) {
	seed := uint64(1)
	rng := rand.New(rand.NewSource(seed))
	t.Logf("seed %d", seed)

	for iteration := 0; iteration < 100; iteration++ {
		numLevels := 1 + rng.Intn(6)
		levels := make([][]base.InternalKV, numLevels)
		model := make(map[string]base.InternalKV)
		for i := range levels {
			seen := make(map[string]bool)
			for j, n := 0, rng.Intn(50); j < n; j++ {
				k := fmt.Sprintf("%04d", rng.Intn(200))
				if seen[k] {
					continue
				}
				seen[k] = true
				kv := base.MakeKV([]byte(k), []byte(fmt.Sprintf("L%d", i)))
				if rng.Intn(4) == 0 {
					kv = base.MakeTombstone([]byte(k))
				}
				levels[i] = append(levels[i], kv)
				if _, ok := model[k]; !ok {
					model[k] = kv
				}
			}
			sort.Slice(levels[i], func(a, b int) bool {
				return base.Compare(levels[i][a].K, levels[i][b].K) < 0
			})
		}
		keys := make([]string, 0, len(model))
		for k := range model {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		iters := make([]base.InternalIterator, numLevels)
		for i := range levels {
			iters[i] = newFakeIter(levels[i])
		}
		m := newMergingIter(iters...)

		var got []string
		for kv := m.First(); kv != nil; kv = m.Next() {
			got = append(got, kv.String())
		}
		var want []string
		for _, k := range keys {
			want = append(want, model[k].String())
		}
		require.Equal(t, want, got)

		// Seek to a random key and compare the remainder.
		seekKey := fmt.Sprintf("%04d", rng.Intn(210))
		i := sort.SearchStrings(keys, seekKey)
		got = got[:0]
		for kv := m.SeekGE([]byte(seekKey)); kv != nil; kv = m.Next() {
			got = append(got, kv.String())
		}
		want = want[i:]
		if len(want) == 0 {
			want = nil
		}
		if len(got) == 0 {
			got = nil
		}
		require.Equal(t, want, got)
		require.NoError(t, m.Close())
	}
}
