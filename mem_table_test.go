// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/internal/base"
	"golang.org/x/sync/errgroup"
)

func TestMemTableBasic(t *testing.T) {
	m := newMemTable(1<<20, 1)
	require.True(t, m.empty())
	require.EqualValues(t, 0, m.inuseBytes())

	require.True(t, m.writerRef())
	require.True(t, m.set([]byte("a"), []byte("1")))
	require.True(t, m.set([]byte("b"), []byte("2")))
	require.True(t, m.delete([]byte("c")))
	require.True(t, m.set([]byte("a"), []byte("3")))
	m.writerUnref()

	require.False(t, m.empty())
	require.Greater(t, m.inuseBytes(), uint64(0))
	require.Less(t, m.availBytes(), uint64(1<<20))

	v, res := m.get([]byte("a"))
	require.Equal(t, base.Found, res)
	require.Equal(t, "3", string(v))
	_, res = m.get([]byte("c"))
	require.Equal(t, base.Deleted, res)
	_, res = m.get([]byte("d"))
	require.Equal(t, base.NotFound, res)

	it := m.newIter()
	var got []string
	for kv := it.First(); kv != nil; kv = it.Next() {
		got = append(got, kv.String())
	}
	require.NoError(t, it.Close())
	require.Equal(t, []string{"a:3", "b:2", "c:<del>"}, got)
}

func TestMemTableFull(t *testing.T) {
	m := newMemTable(minMemTableSize, 1)
	value := make([]byte, 1000)
	n := 0
	for ; m.set([]byte(fmt.Sprintf("%05d", n)), value); n++ {
	}
	require.Greater(t, n, 0)
	require.Less(t, n, minMemTableSize/1000)
	// Entries written before the arena filled up remain readable.
	for i := 0; i < n; i++ {
		_, res := m.get([]byte(fmt.Sprintf("%05d", i)))
		require.Equal(t, base.Found, res)
	}
}

func TestMemTableFreeze(t *testing.T) {
	m := newMemTable(1<<20, 1)
	require.True(t, m.writerRef())
	require.True(t, m.freeze())
	require.False(t, m.freeze())
	require.True(t, m.isFrozen())

	// New writers are turned away once frozen.
	require.False(t, m.writerRef())

	// waitForWriters must not return while the writer that registered before
	// the freeze is still active.
	var done atomic.Bool
	go func() {
		m.waitForWriters()
		done.Store(true)
	}()
	time.Sleep(10 * time.Millisecond)
	require.False(t, done.Load())

	require.True(t, m.set([]byte("late"), []byte("write")))
	m.writerUnref()
	require.Eventually(t, done.Load, 5*time.Second, time.Millisecond)

	_, res := m.get([]byte("late"))
	require.Equal(t, base.Found, res)
}

func TestMemTableWriterUnrefPanics(t *testing.T) {
	m := newMemTable(1<<20, 1)
	require.Panics(t, m.writerUnref)
}

// TestMemTableConcurrentFreeze races writers against a freeze. Every write
// that was admitted must be visible once waitForWriters returns, and no write
// may be admitted after it.
func TestMemTableConcurrentFreeze(t *testing.T) {
	m := newMemTable(4<<20, 1)
	var admitted atomic.Int64
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; ; i++ {
				if !m.writerRef() {
					return nil
				}
				key := []byte(fmt.Sprintf("w%d-%06d", w, i))
				ok := m.set(key, key)
				m.writerUnref()
				if !ok {
					return nil
				}
				admitted.Add(1)
			}
		})
	}
	time.Sleep(5 * time.Millisecond)
	require.True(t, m.freeze())
	m.waitForWriters()
	require.NoError(t, g.Wait())

	it := m.newIter()
	var count int64
	for kv := it.First(); kv != nil; kv = it.Next() {
		require.Equal(t, string(kv.K), string(kv.V))
		count++
	}
	require.NoError(t, it.Close())
	require.Equal(t, admitted.Load(), count)
}

func TestMemTableMarkFlushed(t *testing.T) {
	m := newMemTable(1<<20, 7)
	select {
	case <-m.flushed:
		t.Fatal("flushed before markFlushed")
	default:
	}
	m.markFlushed()
	<-m.flushed
}
