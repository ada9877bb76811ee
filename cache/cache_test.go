// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package cache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func page(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestCacheGetSet(t *testing.T) {
	c := NewWithShards(1<<20, 1)
	defer c.Unref()

	id := c.NewID()
	require.Nil(t, c.Get(id, 0))
	got := c.Set(id, 0, page('a', 10))
	require.Equal(t, page('a', 10), got)
	require.Equal(t, page('a', 10), c.Get(id, 0))

	// A second Set for the same key keeps the first page.
	got = c.Set(id, 0, page('b', 10))
	require.Equal(t, page('a', 10), got)

	// Distinct ids never share pages.
	other := c.NewID()
	require.NotEqual(t, id, other)
	require.Nil(t, c.Get(other, 0))

	m := c.Metrics()
	require.Equal(t, Metrics{Size: 10, Count: 1, Hits: 1, Misses: 2}, m)
}

func TestCacheLRU(t *testing.T) {
	c := NewWithShards(30, 1)
	defer c.Unref()
	id := c.NewID()

	c.Set(id, 1, page('1', 10))
	c.Set(id, 2, page('2', 10))
	c.Set(id, 3, page('3', 10))
	// Touch 1 so that 2 becomes the least recently used page.
	require.NotNil(t, c.Get(id, 1))
	c.Set(id, 4, page('4', 10))

	require.Nil(t, c.Get(id, 2))
	for _, i := range []uint64{1, 3, 4} {
		require.NotNil(t, c.Get(id, i), "block %d", i)
	}
	require.Equal(t, int64(30), c.Size())
}

func TestCacheEvictFile(t *testing.T) {
	c := NewWithShards(1<<20, 8)
	defer c.Unref()
	a, b := c.NewID(), c.NewID()
	for i := uint64(0); i < 100; i++ {
		c.Set(a, i, page('a', 1))
		c.Set(b, i, page('b', 1))
	}
	require.Equal(t, int64(200), c.Metrics().Count)
	c.EvictFile(a)
	require.Equal(t, int64(100), c.Metrics().Count)
	for i := uint64(0); i < 100; i++ {
		require.Nil(t, c.Get(a, i))
		require.NotNil(t, c.Get(b, i))
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New(1 << 16)
	defer c.Unref()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := c.NewID()
			for i := uint64(0); i < 1000; i++ {
				want := []byte(fmt.Sprintf("%d-%d", g, i))
				c.Set(id, i, want)
				if got := c.Get(id, i); got != nil {
					require.Equal(t, want, got)
				}
			}
			c.EvictFile(id)
		}(g)
	}
	wg.Wait()
	require.LessOrEqual(t, c.Size(), c.MaxSize())
}

func TestCacheRefs(t *testing.T) {
	c := NewWithShards(100, 1)
	c.Ref()
	id := c.NewID()
	c.Set(id, 0, page('x', 5))
	c.Unref()
	require.NotNil(t, c.Get(id, 0))
	c.Unref()
	require.Equal(t, int64(0), c.Size())
	require.Panics(t, func() { c.Unref() })
}
