/*
 * Copyright 2017 Dgraph Labs, Inc. and Contributors
 * Modifications copyright (C) 2017 Andy Kimball and Contributors
 * Modifications copyright (C) 2026 The TrimDB Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package arenaskl

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func newArena(n uint32) *Arena {
	return NewArena(make([]byte, n))
}

// TestArenaSizeOverflow tests that large allocations do not cause Arena's
// internal size accounting to overflow and produce incorrect results.
func TestArenaSizeOverflow(t *testing.T) {
	a := newArena(1 << 20)

	// Allocating under the limit succeeds.
	offset := a.Alloc(math.MaxUint16, 1, 0)
	require.Equal(t, uint32(1), offset)
	require.Equal(t, uint32(math.MaxUint16)+1, a.Size())

	// Allocating over the limit could cause an accounting
	// overflow if 32-bit arithmetic was used. It shouldn't.
	require.Equal(t, uint32(0), a.Alloc(math.MaxUint32, 1, 0))
	require.Equal(t, uint32(math.MaxUint16)+1, a.Size())

	// The failed allocation did not consume any space.
	require.Equal(t, uint32(math.MaxUint16)+1, a.Alloc(math.MaxUint16, 1, 0))
	require.Equal(t, uint32(2*math.MaxUint16)+1, a.Size())
}

func TestArenaAlignment(t *testing.T) {
	a := newArena(1024)
	require.Equal(t, uint32(1), a.Alloc(3, 1, 0))
	// The cursor is at 4; a 4-aligned allocation starts there.
	require.Equal(t, uint32(4), a.Alloc(5, 4, 0))
	// Padding moved the cursor to 12, which is already 4-aligned.
	require.Equal(t, uint32(12), a.Alloc(4, 4, 0))
	require.Equal(t, uint32(0), a.Alloc(4, 4, 0)%4)
}

func TestArenaFailedAllocKeepsCursor(t *testing.T) {
	a := newArena(101)

	require.Equal(t, uint32(0), a.Alloc(200, 1, 0))
	require.Equal(t, uint32(1), a.Size())

	// A smaller request that fits the free space still succeeds.
	require.Equal(t, uint32(1), a.Alloc(50, 1, 0))
	require.Equal(t, uint32(51), a.Size())

	require.Equal(t, uint32(0), a.Alloc(51, 1, 0))
	require.Equal(t, uint32(51), a.Size())
	require.Equal(t, uint32(51), a.Alloc(50, 1, 0))
	require.Equal(t, a.Capacity(), a.Size())

	require.Equal(t, uint32(0), a.Alloc(0, 1, 0))
	require.Equal(t, uint32(0), a.Alloc(1, 1, 0))
	require.Equal(t, a.Capacity(), a.Size())
}

func TestArenaAllocOverflow(t *testing.T) {
	a := newArena(64)

	// The overflow bytes must fit, but are not reserved.
	require.Equal(t, uint32(0), a.Alloc(10, 1, 54))
	require.Equal(t, uint32(1), a.Size())
	require.Equal(t, uint32(1), a.Alloc(10, 1, 53))
	require.Equal(t, uint32(11), a.Size())
	require.Equal(t, uint32(11), a.Alloc(10, 1, 43))
	require.Equal(t, uint32(0), a.Alloc(10, 1, 44))
	require.Equal(t, uint32(21), a.Size())
}

// TestArenaExhaustion fills an arena exactly and checks that the next
// allocation returns the null location while every earlier allocation stays
// intact.
func TestArenaExhaustion(t *testing.T) {
	const n = 10
	const valueLen = 8
	a := newArena(1 + n*(blobPrefixLen+valueLen))

	var locations []uint32
	for i := 0; i < n; i++ {
		loc := a.allocBlob([]byte(fmt.Sprintf("value-%02d", i)))
		require.NotEqual(t, uint32(0), loc)
		locations = append(locations, loc)
	}
	require.Equal(t, a.Capacity(), a.Size())

	require.Equal(t, uint32(0), a.allocBlob([]byte("x")))
	require.Equal(t, uint32(0), a.allocBlob(nil))

	for i, loc := range locations {
		require.Equal(t, fmt.Sprintf("value-%02d", i), string(a.Read(loc)))
	}
}

func TestArenaReadNull(t *testing.T) {
	a := newArena(64)
	require.Nil(t, a.Read(0))
	loc := a.allocBlob(nil)
	require.NotEqual(t, uint32(0), loc)
	require.Equal(t, 0, len(a.Read(loc)))
	require.True(t, bytes.Equal(a.Read(loc), []byte{}))
}
