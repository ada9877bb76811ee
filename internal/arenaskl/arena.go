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
	"encoding/binary"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Arena is lock-free. Allocation advances the cursor with a CAS loop, and
// only when the allocation fits, so the cursor never exceeds the capacity.
// Locations handed out are never reused or moved for the lifetime of the
// arena.
type Arena struct {
	n   atomic.Uint64
	buf []byte
}

const (
	nodeAlignment = 4
	blobPrefixLen = 4
)

// MaxArenaSize is the largest supported arena. The top bit of a node's value
// word is reserved for the deleted flag, so every location must fit in 31
// bits.
const MaxArenaSize = math.MaxInt32

// NewArena allocates a new arena using the specified buffer as the backing
// store.
func NewArena(buf []byte) *Arena {
	if len(buf) > MaxArenaSize {
		panic(errors.AssertionFailedf("attempting to create arena of size %d", len(buf)))
	}
	a := &Arena{
		buf: buf,
	}
	// We don't store data at position 0 in order to reserve offset=0 as a kind
	// of nil pointer.
	a.n.Store(1)
	return a
}

// Size returns the number of bytes allocated by the arena.
func (a *Arena) Size() uint32 {
	return uint32(a.n.Load())
}

// Capacity returns the capacity of the arena.
func (a *Arena) Capacity() uint32 {
	return uint32(len(a.buf))
}

// Alloc reserves size bytes aligned to alignment, which must be a power of
// two, and returns their location. The overflow bytes following the
// allocation must also lie within the arena, though they are not reserved:
// a node with a truncated tower is still addressed as a full node struct. It
// returns 0 without moving the cursor if the arena is full, so a smaller
// allocation may still succeed after a larger one fails.
func (a *Arena) Alloc(size, alignment, overflow uint32) uint32 {
	// Pad the allocation with enough bytes to ensure the requested alignment.
	padded := uint64(size) + uint64(alignment) - 1

	for {
		cur := a.n.Load()
		newSize := cur + padded
		if newSize+uint64(overflow) > uint64(len(a.buf)) {
			return 0
		}
		if a.n.CompareAndSwap(cur, newSize) {
			// Return the aligned offset.
			return (uint32(cur) + alignment - 1) & ^(alignment - 1)
		}
	}
}

// allocBlob copies b into the arena behind a 4-byte length prefix and
// returns its location, or 0 if the arena is full.
func (a *Arena) allocBlob(b []byte) uint32 {
	offset := a.Alloc(uint32(blobPrefixLen+len(b)), 1, 0)
	if offset == 0 {
		return 0
	}
	binary.LittleEndian.PutUint32(a.buf[offset:], uint32(len(b)))
	copy(a.buf[offset+blobPrefixLen:], b)
	return offset
}

// Read returns the blob stored at location, sized from its embedded length
// prefix. The returned slice aliases the arena.
func (a *Arena) Read(location uint32) []byte {
	if location == 0 {
		return nil
	}
	n := binary.LittleEndian.Uint32(a.buf[location:])
	start := location + blobPrefixLen
	return a.buf[start : start+n : start+n]
}

func (a *Arena) getBytes(offset uint32, size uint32) []byte {
	if offset == 0 {
		return nil
	}
	return a.buf[offset : offset+size : offset+size]
}

func (a *Arena) getPointer(offset uint32) unsafe.Pointer {
	if offset == 0 {
		return nil
	}
	return unsafe.Pointer(&a.buf[offset])
}

func (a *Arena) getPointerOffset(ptr unsafe.Pointer) uint32 {
	if ptr == nil {
		return 0
	}
	return uint32(uintptr(ptr) - uintptr(unsafe.Pointer(&a.buf[0])))
}
