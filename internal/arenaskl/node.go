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
	"math"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// deletedBit is packed into the otherwise unused top bit of a node's value
// word. A node whose value word has it set is a tombstone.
const deletedBit = 1 << 31

type node struct {
	// Immutable fields, so no need to lock to access key.
	keyOffset uint32
	keySize   uint32
	height    uint32

	// value holds the location of the node's value blob, or'ed with
	// deletedBit for tombstones. A tombstone inserted for an absent key has
	// no blob (location 0). Updates swap the whole word atomically; the old
	// blob becomes garbage.
	value atomic.Uint32

	// Most nodes do not need to use the full height of the tower, since the
	// probability of each successive level decreases exponentially. Because
	// these elements are never accessed, they do not need to be allocated.
	// Therefore, when a node is allocated in the arena, its memory footprint
	// is deliberately truncated to not include unneeded tower elements.
	//
	// Each element is the location of the successor at that level, or 0.
	// All accesses to elements should use CAS operations, with no need to lock.
	tower [maxHeight]atomic.Uint32
}

func newNode(arena *Arena, height uint32, key []byte) (nd *node, offset uint32) {
	if height < 1 || height > maxHeight {
		panic(errors.AssertionFailedf("height %d cannot be less than one or greater than the max height", height))
	}
	keySize := len(key)
	if int64(keySize) > math.MaxUint32 {
		panic("key is too large")
	}

	nd, offset = newRawNode(arena, height, uint32(keySize))
	if nd == nil {
		return nil, 0
	}
	copy(nd.getKeyBytes(arena), key)
	return nd, offset
}

func newRawNode(arena *Arena, height uint32, keySize uint32) (nd *node, offset uint32) {
	// Compute the amount of the tower that will never be used, since the height
	// is less than maxHeight.
	unusedSize := uint32((maxHeight - int(height)) * linksSize)
	nodeSize := uint32(maxNodeSize) - unusedSize

	offset = arena.Alloc(nodeSize+keySize, nodeAlignment, unusedSize)
	if offset == 0 {
		return nil, 0
	}

	nd = (*node)(arena.getPointer(offset))
	nd.keyOffset = offset + nodeSize
	nd.keySize = keySize
	nd.height = height
	return nd, offset
}

func (n *node) getKeyBytes(arena *Arena) []byte {
	return arena.getBytes(n.keyOffset, n.keySize)
}

func (n *node) nextOffset(h int) uint32 {
	return n.tower[h].Load()
}

func (n *node) casNextOffset(h int, old, val uint32) bool {
	return n.tower[h].CompareAndSwap(old, val)
}

// isDeleted reports whether the node currently holds a tombstone.
func (n *node) isDeleted() bool {
	return n.value.Load()&deletedBit != 0
}

// markDeleted sets the deleted flag in place, keeping the current value
// location.
func (n *node) markDeleted() {
	for {
		old := n.value.Load()
		if old&deletedBit != 0 || n.value.CompareAndSwap(old, old|deletedBit) {
			return
		}
	}
}
