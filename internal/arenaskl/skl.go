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

/*
Adapted from RocksDB inline skiplist.

Key differences:
- No optimization for sequential inserts (no "prev").
- No custom comparator.
- Support overwrites. This requires care when we see the same key when inserting.
  Overwrites swap the node's value location atomically instead of adding a
  new node, and deletions set a flag in the value word.
- We discard all non-concurrent code.
- We do not support Splices. This simplifies the code a lot.
- We combine the findLessThan, findGreaterOrEqual, etc into one function.
*/

/*
Further adapted from Badger: https://github.com/dgraph-io/badger.

Key differences:
- Only forward links. The list is scanned forwards when flushing and by
  iterators, never backwards.
- A zero location is the end of every level, so no tail node is needed.
*/

package arenaskl

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/internal/base"
)

const (
	maxHeight   = 20
	maxNodeSize = int(unsafe.Sizeof(node{}))
	linksSize   = int(unsafe.Sizeof(atomic.Uint32{}))
)

// Skiplist is a fast, concurrent skiplist implementation that supports
// forward iteration. Keys and values are immutable once added to the
// skiplist; a put for an existing key swaps in a new value and a delete
// marks the existing node. Nodes are never removed.
//
// Put, Delete, Get and iteration may all be called concurrently. The
// skiplist reports arena exhaustion by returning false from Put and Delete;
// callers are expected to rotate to a fresh skiplist.
type Skiplist struct {
	arena      *Arena
	head       *node
	headOffset uint32
	height     atomic.Uint32 // Current height. 1 <= height <= maxHeight. CAS.

	// If set to true by tests, then extra delays are added to make it easier to
	// detect unusual race conditions.
	testing bool
}

type splice struct {
	prev uint32
	next uint32
}

// MaxNodeSize returns the maximum space needed for a node with the specified
// key and value sizes, including the value blob.
func MaxNodeSize(keySize, valueSize uint32) uint32 {
	return uint32(maxNodeSize) + keySize + blobPrefixLen + valueSize + nodeAlignment
}

// NewSkiplist constructs and initializes a new, empty skiplist. All nodes,
// keys, and values in the skiplist will be allocated from the given arena.
func NewSkiplist(arena *Arena) *Skiplist {
	skl := &Skiplist{}
	skl.Reset(arena)
	return skl
}

// Reset the skiplist to empty and re-initialize.
func (s *Skiplist) Reset(arena *Arena) {
	// Allocate the head node.
	head, headOffset := newRawNode(arena, maxHeight, 0)
	if head == nil {
		panic(errors.AssertionFailedf("arena of %d bytes is not large enough to hold the head node",
			arena.Capacity()))
	}
	head.keyOffset = 0

	*s = Skiplist{
		arena:      arena,
		head:       head,
		headOffset: headOffset,
	}
	s.height.Store(1)
}

// Height returns the height of the highest tower within any of the nodes that
// have ever been allocated as part of this skiplist.
func (s *Skiplist) Height() uint32 { return s.height.Load() }

// Arena returns the arena backing this skiplist.
func (s *Skiplist) Arena() *Arena { return s.arena }

// Size returns the number of bytes that have allocated from the arena.
func (s *Skiplist) Size() uint32 { return s.arena.Size() }

// Empty returns true if no key has ever been added to the skiplist.
func (s *Skiplist) Empty() bool { return s.head.nextOffset(0) == 0 }

// Put sets the value of key. It returns false if the arena is exhausted, in
// which case the skiplist is left unchanged.
//
// The value is allocated first. If the key already exists its node's value
// location is swapped to the new value, otherwise a new node is linked in,
// one level at a time, using CAS on the predecessor's forward pointer.
func (s *Skiplist) Put(key, value []byte) bool {
	valueOffset := s.arena.allocBlob(value)
	if valueOffset == 0 {
		return false
	}
	return s.insert(key, valueOffset, false /* isDelete */)
}

// Delete writes a tombstone for key. If the key is present, its node is
// flagged deleted in place. Otherwise a new node holding no value with the
// deleted flag set is inserted, so that reads are shadowed from older
// on-disk values for the key. It returns false if the arena is exhausted.
func (s *Skiplist) Delete(key []byte) bool {
	return s.insert(key, deletedBit, true /* isDelete */)
}

// Get looks up key. It returns the value and base.Found for a live key,
// base.Deleted if the key carries a tombstone, and base.NotFound otherwise.
// The returned value aliases the arena.
func (s *Skiplist) Get(key []byte) ([]byte, base.SearchResult) {
	prev := s.head
	for level := int(s.Height()) - 1; level >= 0; level-- {
		for {
			nextOffset := prev.nextOffset(level)
			if nextOffset == 0 {
				break
			}
			next := s.getNode(nextOffset)
			cmp := base.Compare(key, next.getKeyBytes(s.arena))
			if cmp == 0 {
				word := next.value.Load()
				if word&deletedBit != 0 {
					return nil, base.Deleted
				}
				return s.arena.Read(word), base.Found
			}
			if cmp < 0 {
				// Drop a level.
				break
			}
			// Keep moving right on this level.
			prev = next
		}
	}
	return nil, base.NotFound
}

// NewIter returns a new Iterator object. Note that it is safe for an
// iterator to be copied by value.
func (s *Skiplist) NewIter() *Iterator {
	return &Iterator{list: s}
}

func (s *Skiplist) update(nd *node, valueWord uint32, isDelete bool) {
	if isDelete {
		nd.markDeleted()
		return
	}
	nd.value.Store(valueWord)
}

func (s *Skiplist) insert(key []byte, valueWord uint32, isDelete bool) bool {
	var spl [maxHeight]splice
	if nd := s.findSplice(key, &spl); nd != nil {
		s.update(nd, valueWord, isDelete)
		return true
	}

	if s.testing {
		// Add delay to make it easier to test race between this thread
		// and another thread that sees the intermediate state between
		// finding the splice and using it.
		runtime.Gosched()
	}

	height := randomHeight(s.Height())
	nd, ndOffset := newNode(s.arena, height, key)
	if nd == nil {
		return false
	}
	nd.value.Store(valueWord)
	s.raiseHeight(height)

	// We always insert from the base level and up. After you add a node in base
	// level, we cannot create a node in the level above because it would have
	// discovered the node in the base level.
	for i := 0; i < int(height); i++ {
		prev, next := spl[i].prev, spl[i].next
		if prev == 0 {
			// New node increased the height of the skiplist, so assume that the
			// new level has not yet been populated.
			if next != 0 {
				panic(errors.AssertionFailedf("next is expected to be nil, since prev is nil"))
			}
			prev = s.headOffset
		}

		for {
			// The node is fully initialized before it becomes reachable at
			// this level, so readers never observe a partial node.
			nd.tower[i].Store(next)
			if s.getNode(prev).casNextOffset(i, next, ndOffset) {
				break
			}

			// CAS failed. We need to recompute prev and next, starting from
			// the last known predecessor. It is unlikely to be helpful to try
			// to use a different level as we redo the search, because it is
			// unlikely that lots of nodes are inserted between prev and next.
			var found uint32
			prev, next, found = s.findSpliceForLevel(key, i, prev)
			if found != 0 {
				if i != 0 {
					panic(errors.AssertionFailedf("how can another thread have inserted a node at a non-base level?"))
				}
				// Another writer linked the same key first. Our node is left
				// unreachable in the arena and the write lands on theirs.
				s.update(s.getNode(found), valueWord, isDelete)
				return true
			}
		}
	}
	return true
}

// findSplice fills in spl with the predecessor and successor at every level
// up to the current height. If a node with an equal key is encountered at
// any level it is returned and spl is left incomplete.
func (s *Skiplist) findSplice(key []byte, spl *[maxHeight]splice) *node {
	prev := s.headOffset
	for level := int(s.Height() - 1); level >= 0; level-- {
		var next, found uint32
		prev, next, found = s.findSpliceForLevel(key, level, prev)
		if found != 0 {
			return s.getNode(found)
		}
		spl[level] = splice{prev: prev, next: next}
	}
	return nil
}

// findSpliceForLevel walks right on level from start, which must have a key
// less than key, and returns the last node with a smaller key and its
// successor. found is the location of a node with an equal key, if any.
func (s *Skiplist) findSpliceForLevel(
	key []byte, level int, start uint32,
) (prev, next, found uint32) {
	prev = start

	for {
		// Assume prev.key < key.
		next = s.getNode(prev).nextOffset(level)
		if next == 0 {
			// End of the level, so done.
			break
		}

		cmp := base.Compare(key, s.getNode(next).getKeyBytes(s.arena))
		if cmp == 0 {
			// Equality case.
			found = next
			break
		}

		if cmp < 0 {
			// We are done for this level, since prev.key < key < next.key.
			break
		}

		// Keep moving right on this level.
		prev = next
	}

	return prev, next, found
}

func (s *Skiplist) getNode(offset uint32) *node {
	return (*node)(s.arena.getPointer(offset))
}
