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

import "github.com/trimdb/trimdb/internal/base"

// Iterator is a forward iterator over the skiplist's base level. Use
// Skiplist.NewIter to construct an iterator. The current state of the
// iterator can be cloned by simply value copying the struct.
//
// An Iterator may be used while other goroutines continue to write to the
// skiplist. It never observes a partially linked node, but it is not a
// snapshot: keys inserted ahead of the iterator's position may or may not be
// returned, and a later overwrite of the current key may be observed by the
// next call to Value.
type Iterator struct {
	list *Skiplist
	nd   *node
	kv   base.InternalKV
}

// Iterator implements the base.InternalIterator interface.
var _ base.InternalIterator = (*Iterator)(nil)

// Close resets the iterator.
func (it *Iterator) Close() error {
	*it = Iterator{}
	return nil
}

func (it *Iterator) String() string {
	return "memtable"
}

// Error returns any accumulated error.
func (it *Iterator) Error() error {
	return nil
}

// First seeks position at the first entry in list. Returns the KV pair if the
// iterator is pointing at a valid entry, and nil otherwise.
func (it *Iterator) First() *base.InternalKV {
	it.nd = it.list.getNode(it.list.head.nextOffset(0))
	return it.decode()
}

// SeekGE moves the iterator to the first entry whose key is greater than or
// equal to the given key. Returns the KV pair if the iterator is pointing at a
// valid entry, and nil otherwise.
func (it *Iterator) SeekGE(key []byte) *base.InternalKV {
	prev := it.list.headOffset
	var next uint32
	for level := int(it.list.Height()) - 1; level >= 0; level-- {
		var found uint32
		prev, next, found = it.list.findSpliceForLevel(key, level, prev)
		if found != 0 {
			next = found
			break
		}
	}
	it.nd = it.list.getNode(next)
	return it.decode()
}

// Next advances to the next position. Returns the KV pair if the iterator is
// pointing at a valid entry, and nil otherwise.
func (it *Iterator) Next() *base.InternalKV {
	if it.nd == nil {
		return nil
	}
	it.nd = it.list.getNode(it.nd.nextOffset(0))
	return it.decode()
}

// Valid returns true iff the iterator is positioned at a valid node.
func (it *Iterator) Valid() bool {
	return it.nd != nil
}

func (it *Iterator) decode() *base.InternalKV {
	if it.nd == nil {
		it.kv = base.InternalKV{}
		return nil
	}
	it.kv.K = it.nd.getKeyBytes(it.list.arena)
	word := it.nd.value.Load()
	if word&deletedBit != 0 {
		it.kv.V = nil
		it.kv.Deleted = true
	} else {
		it.kv.V = it.list.arena.Read(word)
		it.kv.Deleted = false
	}
	return &it.kv
}
