// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package cache implements the block cache shared by sstable readers.
//
// Pages are keyed by (file id, block index). Every opened table asks the
// cache for a fresh id via NewID so that a file number reused after a crash
// can never observe stale pages. Cached pages are immutable and may be held
// by readers after eviction; the cache only drops its own reference.
package cache

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

type key struct {
	id         uint64
	blockIndex uint64
}

func (k key) String() string {
	return fmt.Sprintf("%d.%d", k.id, k.blockIndex)
}

func (k key) shardIdx(n int) int {
	h := k.id*0x9e3779b97f4a7c15 ^ k.blockIndex*0xbf58476d1ce4e5b9
	h ^= h >> 31
	return int(h % uint64(n))
}

type entry struct {
	key        key
	data       []byte
	next, prev *entry
}

func (e entry) String() string {
	return e.key.String()
}

// entryList is a double-linked circular list of *entry elements. The code is
// derived from the stdlib container/list but customized to entry in order to
// avoid a separate allocation for every element.
type entryList struct {
	root entry
}

func (l *entryList) init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (l *entryList) empty() bool {
	return l.root.next == &l.root
}

func (l *entryList) back() *entry {
	return l.root.prev
}

func (l *entryList) insertAfter(e, at *entry) {
	n := at.next
	at.next = e
	e.prev = at
	e.next = n
	n.prev = e
}

func (l *entryList) remove(e *entry) *entry {
	if e == &l.root {
		panic("cannot remove root list node")
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil // avoid memory leaks
	e.prev = nil // avoid memory leaks
	return e
}

func (l *entryList) pushFront(e *entry) {
	l.insertAfter(e, &l.root)
}

func (l *entryList) moveToFront(e *entry) {
	if l.root.next == e {
		return
	}
	l.insertAfter(l.remove(e), &l.root)
}

type shard struct {
	maxSize int64

	mu   sync.Mutex
	m    map[key]*entry
	size int64
	lru  entryList

	hits   atomic.Int64
	misses atomic.Int64
}

func (s *shard) init(maxSize int64) {
	s.maxSize = maxSize
	s.m = make(map[key]*entry)
	s.lru.init()
}

func (s *shard) get(k key) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.m[k]; e != nil {
		s.lru.moveToFront(e)
		s.hits.Add(1)
		return e.data
	}
	s.misses.Add(1)
	return nil
}

func (s *shard) set(k key, data []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.m[k]; e != nil {
		s.lru.moveToFront(e)
		return e.data
	}
	e := &entry{
		key:  k,
		data: data,
	}
	s.m[k] = e
	s.lru.pushFront(e)
	s.size += int64(len(e.data))
	s.evict()
	return e.data
}

func (s *shard) removeLocked(e *entry) {
	s.lru.remove(e)
	delete(s.m, e.key)
	s.size -= int64(len(e.data))
}

func (s *shard) evict() {
	for s.size > s.maxSize && !s.lru.empty() {
		s.removeLocked(s.lru.back())
	}
}

func (s *shard) evictFile(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.m {
		if k.id == id {
			s.removeLocked(e)
		}
	}
}

// Metrics holds metrics for the cache.
type Metrics struct {
	// The number of bytes inuse by the cache.
	Size int64
	// The count of objects (blocks) in the cache.
	Count int64
	// The number of cache hits.
	Hits int64
	// The number of cache misses.
	Misses int64
}

// Cache is a sharded LRU cache of sstable pages. A Cache is reference
// counted so that it can be shared between several DBs; the creator holds
// the first reference.
type Cache struct {
	refs    atomic.Int64
	maxSize int64
	idAlloc atomic.Uint64
	shards  []shard
}

// New creates a new cache of the specified size. Memory for the cache is
// accounted by page length only.
func New(size int64) *Cache {
	m := 4 * runtime.GOMAXPROCS(0)

	// In tests we can use large CPU machines with small cache sizes and have
	// many caches in existence at a time. If sharding into m shards would
	// produce too small shards, constrain the number of shards to 4.
	const minimumShardSize = 4 << 20 // 4 MiB
	if m > 4 && int(size)/m < minimumShardSize {
		m = 4
	}
	return NewWithShards(size, m)
}

// NewWithShards creates a new cache with the specified size and number of
// shards.
func NewWithShards(size int64, shards int) *Cache {
	if shards < 1 {
		shards = 1
	}
	c := &Cache{
		maxSize: size,
		shards:  make([]shard, shards),
	}
	c.refs.Store(1)
	for i := range c.shards {
		c.shards[i].init(size / int64(len(c.shards)))
	}
	return c
}

// Ref adds a reference to the cache.
func (c *Cache) Ref() {
	if v := c.refs.Add(1); v <= 1 {
		panic(fmt.Sprintf("trimdb: inconsistent reference count: %d", v))
	}
}

// Unref releases a reference. Releasing the last reference drops every
// cached page.
func (c *Cache) Unref() {
	v := c.refs.Add(-1)
	switch {
	case v < 0:
		panic(fmt.Sprintf("trimdb: inconsistent reference count: %d", v))
	case v == 0:
		for i := range c.shards {
			s := &c.shards[i]
			s.mu.Lock()
			s.m = make(map[key]*entry)
			s.lru.init()
			s.size = 0
			s.mu.Unlock()
		}
	}
}

// NewID returns a new id to be used as a namespace for a file's pages.
func (c *Cache) NewID() uint64 {
	return c.idAlloc.Add(1)
}

// Get returns the page for the given file id and block index, or nil if it
// is not cached. The returned page must not be modified.
func (c *Cache) Get(id, blockIndex uint64) []byte {
	k := key{id: id, blockIndex: blockIndex}
	return c.shards[k.shardIdx(len(c.shards))].get(k)
}

// Set inserts a page. If the page is already present the cached copy is
// returned and data is discarded.
func (c *Cache) Set(id, blockIndex uint64, data []byte) []byte {
	k := key{id: id, blockIndex: blockIndex}
	return c.shards[k.shardIdx(len(c.shards))].set(k, data)
}

// EvictFile drops every page belonging to the given file id.
func (c *Cache) EvictFile(id uint64) {
	for i := range c.shards {
		c.shards[i].evictFile(id)
	}
}

// MaxSize returns the max size of the cache.
func (c *Cache) MaxSize() int64 {
	return c.maxSize
}

// Size returns the current space used by the cache.
func (c *Cache) Size() int64 {
	var size int64
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		size += s.size
		s.mu.Unlock()
	}
	return size
}

// Metrics returns the metrics for the cache.
func (c *Cache) Metrics() Metrics {
	var m Metrics
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		m.Count += int64(len(s.m))
		m.Size += s.size
		s.mu.Unlock()
		m.Hits += s.hits.Load()
		m.Misses += s.misses.Load()
	}
	return m
}
