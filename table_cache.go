// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/cache"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/internal/invariants"
	"github.com/trimdb/trimdb/internal/manifest"
	"github.com/trimdb/trimdb/sstable"
	"github.com/trimdb/trimdb/vfs"
)

// tableCache opens table readers and tracks the handles of every open
// table.
type tableCache struct {
	dirname  string
	fs       vfs.FS
	cache    *cache.Cache
	listener *EventListener
	logger   Logger

	// openTables is the number of open table readers.
	openTables atomic.Int64
}

func (c *tableCache) init(dirname string, fs vfs.FS, bc *cache.Cache, opts *Options) {
	c.dirname = dirname
	c.fs = fs
	c.cache = bc
	c.listener = opts.EventListener
	c.logger = opts.Logger
}

func (c *tableCache) path(level int, fileNum base.FileNum) string {
	return base.MakeFilepath(c.fs.PathJoin, c.dirname, level, fileNum)
}

// open opens the table described by meta. The returned handle holds a single
// reference, which is owned by the caller.
func (c *tableCache) open(meta *manifest.TableMetadata) (*tableHandle, error) {
	path := c.path(meta.Level, meta.FileNum)
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "trimdb: opening table L%d:%s", meta.Level, meta.FileNum)
	}
	r, err := sstable.NewReader(f, sstable.ReaderOptions{
		Cache:    c.cache,
		Filename: path,
	})
	if err != nil {
		return nil, err
	}
	t := &tableHandle{
		meta:   meta,
		reader: r,
		tc:     c,
	}
	t.refs.Store(1)
	c.openTables.Add(1)
	invariants.SetFinalizer(t, checkTableHandle)
	return t, nil
}

// checkTableHandle is a finalizer that reports table handles garbage
// collected while still referenced.
func checkTableHandle(t *tableHandle) {
	if v := t.refs.Load(); v != 0 {
		fmt.Fprintf(os.Stderr, "table L%d:%s has %d unreleased references\n",
			t.meta.Level, t.meta.FileNum, v)
		os.Exit(1)
	}
}

// A tableHandle is an open table shared by the storage layers and the
// iterators reading it. A layer's table array holds one reference; readers
// take another for the duration of a lookup or an iteration. When the last
// reference is released the reader is closed, and the file is removed if the
// table was marked obsolete by the compaction that superseded it.
type tableHandle struct {
	meta   *manifest.TableMetadata
	reader *sstable.Reader
	tc     *tableCache
	refs   atomic.Int32
	// obsolete is set once the table is no longer part of the LSM. The file
	// is removed when the last reference is released.
	obsolete atomic.Bool
	// jobID is the job that marked the table obsolete.
	jobID int
}

// tryRef takes a reference unless the handle has already been released. A
// handle whose reference count reached zero can never be revived, so a
// reader that fails to reference a table must reload the layer's table array.
func (t *tableHandle) tryRef() bool {
	for {
		v := t.refs.Load()
		if v <= 0 {
			return false
		}
		if t.refs.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

func (t *tableHandle) unref() {
	switch v := t.refs.Add(-1); {
	case v < 0:
		panic(errors.AssertionFailedf("trimdb: inconsistent reference count for table L%d:%s: %d",
			t.meta.Level, t.meta.FileNum, v))
	case v == 0:
		t.release()
	}
}

// markObsolete records that the table has been superseded. It must be called
// before the layer's reference is released.
func (t *tableHandle) markObsolete(jobID int) {
	t.jobID = jobID
	t.obsolete.Store(true)
}

func (t *tableHandle) release() {
	c := t.tc
	if err := t.reader.Close(); err != nil {
		c.logger.Errorf("closing table L%d:%s: %s", t.meta.Level, t.meta.FileNum, err)
	}
	c.openTables.Add(-1)
	if !t.obsolete.Load() {
		return
	}
	path := c.path(t.meta.Level, t.meta.FileNum)
	err := c.fs.Remove(path)
	c.listener.TableDeleted(TableDeleteInfo{
		JobID:   t.jobID,
		Path:    path,
		Level:   t.meta.Level,
		FileNum: t.meta.FileNum,
		Err:     err,
	})
}

// get looks up key in the table. hash is base.Hash64(key).
func (t *tableHandle) get(key []byte, hash uint64) ([]byte, base.SearchResult, error) {
	if !t.meta.ContainsKey(key) {
		return nil, base.NotFound, nil
	}
	return t.reader.Get(key, hash)
}

// newIter returns an iterator over the table. The caller must hold a
// reference for the lifetime of the iterator.
func (t *tableHandle) newIter() *sstable.Iter {
	return t.reader.NewIter()
}

func (t *tableHandle) String() string {
	return t.meta.String()
}
