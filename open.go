// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/trimdb/trimdb/cache"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/internal/manifest"
)

// ErrDBDoesNotExist is returned when a read-only DB is opened in a directory
// holding no MANIFEST.
var ErrDBDoesNotExist = errors.New("trimdb: database does not exist")

// Open opens a DB whose files live in the given directory.
//
// The MANIFEST lists the live tables. Every live table is opened, and table
// and temporary files the MANIFEST does not list are removed: they are the
// output of a flush or compaction that did not commit, or inputs that a
// committed compaction superseded.
func Open(dirname string, opts *Options) (db *DB, err error) {
	opts = opts.Clone()
	opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	d := &DB{
		dirname:       dirname,
		opts:          opts,
		prom:          makePromMetrics(),
		compactCursor: make([][]byte, opts.NumLevels()),
	}
	d.mu.cond.L = &d.mu.Mutex
	d.mu.metrics.Levels = make([]LevelMetrics, opts.NumLevels())
	d.initBackgroundWork()

	fs := opts.FS
	if !opts.ReadOnly {
		if err := fs.MkdirAll(dirname, 0755); err != nil {
			return nil, err
		}
	}
	_, err = fs.Stat(fs.PathJoin(dirname, base.ManifestFilename()))
	exists := err == nil
	if err != nil && !oserror.IsNotExist(err) {
		return nil, err
	}
	if !exists && opts.ReadOnly {
		return nil, errors.Wrapf(ErrDBDoesNotExist, "dirname=%q", dirname)
	}
	fileLock, err := fs.Lock(fs.PathJoin(dirname, base.LockFilename()))
	if err != nil {
		return nil, errors.Wrapf(err, "trimdb: locking %q", dirname)
	}
	d.fileLock = fileLock

	if opts.Cache != nil {
		d.cache = opts.Cache
		d.cache.Ref()
	} else {
		d.cache = cache.New(opts.CacheSize)
	}
	d.tableCache.init(dirname, fs, d.cache, opts)

	var handles []*tableHandle
	defer func() {
		if err == nil {
			return
		}
		for _, t := range handles {
			t.unref()
		}
		d.cache.Unref()
		_ = d.fileLock.Close()
	}()

	tables, err := manifest.Load(fs, dirname)
	if err != nil {
		return nil, err
	}
	v, err := manifest.NewVersion(opts.NumLevels(), tables)
	if err != nil {
		return nil, err
	}

	d.layers = make([]*layer, opts.NumLevels())
	for level := range d.layers {
		var levelHandles []*tableHandle
		for _, m := range v.Levels[level] {
			t, err := d.tableCache.open(m)
			if err != nil {
				return nil, err
			}
			handles = append(handles, t)
			levelHandles = append(levelHandles, t)
		}
		d.layers[level] = newLayer(level, opts.Level(level), levelHandles)
	}

	if err := d.scanObsoleteFiles(v); err != nil {
		return nil, err
	}
	if !exists {
		if err := d.commitManifest(); err != nil {
			return nil, err
		}
	}

	d.mu.nextMemID++
	d.mem.Store(&memTableList{mutable: newMemTable(opts.MemTableSize, d.mu.nextMemID)})
	if !opts.ReadOnly {
		d.startBackgroundWork()
	}
	return d, nil
}

// scanObsoleteFiles seeds the file number generators past every table file
// found in the directory and, unless the DB is read-only, removes the files
// the MANIFEST does not reference.
func (d *DB) scanObsoleteFiles(v *manifest.Version) error {
	fs := d.opts.FS
	ls, err := fs.List(d.dirname)
	if err != nil {
		return err
	}
	type tableID struct {
		level   int
		fileNum base.FileNum
	}
	live := make(map[tableID]struct{})
	for _, m := range v.Tables() {
		live[tableID{m.Level, m.FileNum}] = struct{}{}
	}

	for _, name := range ls {
		fileType, level, fileNum, ok := base.ParseFilename(name)
		if !ok {
			continue
		}
		switch fileType {
		case base.FileTypeTable:
			if level < len(d.layers) {
				d.layers[level].markFileNumUsed(fileNum)
			}
			if _, ok := live[tableID{level, fileNum}]; ok || d.opts.ReadOnly {
				continue
			}
			path := fs.PathJoin(d.dirname, name)
			err := fs.Remove(path)
			d.opts.EventListener.TableDeleted(TableDeleteInfo{
				Path:    path,
				Level:   level,
				FileNum: fileNum,
				Err:     err,
			})
		case base.FileTypeTemp:
			if d.opts.ReadOnly {
				continue
			}
			path := fs.PathJoin(d.dirname, name)
			if err := fs.Remove(path); err != nil {
				d.opts.Logger.Errorf("removing %s: %s", path, err)
			}
		}
	}
	return nil
}
