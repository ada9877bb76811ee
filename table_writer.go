// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/internal/manifest"
	"github.com/trimdb/trimdb/sstable"
)

// writeTables streams the sorted records of iter into new tables at the
// given level, rolling to a new table whenever the current one reaches the
// level's target file size. Tombstones are dropped when elideTombstones is
// set, which is only correct when no older record for the key can exist
// below the output level.
//
// The iterator must yield strictly increasing keys. Writing stops at the
// first error, in which case every table created so far is removed. The
// tables are not installed in the LSM; that is up to the caller.
func (d *DB) writeTables(
	jobID int, reason string, iter base.InternalIterator, level int, elideTombstones bool,
) (metas []*manifest.TableMetadata, retErr error) {
	target := uint64(d.opts.Level(level).TargetFileSize)
	l := d.layers[level]

	var w *sstable.Writer
	var fileNum base.FileNum
	var created []string
	defer func() {
		if retErr == nil {
			return
		}
		if w != nil {
			w.Abort()
		}
		for _, path := range created {
			if err := d.opts.FS.Remove(path); err != nil {
				d.opts.Logger.Errorf("[JOB %d] removing %s: %s", jobID, path, err)
			}
		}
		metas = nil
	}()

	finishTable := func() error {
		err := w.Close()
		wm, metaErr := w.Metadata()
		w = nil
		if err == nil {
			err = metaErr
		}
		if err != nil {
			return err
		}
		metas = append(metas, &manifest.TableMetadata{
			Level:    level,
			FileNum:  fileNum,
			Size:     wm.Size,
			Smallest: wm.Smallest,
			Largest:  wm.Largest,
			Count:    wm.Count,
		})
		return nil
	}

	for kv := iter.First(); kv != nil; kv = iter.Next() {
		if kv.Deleted && elideTombstones {
			continue
		}
		if w == nil {
			fileNum = l.nextFileNum()
			path := d.tableCache.path(level, fileNum)
			f, err := d.opts.FS.Create(path)
			if err != nil {
				return nil, errors.Wrapf(err, "trimdb: creating table L%d:%s", level, fileNum)
			}
			created = append(created, path)
			d.opts.EventListener.TableCreated(TableCreateInfo{
				JobID:   jobID,
				Reason:  reason,
				Path:    path,
				Level:   level,
				FileNum: fileNum,
			})
			w = sstable.NewWriter(f, sstable.WriterOptions{
				BloomBitsPerKey: d.opts.BloomBitsPerKey,
			})
		}
		if err := w.Add(kv); err != nil {
			return nil, err
		}
		if w.EstimatedSize() >= target {
			if err := finishTable(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if w != nil {
		if err := finishTable(); err != nil {
			return nil, err
		}
	}
	return metas, nil
}

// openTables opens a reader for every table. On error the readers opened so
// far are closed.
func (d *DB) openTables(metas []*manifest.TableMetadata) ([]*tableHandle, error) {
	handles := make([]*tableHandle, 0, len(metas))
	for _, m := range metas {
		t, err := d.tableCache.open(m)
		if err != nil {
			for _, t := range handles {
				t.unref()
			}
			return nil, err
		}
		handles = append(handles, t)
	}
	return handles, nil
}

// removeTableFiles removes tables that were written but never opened.
func (d *DB) removeTableFiles(metas []*manifest.TableMetadata) {
	for _, m := range metas {
		path := d.tableCache.path(m.Level, m.FileNum)
		if err := d.opts.FS.Remove(path); err != nil {
			d.opts.Logger.Errorf("removing %s: %s", path, err)
		}
	}
}

// releaseObsolete marks the tables obsolete and releases the caller's
// reference on each. A table's file is removed once the last reader
// releases it.
func (d *DB) releaseObsolete(jobID int, handles []*tableHandle) {
	for _, t := range handles {
		t.markObsolete(jobID)
		t.unref()
	}
}
