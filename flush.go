// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/internal/manifest"
)

// flush1 flushes the oldest queued memtable to L0. It returns false if no
// memtable is queued. d.workMu must be held.
//
// The new tables are installed in L0 and the manifest is committed before
// the memtable is removed from the queue, so a reader that no longer sees
// the memtable is guaranteed to see its tables.
func (d *DB) flush1() (bool, error) {
	list := d.mem.Load()
	if len(list.queue) == 0 {
		return false, nil
	}
	m := list.queue[0]
	// Writers that referenced the memtable before it was frozen may still be
	// linking nodes.
	m.waitForWriters()

	jobID := d.newJobID()
	info := FlushInfo{
		JobID:      jobID,
		Reason:     m.rotateReason,
		InputBytes: m.inuseBytes(),
	}
	d.opts.EventListener.FlushBegin(info)
	start := crtime.NowMono()

	err := func() error {
		if m.empty() {
			return nil
		}
		iter := m.newIter()
		metas, err := d.writeTables(jobID, "flushing", iter, 0 /* level */, false /* elideTombstones */)
		if closeErr := iter.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		info.Output = tableInfos(metas)
		return d.installFlushedTables(jobID, metas)
	}()

	info.Done = true
	info.Duration = start.Elapsed()
	if err != nil {
		info.Err = err
		d.opts.EventListener.FlushEnd(info)
		return false, err
	}

	d.mu.Lock()
	cur := d.mem.Load()
	if len(cur.queue) == 0 || cur.queue[0] != m {
		d.mu.Unlock()
		return false, errors.AssertionFailedf("trimdb: flushed memtable %d is not at the head of the queue", m.id)
	}
	d.mem.Store(&memTableList{mutable: cur.mutable, queue: cur.queue[1:]})
	m.markFlushed()
	d.mu.bgErr = nil
	d.mu.metrics.Flush.Count++
	d.mu.metrics.Flush.Duration += info.Duration
	l0 := &d.mu.metrics.Levels[0]
	l0.BytesIn += info.InputBytes
	l0.BytesWritten += totalSize(info.Output)
	l0.TablesWritten += uint64(len(info.Output))
	d.maybeEndWriteStallLocked()
	d.mu.cond.Broadcast()
	d.mu.Unlock()

	d.prom.flushLatency.Observe(info.Duration.Seconds())
	d.prom.bytesFlushed.Add(float64(totalSize(info.Output)))
	d.opts.EventListener.FlushEnd(info)
	return true, nil
}

// installFlushedTables opens the tables written by a flush, adds them to L0
// and commits the manifest. On failure L0 is left as it was and the tables
// are removed.
func (d *DB) installFlushedTables(jobID int, metas []*manifest.TableMetadata) error {
	handles, err := d.openTables(metas)
	if err != nil {
		d.removeTableFiles(metas)
		return err
	}
	l0 := d.layers[0]
	if err := l0.addTables(handles...); err != nil {
		d.releaseObsolete(jobID, handles)
		return err
	}
	if err := d.commitManifest(); err != nil {
		if rerr := l0.removeTables(handles...); rerr != nil {
			return errors.CombineErrors(err, rerr)
		}
		d.releaseObsolete(jobID, handles)
		return err
	}
	return nil
}
