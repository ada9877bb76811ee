// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"slices"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/internal/manifest"
)

// compaction describes a merge of tables from startLevel, together with the
// overlapping tables of outputLevel, into new tables at outputLevel.
type compaction struct {
	reason      string
	manual      bool
	startLevel  int
	outputLevel int
	// inputs[0] holds the tables of startLevel and inputs[1] the overlapping
	// tables of outputLevel.
	inputs [2][]*tableHandle
	// elideTombstones is set when the output level is the last level, where
	// a tombstone no longer shadows anything.
	elideTombstones bool
}

func (c *compaction) inputMetas(i int) []*manifest.TableMetadata {
	metas := make([]*manifest.TableMetadata, len(c.inputs[i]))
	for j, t := range c.inputs[i] {
		metas[j] = t.meta
	}
	return metas
}

func (c *compaction) info(jobID int) CompactionInfo {
	return CompactionInfo{
		JobID:  jobID,
		Reason: c.reason,
		Input: []LevelInfo{
			{Level: c.startLevel, Tables: tableInfos(c.inputMetas(0))},
			{Level: c.outputLevel, Tables: tableInfos(c.inputMetas(1))},
		},
		Output: LevelInfo{Level: c.outputLevel},
	}
}

// newInputIter returns a merging iterator over the compaction inputs, newest
// first: the L0 tables newest first, or the single table of a sorted start
// level, followed by the output level's tables.
func (c *compaction) newInputIter() *mergingIter {
	var iters []base.InternalIterator
	if c.startLevel == 0 {
		for i := len(c.inputs[0]) - 1; i >= 0; i-- {
			iters = append(iters, c.inputs[0][i].newIter())
		}
	} else {
		iters = append(iters, newLevelIter(c.startLevel, makeLayerTables(slices.Clone(c.inputs[0]), true)))
	}
	if len(c.inputs[1]) > 0 {
		iters = append(iters, newLevelIter(c.outputLevel, makeLayerTables(slices.Clone(c.inputs[1]), true)))
	}
	return newMergingIter(iters...)
}

// runCompaction runs the compaction and installs its result. d.workMu must
// be held.
//
// The output tables replace the consumed output level tables in one step,
// and only then are the start level tables removed, so a concurrent reader
// descending the levels never misses a record. The input tables are released
// only once the manifest recording the output has been committed; if the
// commit fails the layers are restored and the output is discarded.
func (d *DB) runCompaction(c *compaction) error {
	jobID := d.newJobID()
	info := c.info(jobID)
	d.opts.EventListener.CompactionBegin(info)
	start := crtime.NowMono()

	outputs, err := d.compact(jobID, c)
	info.Done = true
	info.Duration = start.Elapsed()
	if err != nil {
		info.Err = err
		d.opts.EventListener.CompactionEnd(info)
		return err
	}
	info.Output.Tables = tableInfos(outputs)

	var bytesRead [2]uint64
	for i := range c.inputs {
		bytesRead[i] = manifest.TotalSize(c.inputMetas(i))
	}
	outputSize := manifest.TotalSize(outputs)
	d.mu.Lock()
	d.mu.bgErr = nil
	d.mu.metrics.Compact.Count++
	if c.manual {
		d.mu.metrics.Compact.ManualCount++
	}
	d.mu.metrics.Compact.Duration += info.Duration
	out := &d.mu.metrics.Levels[c.outputLevel]
	out.BytesIn += bytesRead[0]
	out.BytesRead += bytesRead[0] + bytesRead[1]
	out.BytesWritten += outputSize
	out.TablesWritten += uint64(len(outputs))
	d.mu.metrics.Levels[c.startLevel].TablesCompacted += uint64(len(c.inputs[0]))
	out.TablesCompacted += uint64(len(c.inputs[1]))
	d.mu.Unlock()

	d.prom.compactionLatency.Observe(info.Duration.Seconds())
	d.prom.bytesCompacted.Add(float64(outputSize))
	d.opts.EventListener.CompactionEnd(info)
	return nil
}

func (d *DB) compact(jobID int, c *compaction) ([]*manifest.TableMetadata, error) {
	iter := c.newInputIter()
	metas, err := d.writeTables(jobID, "compacting", iter, c.outputLevel, c.elideTombstones)
	if closeErr := iter.Close(); err == nil && closeErr != nil {
		err = closeErr
		d.removeTableFiles(metas)
	}
	if err != nil {
		return nil, err
	}

	outputs, err := d.openTables(metas)
	if err != nil {
		d.removeTableFiles(metas)
		return nil, err
	}

	startLayer, outputLayer := d.layers[c.startLevel], d.layers[c.outputLevel]
	if err := outputLayer.replaceTables(c.inputs[1], outputs); err != nil {
		d.releaseObsolete(jobID, outputs)
		return nil, err
	}
	if err := startLayer.removeTables(c.inputs[0]...); err != nil {
		return nil, d.undoCompaction(jobID, c, outputs, err)
	}
	if err := d.commitManifest(); err != nil {
		if rerr := startLayer.addTables(c.inputs[0]...); rerr != nil {
			return nil, errors.CombineErrors(err, rerr)
		}
		return nil, d.undoCompaction(jobID, c, outputs, err)
	}

	// The layers' references on the inputs are now owned by the compaction.
	for i := range c.inputs {
		d.releaseObsolete(jobID, c.inputs[i])
	}
	return metas, nil
}

// undoCompaction restores the output level tables consumed by a compaction
// whose result could not be installed, and discards its output.
func (d *DB) undoCompaction(jobID int, c *compaction, outputs []*tableHandle, err error) error {
	if rerr := d.layers[c.outputLevel].replaceTables(outputs, c.inputs[1]); rerr != nil {
		return errors.CombineErrors(err, rerr)
	}
	d.releaseObsolete(jobID, outputs)
	return err
}
