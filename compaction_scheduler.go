// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

// The DB runs a single background worker. The worker is woken whenever a
// memtable is queued for flushing, and on Open. Each time it wakes it
// flushes every queued memtable, oldest first, and then runs compactions
// until no level needs one. Flushes and compactions, whether run by the
// worker, by Compact or by Close, are serialized by DB.workMu.

func (d *DB) initBackgroundWork() {
	d.bg.workCh = make(chan struct{}, 1)
	d.bg.closeCh = make(chan struct{})
}

// startBackgroundWork starts the worker goroutine. It is not called for
// read-only DBs.
func (d *DB) startBackgroundWork() {
	d.bg.wg.Add(1)
	go d.backgroundLoop()
	d.maybeScheduleWork()
}

// maybeScheduleWork wakes the worker. It never blocks: a wakeup that is
// already pending covers this one.
func (d *DB) maybeScheduleWork() {
	select {
	case d.bg.workCh <- struct{}{}:
	default:
	}
}

func (d *DB) closing() bool {
	select {
	case <-d.bg.closeCh:
		return true
	default:
		return false
	}
}

func (d *DB) backgroundLoop() {
	defer d.bg.wg.Done()
	for {
		select {
		case <-d.bg.closeCh:
			return
		case <-d.bg.workCh:
			d.doBackgroundWork()
		}
	}
}

func (d *DB) doBackgroundWork() {
	d.workMu.Lock()
	defer d.workMu.Unlock()
	for !d.closing() {
		flushed, err := d.flush1()
		if err != nil {
			d.reportBackgroundError(err)
			return
		}
		if flushed {
			continue
		}
		if d.opts.DisableAutomaticCompactions {
			return
		}
		c := d.pickCompaction(false /* manual */)
		if c == nil {
			return
		}
		if err := d.runCompaction(c); err != nil {
			d.reportBackgroundError(err)
			return
		}
	}
}

// reportBackgroundError records err as the sticky background error and wakes
// the writers and flushers waiting on the outcome of background work.
func (d *DB) reportBackgroundError(err error) {
	d.mu.Lock()
	d.mu.bgErr = err
	d.mu.cond.Broadcast()
	d.mu.Unlock()
	d.opts.EventListener.BackgroundError(err)
}
