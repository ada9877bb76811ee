// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trimdb/trimdb/cache"
)

// LevelMetrics holds per-level metrics such as the number of files and total
// size of the files, and compaction related metrics.
type LevelMetrics struct {
	// The total number of files in the level.
	NumFiles int64
	// The total size in bytes of the files in the level.
	Size uint64
	// The level's compaction score: the number of files relative to the
	// number that triggers a compaction of the level.
	Score float64
	// The number of incoming bytes from other levels read during
	// compactions. For L0 this is the number of memtable bytes flushed.
	BytesIn uint64
	// The number of bytes read for compactions at the level. This includes
	// bytes read from other levels (BytesIn), as well as bytes read for the
	// level.
	BytesRead uint64
	// The number of bytes written during flushes and compactions.
	BytesWritten uint64
	// The number of tables written into the level.
	TablesWritten uint64
	// The number of tables of the level consumed by compactions.
	TablesCompacted uint64
}

// Add updates the counter metrics for the level.
func (m *LevelMetrics) Add(u *LevelMetrics) {
	m.BytesIn += u.BytesIn
	m.BytesRead += u.BytesRead
	m.BytesWritten += u.BytesWritten
	m.TablesWritten += u.TablesWritten
	m.TablesCompacted += u.TablesCompacted
}

// WriteAmp computes the write amplification for compactions at this
// level. Computed as BytesWritten / BytesIn.
func (m *LevelMetrics) WriteAmp() float64 {
	if m.BytesIn == 0 {
		return 0
	}
	return float64(m.BytesWritten) / float64(m.BytesIn)
}

func humanizeBytes(n uint64) string {
	return string(crhumanize.Bytes(n, crhumanize.Compact, crhumanize.OmitI))
}

// format generates a string of the receiver's metrics, formatting it into
// the supplied buffer.
func (m *LevelMetrics) format(buf *bytes.Buffer, score string) {
	fmt.Fprintf(buf, "%6d %7s %7s %7s %7s %7s %7.1f\n",
		m.NumFiles,
		humanizeBytes(m.Size),
		score,
		humanizeBytes(m.BytesIn),
		humanizeBytes(m.BytesRead),
		humanizeBytes(m.BytesWritten),
		m.WriteAmp(),
	)
}

// Metrics holds metrics for various subsystems of the DB such as the block
// cache, flushes, compactions and the LSM levels.
type Metrics struct {
	BlockCache cache.Metrics

	Compact struct {
		// The total number of compactions.
		Count int64
		// The number of compactions that were started by DB.Compact.
		ManualCount int64
		// The total time spent compacting.
		Duration time.Duration
	}

	Flush struct {
		// The total number of flushes.
		Count int64
		// The total time spent flushing.
		Duration time.Duration
	}

	MemTable struct {
		// The number of bytes allocated by memtables, including the mutable
		// memtable and the frozen memtables awaiting flush.
		Size uint64
		// The count of memtables.
		Count int64
	}

	Table struct {
		// The number of open table readers.
		OpenCount int64
	}

	WriteStall struct {
		// The number of times writers were stalled waiting for flushes.
		Count int64
		// The cumulative time writers spent stalled.
		Duration time.Duration
	}

	Levels []LevelMetrics
}

// Total returns the sum of the per-level metrics.
func (m *Metrics) Total() LevelMetrics {
	var total LevelMetrics
	for level := range m.Levels {
		l := &m.Levels[level]
		total.Add(l)
		total.NumFiles += l.NumFiles
		total.Size += l.Size
	}
	// Compute total bytes-in as the bytes flushed from memtables.
	if len(m.Levels) > 0 {
		total.BytesIn = m.Levels[0].BytesIn
	}
	return total
}

// Pretty-print the metrics, showing a line per-level and a total:
//
//	level__files____size___score______in____read___write___w-amp
//	    0      2   4.1MB    0.50   4.0MB      0B   4.1MB     1.0
//	    1      7    14MB    0.70      0B    12MB    14MB     0.0
//	    2      0      0B    0.00      0B      0B      0B     0.0
//	    3      0      0B       -      0B      0B      0B     0.0
//	total      9    18MB       -   4.0MB    12MB    18MB     4.5
//	  flush      4 in 0.2s
//	  compact    1 (0 manual) in 0.3s
//	  memtbl     1 of 4.0MB
//	  tables     9 open
//	  stall      0 in 0.0s
//	  bcache  (...)
//
// Write amplification is computed as bytes-written / bytes-in. The total
// row's bytes-in is the number of bytes flushed from memtables.
func (m *Metrics) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "level__files____size___score______in____read___write___w-amp\n")
	for level := range m.Levels {
		l := &m.Levels[level]
		fmt.Fprintf(&buf, "%5d ", level)
		score := "-"
		if level < len(m.Levels)-1 {
			score = fmt.Sprintf("%.2f", l.Score)
		}
		l.format(&buf, score)
	}
	total := m.Total()
	fmt.Fprintf(&buf, "total ")
	total.format(&buf, "-")
	fmt.Fprintf(&buf, "  flush   %6d in %.1fs\n", m.Flush.Count, m.Flush.Duration.Seconds())
	fmt.Fprintf(&buf, "  compact %6d (%d manual) in %.1fs\n",
		m.Compact.Count, m.Compact.ManualCount, m.Compact.Duration.Seconds())
	fmt.Fprintf(&buf, "  memtbl  %6d of %s\n", m.MemTable.Count, humanizeBytes(m.MemTable.Size))
	fmt.Fprintf(&buf, "  tables  %6d open\n", m.Table.OpenCount)
	fmt.Fprintf(&buf, "  stall   %6d in %.1fs\n", m.WriteStall.Count, m.WriteStall.Duration.Seconds())
	fmt.Fprintf(&buf, "  bcache  %6d blocks, %s, %d hits, %d misses\n",
		m.BlockCache.Count, humanizeBytes(uint64(m.BlockCache.Size)),
		m.BlockCache.Hits, m.BlockCache.Misses)
	return buf.String()
}

// latencyBuckets spans 100µs to roughly 13s.
var latencyBuckets = prometheus.ExponentialBuckets(0.0001, 2, 18)

// promMetrics holds the prometheus collectors exported by a DB.
type promMetrics struct {
	flushLatency      prometheus.Histogram
	compactionLatency prometheus.Histogram
	writeStallLatency prometheus.Histogram
	bytesFlushed      prometheus.Counter
	bytesCompacted    prometheus.Counter
}

func makePromMetrics() promMetrics {
	return promMetrics{
		flushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trimdb",
			Name:      "flush_duration_seconds",
			Help:      "Latency of memtable flushes.",
			Buckets:   latencyBuckets,
		}),
		compactionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trimdb",
			Name:      "compaction_duration_seconds",
			Help:      "Latency of compactions.",
			Buckets:   latencyBuckets,
		}),
		writeStallLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trimdb",
			Name:      "write_stall_duration_seconds",
			Help:      "Time writers spent stalled waiting for memtable flushes.",
			Buckets:   latencyBuckets,
		}),
		bytesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trimdb",
			Name:      "flush_bytes_total",
			Help:      "Bytes written to L0 tables by flushes.",
		}),
		bytesCompacted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trimdb",
			Name:      "compaction_bytes_total",
			Help:      "Bytes written to tables by compactions.",
		}),
	}
}

func (p *promMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.flushLatency,
		p.compactionLatency,
		p.writeStallLatency,
		p.bytesFlushed,
		p.bytesCompacted,
	}
}
