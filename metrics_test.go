// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/cache"
	"github.com/trimdb/trimdb/vfs"
)

func exampleMetrics() Metrics {
	var m Metrics
	m.BlockCache = cache.Metrics{Size: 1 << 20, Count: 8, Hits: 5, Misses: 3}
	m.Compact.Count = 1
	m.Compact.Duration = 3 * time.Second
	m.Flush.Count = 2
	m.Flush.Duration = 2 * time.Second
	m.MemTable.Count = 1
	m.MemTable.Size = 4 << 20
	m.Table.OpenCount = 3
	m.WriteStall.Count = 4
	m.WriteStall.Duration = time.Second
	m.Levels = make([]LevelMetrics, 3)
	m.Levels[0] = LevelMetrics{NumFiles: 1, Size: 1000, Score: 0.25, BytesIn: 2000, BytesWritten: 2000, TablesWritten: 2}
	m.Levels[1] = LevelMetrics{NumFiles: 2, Size: 3000, Score: 0.2, BytesIn: 1000, BytesRead: 1500, BytesWritten: 3000, TablesWritten: 2}
	m.Levels[2] = LevelMetrics{}
	return m
}

func TestMetricsTotal(t *testing.T) {
	m := exampleMetrics()
	total := m.Total()
	require.EqualValues(t, 3, total.NumFiles)
	require.EqualValues(t, 4000, total.Size)
	require.EqualValues(t, 2000, total.BytesIn)
	require.EqualValues(t, 5000, total.BytesWritten)
	require.EqualValues(t, 1500, total.BytesRead)
	require.EqualValues(t, 4, total.TablesWritten)
	require.Equal(t, 2.5, total.WriteAmp())
	require.Equal(t, 3.0, m.Levels[1].WriteAmp())
	require.Equal(t, 0.0, m.Levels[2].WriteAmp())
}

func TestMetricsString(t *testing.T) {
	m := exampleMetrics()
	s := m.String()
	for _, c := range []string{
		"level__files____size___score______in____read___write___w-amp\n",
		"    0      1 ",
		"   0.25 ",
		"    1      2 ",
		"total      3 ",
		"  flush        2 in 2.0s\n",
		"  compact      1 (0 manual) in 3.0s\n",
		"  memtbl       1 of ",
		"  tables       3 open\n",
		"  stall        4 in 1.0s\n",
		"  bcache       8 blocks, ",
		", 5 hits, 3 misses\n",
	} {
		require.Contains(t, s, c)
	}
}

func collect(t *testing.T, c prometheus.Collector) []*dto.Metric {
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	var out []*dto.Metric
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		out = append(out, &pb)
	}
	return out
}

func TestPrometheusCollectors(t *testing.T) {
	defer leaktest.AfterTest(t)()

	opts := testOptions(vfs.NewMem())
	opts.DisableAutomaticCompactions = true
	d := openTestDB(t, opts)
	defer func() { require.NoError(t, d.Close()) }()

	reg := prometheus.NewRegistry()
	for _, c := range d.Collectors() {
		require.NoError(t, reg.Register(c))
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, d.Set([]byte{byte('a' + i)}, []byte("value")))
		require.NoError(t, d.Flush())
	}
	require.NoError(t, d.Compact())

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		byName[f.GetName()] = f
	}
	require.Len(t, byName, 5)

	flush := byName["trimdb_flush_duration_seconds"]
	require.NotNil(t, flush)
	require.EqualValues(t, 2, flush.GetMetric()[0].GetHistogram().GetSampleCount())

	compaction := byName["trimdb_compaction_duration_seconds"]
	require.NotNil(t, compaction)
	require.EqualValues(t, 1, compaction.GetMetric()[0].GetHistogram().GetSampleCount())

	m := d.Metrics()
	flushed := collect(t, d.prom.bytesFlushed)
	require.Len(t, flushed, 1)
	require.Equal(t, float64(m.Levels[0].BytesWritten), flushed[0].GetCounter().GetValue())
	compacted := collect(t, d.prom.bytesCompacted)
	require.Equal(t, float64(m.Levels[1].BytesWritten), compacted[0].GetCounter().GetValue())

	stalls := collect(t, d.prom.writeStallLatency)
	require.EqualValues(t, 0, stalls[0].GetHistogram().GetSampleCount())
}
