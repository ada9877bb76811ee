// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/internal/base"
)

func TestEventFormatting(t *testing.T) {
	tables := []TableInfo{
		{Level: 0, FileNum: 3, Size: 100, Smallest: []byte("a"), Largest: []byte("c")},
		{Level: 0, FileNum: 4, Size: 200, Smallest: []byte("b"), Largest: []byte("d")},
	}

	testCases := []struct {
		info     redact.SafeFormatter
		contains []string
	}{
		{
			info:     FlushInfo{JobID: 1, Reason: "manual", InputBytes: 1 << 10},
			contains: []string{"[JOB 1] flushing memtable (", ") to L0 (manual)"},
		},
		{
			info: FlushInfo{JobID: 1, Output: tables, Done: true, Duration: time.Second},
			contains: []string{
				"[JOB 1] flushed memtable (", "to L0 [000003 000004]", "in 1.0s, output rate",
			},
		},
		{
			info:     FlushInfo{JobID: 1, Done: true, Err: errors.New("boom")},
			contains: []string{"[JOB 1] flush error: boom"},
		},
		{
			info: CompactionInfo{
				JobID:  2,
				Reason: "default",
				Input:  []LevelInfo{{Level: 0, Tables: tables}, {Level: 1}},
				Output: LevelInfo{Level: 1},
			},
			contains: []string{"[JOB 2] compacting(default) L0 [000003 000004] (", " + L1 [] ("},
		},
		{
			info: CompactionInfo{
				JobID:  2,
				Reason: "manual",
				Input:  []LevelInfo{{Level: 0, Tables: tables}},
				Output: LevelInfo{Level: 1, Tables: []TableInfo{{Level: 1, FileNum: 7, Size: 300}}},
				Done:   true,
			},
			contains: []string{"[JOB 2] compacted(manual) L0 [000003 000004]", "-> L1 [000007]", ", input "},
		},
		{
			info:     CompactionInfo{JobID: 2, Reason: "default", Output: LevelInfo{Level: 2}, Done: true, Err: errors.New("boom")},
			contains: []string{"[JOB 2] compaction(default) to L2 error: boom"},
		},
		{
			info:     TableCreateInfo{JobID: 5, Reason: "flushing", Level: 0, FileNum: 9},
			contains: []string{"[JOB 5] flushing: sstable created L0:000009"},
		},
		{
			info:     TableDeleteInfo{JobID: 5, Level: 2, FileNum: 12},
			contains: []string{"[JOB 5] sstable deleted L2:000012"},
		},
		{
			info:     TableDeleteInfo{JobID: 5, Level: 2, FileNum: 12, Err: errors.New("boom")},
			contains: []string{"[JOB 5] sstable delete error L2:000012: boom"},
		},
		{
			info:     WriteStallBeginInfo{Reason: "memtable count limit reached"},
			contains: []string{"write stall beginning: memtable count limit reached"},
		},
	}
	for _, tc := range testCases {
		s := redact.StringWithoutMarkers(tc.info)
		for _, c := range tc.contains {
			require.Contains(t, s, c)
		}
		// Event details other than errors are safe for logging.
		if !strings.Contains(s, "error") {
			require.Equal(t, s, string(redact.Sprint(tc.info).Redact()))
		}
	}
}

func TestEventListenerEnsureDefaults(t *testing.T) {
	var l EventListener
	l.EnsureDefaults(nil)
	l.BackgroundError(errors.New("ignored"))
	l.FlushBegin(FlushInfo{})
	l.WriteStallEnd()

	var logger base.InMemLogger
	l = EventListener{}
	l.EnsureDefaults(&logger)
	l.BackgroundError(errors.New("boom"))
	require.Equal(t, "background error: boom\n", logger.String())
}

func TestTeeEventListener(t *testing.T) {
	var a, b []string
	tee := TeeEventListener(
		EventListener{
			FlushEnd: func(info FlushInfo) { a = append(a, "flush-end") },
		},
		EventListener{
			FlushEnd:      func(info FlushInfo) { b = append(b, "flush-end") },
			WriteStallEnd: func() { b = append(b, "stall-end") },
		},
	)
	tee.FlushEnd(FlushInfo{})
	tee.WriteStallEnd()
	tee.CompactionBegin(CompactionInfo{})
	require.Equal(t, []string{"flush-end"}, a)
	require.Equal(t, []string{"flush-end", "stall-end"}, b)
}

func TestLoggingEventListener(t *testing.T) {
	var logger base.InMemLogger
	l := MakeLoggingEventListener(&logger)
	l.TableCreated(TableCreateInfo{JobID: 1, Reason: "compacting", Level: 1, FileNum: 2})
	l.WriteStallBegin(WriteStallBeginInfo{Reason: "memtable count limit reached"})
	l.WriteStallEnd()
	require.Equal(t, `[JOB 1] compacting: sstable created L1:000002
write stall beginning: memtable count limit reached
write stall ending
`, logger.String())
}
