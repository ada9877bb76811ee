// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/vfs"
)

func TestOptionsDefaults(t *testing.T) {
	opts := &Options{}
	opts.EnsureDefaults()
	require.NoError(t, opts.Validate())
	require.Equal(t, defaultNumLevels, opts.NumLevels())
	require.Equal(t, vfs.Default, opts.FS)
	require.NotNil(t, opts.EventListener.FlushEnd)

	expected := `[Options]
  bloom_bits_per_key=10
  cache_size=8388608
  disable_automatic_compactions=false
  l0_compaction_threshold=4
  mem_table_size=4194304
  mem_table_stop_writes_threshold=4
  read_only=false

[Level "0"]
  target_file_size=2097152

[Level "1"]
  max_files=10
  target_file_size=2097152

[Level "2"]
  max_files=100
  target_file_size=2097152

[Level "3"]
  max_files=1000
  target_file_size=2097152
`
	require.Equal(t, expected, opts.String())
}

func TestOptionsLevelDefaults(t *testing.T) {
	opts := &Options{
		Levels: []LevelOptions{{TargetFileSize: 1 << 10}, {MaxFiles: 3}, {}, {TargetFileSize: 8 << 10}, {}},
	}
	opts.EnsureDefaults()
	require.Equal(t, []LevelOptions{
		{MaxFiles: 10, TargetFileSize: 1 << 10},
		{MaxFiles: 3, TargetFileSize: 1 << 10},
		{MaxFiles: 30, TargetFileSize: 1 << 10},
		{MaxFiles: 300, TargetFileSize: 8 << 10},
		{MaxFiles: 3000, TargetFileSize: 8 << 10},
	}, opts.Levels)
	require.Equal(t, LevelOptions{MaxFiles: 30, TargetFileSize: 1 << 10}, opts.Level(2))
}

func TestOptionsClone(t *testing.T) {
	listener := &EventListener{}
	opts := &Options{Levels: make([]LevelOptions, 3), EventListener: listener}
	clone := opts.Clone()
	clone.EnsureDefaults()

	// EnsureDefaults on the clone leaves the original untouched.
	require.Equal(t, LevelOptions{}, opts.Levels[1])
	require.Nil(t, listener.FlushEnd)
	require.Equal(t, 10, clone.Levels[1].MaxFiles)

	var nilOpts *Options
	require.NotNil(t, nilOpts.Clone())
}

func TestOptionsValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(o *Options)
		errStr string
	}{
		{"levels", func(o *Options) { o.Levels = o.Levels[:1] }, "must hold at least L0 and one sorted level"},
		{"memtable-small", func(o *Options) { o.MemTableSize = 1 << 10 }, "MemTableSize ("},
		{"memtable-large", func(o *Options) { o.MemTableSize = maxMemTableSize }, "MemTableSize ("},
		{"stop-writes", func(o *Options) { o.MemTableStopWritesThreshold = 1 }, "MemTableStopWritesThreshold (1) must be >= 2"},
		{"max-files", func(o *Options) { o.Levels[2].MaxFiles = -1 }, "Levels[2].MaxFiles (-1) must be >= 1"},
		{"target-file-size", func(o *Options) { o.Levels[1].TargetFileSize = -5 }, "Levels[1].TargetFileSize (-5) must be >= 1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := &Options{}
			opts.EnsureDefaults()
			tc.modify(opts)
			err := opts.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errStr)
		})
	}
}

func TestIterOptionsNil(t *testing.T) {
	var o *IterOptions
	require.Nil(t, o.GetLowerBound())
	require.Nil(t, o.GetUpperBound())
	o = &IterOptions{LowerBound: []byte("a"), UpperBound: []byte("b")}
	require.Equal(t, []byte("a"), o.GetLowerBound())
	require.Equal(t, []byte("b"), o.GetUpperBound())
}
