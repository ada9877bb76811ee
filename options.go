// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/trimdb/trimdb/cache"
	"github.com/trimdb/trimdb/internal/arenaskl"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/vfs"
)

const (
	cacheDefaultSize       = 8 << 20 // 8 MB
	memTableDefaultSize    = 4 << 20 // 4 MB
	targetFileDefaultSize  = 2 << 20 // 2 MB
	defaultNumLevels       = 4
	defaultLevelMultiplier = 10
	maxMemTableSize        = arenaskl.MaxArenaSize
	// minMemTableSize leaves room for at least one maximally sized entry.
	minMemTableSize = 64 << 10
)

// IterOptions hold the optional per-query parameters for NewIter.
//
// Like Options, a nil *IterOptions is valid and means to use the default
// values.
type IterOptions struct {
	// LowerBound specifies the smallest key (inclusive) that the iterator
	// will return during iteration. If the iterator is seeked or iterated
	// past this boundary the iterator will return Valid()==false.
	LowerBound []byte
	// UpperBound specifies the largest key (exclusive) that the iterator
	// will return during iteration. If the iterator is seeked or iterated
	// past this boundary the iterator will return Valid()==false.
	UpperBound []byte
}

// GetLowerBound returns the LowerBound or nil if the receiver is nil.
func (o *IterOptions) GetLowerBound() []byte {
	if o == nil {
		return nil
	}
	return o.LowerBound
}

// GetUpperBound returns the UpperBound or nil if the receiver is nil.
func (o *IterOptions) GetUpperBound() []byte {
	if o == nil {
		return nil
	}
	return o.UpperBound
}

// LevelOptions holds the optional per-level parameters.
type LevelOptions struct {
	// MaxFiles is the number of tables a sorted level may hold before one of
	// its tables is compacted into the next level. It is ignored for L0,
	// which uses Options.L0CompactionThreshold, and for the last level,
	// which is unbounded.
	//
	// The default value is 10 for L1, and ten times the value of the
	// previous level for all other levels.
	MaxFiles int

	// TargetFileSize is the target file size for the level. Flushes and
	// compactions roll to a new table once the table being written reaches
	// this size.
	//
	// The default value is 2MB for L0, and the value from the previous level
	// for all other levels.
	TargetFileSize int64
}

// EnsureDefaults ensures that the default values for all of the options
// have been initialized. It is valid to call EnsureDefaults on a nil
// receiver. A non-nil result will always be returned.
func (o *LevelOptions) EnsureDefaults(level int, prev *LevelOptions) *LevelOptions {
	if o == nil {
		o = &LevelOptions{}
	}
	if o.MaxFiles <= 0 {
		switch {
		case level <= 1 || prev == nil:
			o.MaxFiles = defaultLevelMultiplier
		default:
			o.MaxFiles = prev.MaxFiles * defaultLevelMultiplier
		}
	}
	if o.TargetFileSize <= 0 {
		if prev == nil {
			o.TargetFileSize = targetFileDefaultSize
		} else {
			o.TargetFileSize = prev.TargetFileSize
		}
	}
	return o
}

// Options holds the optional parameters for configuring trimdb. These
// options apply to the DB at large; per-query options are defined by the
// IterOptions type.
type Options struct {
	// BloomBitsPerKey sizes the bloom filter written into every table.
	//
	// The default value is 10, for a false positive rate of about 1%.
	BloomBitsPerKey uint32

	// Cache is used to cache verified table blocks. If nil, a cache of
	// CacheSize bytes is created and owned by the DB.
	Cache *cache.Cache

	// CacheSize is the size of the block cache created when Cache is nil.
	//
	// The default value is 8MB.
	CacheSize int64

	// DisableAutomaticCompactions dictates whether automatic compactions
	// are scheduled or not. The default is false (enabled). Flushes still
	// run, and manual compactions via DB.Compact are unaffected.
	DisableAutomaticCompactions bool

	// EventListener provides hooks to listening to significant DB events
	// such as flushes and compactions.
	EventListener *EventListener

	// FS provides the interface for persistent file storage.
	//
	// The default value uses the underlying operating system's file system.
	FS vfs.FS

	// L0CompactionThreshold is the number of L0 tables that triggers a
	// compaction of L0 into L1.
	//
	// The default value is 4.
	L0CompactionThreshold int

	// Levels hold the per-level options. The number of levels is
	// len(Levels). Levels[0] describes L0, the unsorted level; every deeper
	// level is sorted.
	//
	// The default is 4 levels.
	Levels []LevelOptions

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// MemTableSize is the arena capacity of a memtable. A memtable is
	// rotated and queued for flushing once its arena is exhausted.
	//
	// The default value is 4MB.
	MemTableSize uint64

	// MemTableStopWritesThreshold is a hard limit on the number of frozen
	// memtables awaiting flush. Writes stall while the limit is reached.
	//
	// The default value is 4.
	MemTableStopWritesThreshold int

	// ReadOnly indicates that the DB should be opened in read-only mode.
	// Writes, flushes and compactions return an error, and no background
	// work is started.
	ReadOnly bool
}

// EnsureDefaults ensures that the default values for all options are set if
// a valid value was not already specified.
func (o *Options) EnsureDefaults() {
	if o.BloomBitsPerKey == 0 {
		o.BloomBitsPerKey = 10
	}
	if o.Cache == nil && o.CacheSize == 0 {
		o.CacheSize = cacheDefaultSize
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.L0CompactionThreshold <= 0 {
		o.L0CompactionThreshold = 4
	}
	if len(o.Levels) == 0 {
		o.Levels = make([]LevelOptions, defaultNumLevels)
	}
	for i := range o.Levels {
		var prev *LevelOptions
		if i > 0 {
			prev = &o.Levels[i-1]
		}
		o.Levels[i].EnsureDefaults(i, prev)
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	if o.MemTableSize == 0 {
		o.MemTableSize = memTableDefaultSize
	}
	if o.MemTableStopWritesThreshold <= 0 {
		o.MemTableStopWritesThreshold = 4
	}
}

// Clone creates a shallow-copy of the supplied options. The Levels slice is
// copied so that EnsureDefaults on the clone never mutates the caller's
// options.
func (o *Options) Clone() *Options {
	n := &Options{}
	if o != nil {
		*n = *o
		n.Levels = append([]LevelOptions(nil), o.Levels...)
		if o.EventListener != nil {
			l := *o.EventListener
			n.EventListener = &l
		}
	}
	return n
}

// Level returns the LevelOptions for the specified level.
func (o *Options) Level(level int) LevelOptions {
	return o.Levels[level]
}

// NumLevels returns the number of levels, including L0.
func (o *Options) NumLevels() int {
	return len(o.Levels)
}

// Validate verifies that the options are mutually consistent. For example,
// the memtable must be able to hold at least one entry of the maximum size.
// Validate assumes EnsureDefaults has been called.
func (o *Options) Validate() error {
	var buf strings.Builder
	if len(o.Levels) < 2 {
		fmt.Fprintf(&buf, "Levels (%d) must hold at least L0 and one sorted level\n", len(o.Levels))
	}
	if len(o.Levels) > 256 {
		fmt.Fprintf(&buf, "Levels (%d) must be <= 256\n", len(o.Levels))
	}
	if o.MemTableSize >= maxMemTableSize {
		fmt.Fprintf(&buf, "MemTableSize (%s) must be < %s\n",
			crhumanize.Bytes(o.MemTableSize, crhumanize.Compact), crhumanize.Bytes(uint64(maxMemTableSize), crhumanize.Compact))
	}
	if o.MemTableSize < minMemTableSize {
		fmt.Fprintf(&buf, "MemTableSize (%s) must be >= %s\n",
			crhumanize.Bytes(o.MemTableSize, crhumanize.Compact), crhumanize.Bytes(uint64(minMemTableSize), crhumanize.Compact))
	}
	if o.MemTableStopWritesThreshold < 2 {
		fmt.Fprintf(&buf, "MemTableStopWritesThreshold (%d) must be >= 2\n",
			o.MemTableStopWritesThreshold)
	}
	if o.L0CompactionThreshold < 1 {
		fmt.Fprintf(&buf, "L0CompactionThreshold (%d) must be >= 1\n", o.L0CompactionThreshold)
	}
	for i := range o.Levels {
		if i > 0 && o.Levels[i].MaxFiles < 1 {
			fmt.Fprintf(&buf, "Levels[%d].MaxFiles (%d) must be >= 1\n", i, o.Levels[i].MaxFiles)
		}
		if o.Levels[i].TargetFileSize < 1 {
			fmt.Fprintf(&buf, "Levels[%d].TargetFileSize (%d) must be >= 1\n", i, o.Levels[i].TargetFileSize)
		}
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

// String returns a human-readable rendering of the options, one option per
// line, in the "[Options]" section style.
func (o *Options) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "[Options]\n")
	fmt.Fprintf(&buf, "  bloom_bits_per_key=%d\n", o.BloomBitsPerKey)
	fmt.Fprintf(&buf, "  cache_size=%d\n", o.CacheSize)
	fmt.Fprintf(&buf, "  disable_automatic_compactions=%t\n", o.DisableAutomaticCompactions)
	fmt.Fprintf(&buf, "  l0_compaction_threshold=%d\n", o.L0CompactionThreshold)
	fmt.Fprintf(&buf, "  mem_table_size=%d\n", o.MemTableSize)
	fmt.Fprintf(&buf, "  mem_table_stop_writes_threshold=%d\n", o.MemTableStopWritesThreshold)
	fmt.Fprintf(&buf, "  read_only=%t\n", o.ReadOnly)
	for i := range o.Levels {
		fmt.Fprintf(&buf, "\n[Level \"%d\"]\n", i)
		if i > 0 {
			fmt.Fprintf(&buf, "  max_files=%d\n", o.Levels[i].MaxFiles)
		}
		fmt.Fprintf(&buf, "  target_file_size=%d\n", o.Levels[i].TargetFileSize)
	}
	return buf.String()
}
