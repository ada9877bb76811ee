// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"strings"
	"time"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/internal/manifest"
)

// Logger defines an interface for writing log messages.
type Logger = base.Logger

// TableInfo contains the common information for table related events.
type TableInfo struct {
	// Level is the level the table lives in.
	Level int
	// FileNum is the id of the table within its level.
	FileNum base.FileNum
	// Size is the size of the file in bytes.
	Size uint64
	// Smallest is the smallest key in the table.
	Smallest []byte
	// Largest is the largest key in the table.
	Largest []byte
	// Count is the number of records in the table, tombstones included.
	Count uint64
}

func tableInfo(m *manifest.TableMetadata) TableInfo {
	return TableInfo{
		Level:    m.Level,
		FileNum:  m.FileNum,
		Size:     m.Size,
		Smallest: m.Smallest,
		Largest:  m.Largest,
		Count:    m.Count,
	}
}

func tableInfos(tables []*manifest.TableMetadata) []TableInfo {
	infos := make([]TableInfo, len(tables))
	for i, m := range tables {
		infos[i] = tableInfo(m)
	}
	return infos
}

func totalSize(tables []TableInfo) uint64 {
	var size uint64
	for i := range tables {
		size += tables[i].Size
	}
	return size
}

func formatFileNums(tables []TableInfo) string {
	var buf strings.Builder
	for i := range tables {
		if i > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(tables[i].FileNum.String())
	}
	return buf.String()
}

func formatBytes(n uint64) redact.SafeString {
	return redact.SafeString(crhumanize.Bytes(n, crhumanize.Compact, crhumanize.OmitI))
}

// LevelInfo contains info pertaining to a particular level.
type LevelInfo struct {
	Level  int
	Tables []TableInfo
}

func (i LevelInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i LevelInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("L%d [%s] (%s)", redact.Safe(i.Level), redact.Safe(formatFileNums(i.Tables)),
		formatBytes(totalSize(i.Tables)))
}

// CompactionInfo contains the info for a compaction event.
type CompactionInfo struct {
	// JobID is the ID of the compaction job.
	JobID int
	// Reason is the reason for the compaction.
	Reason string
	// Input contains the input tables for the compaction organized by level.
	Input []LevelInfo
	// Output contains the output tables generated by the compaction. The
	// output tables are empty for the compaction begin event.
	Output LevelInfo
	// Duration is the time spent compacting, including reading and writing
	// tables.
	Duration time.Duration
	// Done is true if the compaction is complete.
	Done bool
	// Err is set only if Done is true. If non-nil, indicates that the
	// compaction failed.
	Err error
}

func (i CompactionInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i CompactionInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("[JOB %d] compaction(%s) to L%d error: %s",
			redact.Safe(i.JobID), redact.SafeString(i.Reason), redact.Safe(i.Output.Level), i.Err)
		return
	}

	if !i.Done {
		w.Printf("[JOB %d] compacting(%s) ", redact.Safe(i.JobID), redact.SafeString(i.Reason))
		for j := range i.Input {
			if j > 0 {
				w.Printf(" + ")
			}
			w.Print(i.Input[j])
		}
		return
	}
	var inputSize uint64
	for j := range i.Input {
		inputSize += totalSize(i.Input[j].Tables)
	}
	w.Printf("[JOB %d] compacted(%s) ", redact.Safe(i.JobID), redact.SafeString(i.Reason))
	for j := range i.Input {
		if j > 0 {
			w.Printf(" + ")
		}
		w.Print(i.Input[j])
	}
	w.Printf(" -> %s, in %.1fs, output rate %s/s", i.Output,
		redact.Safe(i.Duration.Seconds()),
		formatBytes(uint64(float64(totalSize(i.Output.Tables))/max(i.Duration.Seconds(), 1e-9))))
	if inputSize > 0 {
		w.Printf(", input %s", formatBytes(inputSize))
	}
}

// FlushInfo contains the info for a flush event.
type FlushInfo struct {
	// JobID is the ID of the flush job.
	JobID int
	// Reason is the reason for the flush.
	Reason string
	// InputBytes is the number of arena bytes in the memtable being flushed.
	InputBytes uint64
	// Output contains the output tables generated by the flush. The output
	// tables are empty for the flush begin event.
	Output []TableInfo
	// Duration is the time spent flushing. This duration includes writing
	// and syncing all of the flushed keys to tables.
	Duration time.Duration
	// Done is true if the flush is complete.
	Done bool
	// Err is set only if Done is true. If non-nil, indicates that the flush
	// failed.
	Err error
}

func (i FlushInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i FlushInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("[JOB %d] flush error: %s", redact.Safe(i.JobID), i.Err)
		return
	}

	if !i.Done {
		w.Printf("[JOB %d] flushing memtable (%s) to L0", redact.Safe(i.JobID),
			formatBytes(i.InputBytes))
		if i.Reason != "" {
			w.Printf(" (%s)", redact.SafeString(i.Reason))
		}
		return
	}

	outputSize := totalSize(i.Output)
	w.Printf("[JOB %d] flushed memtable (%s) to L0 [%s] (%s), in %.1fs, output rate %s/s",
		redact.Safe(i.JobID), formatBytes(i.InputBytes),
		redact.Safe(formatFileNums(i.Output)),
		formatBytes(outputSize),
		redact.Safe(i.Duration.Seconds()),
		formatBytes(uint64(float64(outputSize)/max(i.Duration.Seconds(), 1e-9))))
}

// TableCreateInfo contains the info for a table creation event.
type TableCreateInfo struct {
	JobID int
	// Reason is the reason for the table creation: "flushing" or
	// "compacting".
	Reason  string
	Path    string
	Level   int
	FileNum base.FileNum
}

func (i TableCreateInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i TableCreateInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[JOB %d] %s: sstable created L%d:%s", redact.Safe(i.JobID),
		redact.SafeString(i.Reason), redact.Safe(i.Level), i.FileNum)
}

// TableDeleteInfo contains the info for a table deletion event.
type TableDeleteInfo struct {
	JobID   int
	Path    string
	Level   int
	FileNum base.FileNum
	Err     error
}

func (i TableDeleteInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i TableDeleteInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("[JOB %d] sstable delete error L%d:%s: %s",
			redact.Safe(i.JobID), redact.Safe(i.Level), i.FileNum, i.Err)
		return
	}
	w.Printf("[JOB %d] sstable deleted L%d:%s", redact.Safe(i.JobID), redact.Safe(i.Level), i.FileNum)
}

// WriteStallBeginInfo contains the info for a write stall begin event.
type WriteStallBeginInfo struct {
	Reason string
}

func (i WriteStallBeginInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i WriteStallBeginInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("write stall beginning: %s", redact.SafeString(i.Reason))
}

// EventListener contains a set of functions that will be invoked when
// various significant DB events occur. Note that the functions should not
// run for an excessive amount of time as they are invoked synchronously by
// the DB and may block continued DB work. For a similar reason it is
// advisable to not perform any synchronous calls back into the DB.
type EventListener struct {
	// BackgroundError is invoked whenever an error occurs during a
	// background operation such as flush or compaction.
	BackgroundError func(error)

	// CompactionBegin is invoked after the inputs to a compaction have been
	// determined, but before the compaction has produced any output.
	CompactionBegin func(CompactionInfo)

	// CompactionEnd is invoked after a compaction has completed and the
	// result has been installed.
	CompactionEnd func(CompactionInfo)

	// FlushBegin is invoked after the inputs to a flush have been
	// determined, but before the flush has produced any output.
	FlushBegin func(FlushInfo)

	// FlushEnd is invoked after a flush has completed and the result has
	// been installed.
	FlushEnd func(FlushInfo)

	// TableCreated is invoked when a table has been created.
	TableCreated func(TableCreateInfo)

	// TableDeleted is invoked after a table has been deleted.
	TableDeleted func(TableDeleteInfo)

	// WriteStallBegin is invoked when writes are intentionally delayed.
	WriteStallBegin func(WriteStallBeginInfo)

	// WriteStallEnd is invoked when delayed writes are released.
	WriteStallEnd func()
}

// EnsureDefaults ensures that background error events are logged to the
// specified logger if a handler for those events hasn't been otherwise
// specified. Ensure all handlers are non-nil so that we don't have to check
// for nil-ness before invoking.
func (l *EventListener) EnsureDefaults(logger Logger) {
	if l.BackgroundError == nil {
		if logger != nil {
			l.BackgroundError = func(err error) {
				logger.Errorf("background error: %s", err)
			}
		} else {
			l.BackgroundError = func(error) {}
		}
	}
	if l.CompactionBegin == nil {
		l.CompactionBegin = func(info CompactionInfo) {}
	}
	if l.CompactionEnd == nil {
		l.CompactionEnd = func(info CompactionInfo) {}
	}
	if l.FlushBegin == nil {
		l.FlushBegin = func(info FlushInfo) {}
	}
	if l.FlushEnd == nil {
		l.FlushEnd = func(info FlushInfo) {}
	}
	if l.TableCreated == nil {
		l.TableCreated = func(info TableCreateInfo) {}
	}
	if l.TableDeleted == nil {
		l.TableDeleted = func(info TableDeleteInfo) {}
	}
	if l.WriteStallBegin == nil {
		l.WriteStallBegin = func(info WriteStallBeginInfo) {}
	}
	if l.WriteStallEnd == nil {
		l.WriteStallEnd = func() {}
	}
}

// MakeLoggingEventListener creates an EventListener that logs all events to
// the specified logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	if logger == nil {
		logger = base.DefaultLogger
	}

	return EventListener{
		BackgroundError: func(err error) {
			logger.Errorf("background error: %s", err)
		},
		CompactionBegin: func(info CompactionInfo) {
			logger.Infof("%s", info)
		},
		CompactionEnd: func(info CompactionInfo) {
			logger.Infof("%s", info)
		},
		FlushBegin: func(info FlushInfo) {
			logger.Infof("%s", info)
		},
		FlushEnd: func(info FlushInfo) {
			logger.Infof("%s", info)
		},
		TableCreated: func(info TableCreateInfo) {
			logger.Infof("%s", info)
		},
		TableDeleted: func(info TableDeleteInfo) {
			logger.Infof("%s", info)
		},
		WriteStallBegin: func(info WriteStallBeginInfo) {
			logger.Infof("%s", info)
		},
		WriteStallEnd: func() {
			logger.Infof("write stall ending")
		},
	}
}

// TeeEventListener wraps two EventListeners, forwarding all events to both.
func TeeEventListener(a, b EventListener) EventListener {
	a.EnsureDefaults(nil)
	b.EnsureDefaults(nil)
	return EventListener{
		BackgroundError: func(err error) {
			a.BackgroundError(err)
			b.BackgroundError(err)
		},
		CompactionBegin: func(info CompactionInfo) {
			a.CompactionBegin(info)
			b.CompactionBegin(info)
		},
		CompactionEnd: func(info CompactionInfo) {
			a.CompactionEnd(info)
			b.CompactionEnd(info)
		},
		FlushBegin: func(info FlushInfo) {
			a.FlushBegin(info)
			b.FlushBegin(info)
		},
		FlushEnd: func(info FlushInfo) {
			a.FlushEnd(info)
			b.FlushEnd(info)
		},
		TableCreated: func(info TableCreateInfo) {
			a.TableCreated(info)
			b.TableCreated(info)
		},
		TableDeleted: func(info TableDeleteInfo) {
			a.TableDeleted(info)
			b.TableDeleted(info)
		},
		WriteStallBegin: func(info WriteStallBeginInfo) {
			a.WriteStallBegin(info)
			b.WriteStallBegin(info)
		},
		WriteStallEnd: func() {
			a.WriteStallEnd()
			b.WriteStallEnd()
		},
	}
}
