// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import "github.com/cockroachdb/errors"

// ErrNotFound means that a get call did not find the requested key.
var ErrNotFound = errors.New("trimdb: not found")

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("trimdb: closed")

// ErrCorruption is a marker to indicate that data in a file (MANIFEST or
// sstable) isn't in the expected format.
var ErrCorruption = errors.New("trimdb: corruption")

// ErrEntryTooLarge is a marker for a key/value pair whose encoding cannot
// fit in an empty sstable block. Such an entry can never be written.
var ErrEntryTooLarge = errors.New("trimdb: entry too large")

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// EntryTooLargeErrorf formats according to a format specifier and returns
// the string as an error value that is marked with ErrEntryTooLarge.
func EntryTooLargeErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrEntryTooLarge)
}
