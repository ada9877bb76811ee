// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/redact"
)

// FileNum is an identifier for a table file, unique within its level. A
// table is identified externally by the pair (level, FileNum).
type FileNum uint64

// String returns a string representation of the file number.
func (fn FileNum) String() string { return fmt.Sprintf("%06d", uint64(fn)) }

// SafeFormat implements redact.SafeFormatter.
func (fn FileNum) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%06d", redact.SafeUint(fn))
}

// FileType enumerates the types of files found in a DB.
type FileType int

// The FileType enumeration.
const (
	FileTypeTable FileType = iota
	FileTypeManifest
	FileTypeTemp
	FileTypeLock
)

const (
	tableFilePrefix = "Level"
	tableFileSuffix = ".trim"
	manifestName    = "MANIFEST"
	lockName        = "LOCK"
	tempSuffix      = ".tmp"
)

// MakeFilename builds a table filename from the level and file number, in
// the form "Level{level}_{fileNum}.trim".
func MakeFilename(level int, fileNum FileNum) string {
	return fmt.Sprintf("%s%d_%d%s", tableFilePrefix, level, uint64(fileNum), tableFileSuffix)
}

// MakeFilepath builds a filepath from the directory, level and file number.
func MakeFilepath(join func(elem ...string) string, dirname string, level int, fileNum FileNum) string {
	return join(dirname, MakeFilename(level, fileNum))
}

// ManifestFilename returns the name of the manifest file.
func ManifestFilename() string { return manifestName }

// LockFilename returns the name of the file guarding a DB directory against
// concurrent use.
func LockFilename() string { return lockName }

// TempFilename returns the name used while atomically replacing the named
// file.
func TempFilename(name string) string { return name + tempSuffix }

// ParseFilename parses the components from a filename. For table files the
// level and file number are returned; other types only report their type.
func ParseFilename(filename string) (fileType FileType, level int, fileNum FileNum, ok bool) {
	switch {
	case filename == manifestName:
		return FileTypeManifest, 0, 0, true
	case filename == lockName:
		return FileTypeLock, 0, 0, true
	case strings.HasSuffix(filename, tempSuffix):
		return FileTypeTemp, 0, 0, true
	case strings.HasPrefix(filename, tableFilePrefix) && strings.HasSuffix(filename, tableFileSuffix):
		body := strings.TrimSuffix(strings.TrimPrefix(filename, tableFilePrefix), tableFileSuffix)
		i := strings.IndexByte(body, '_')
		if i <= 0 {
			break
		}
		l, err := strconv.ParseUint(body[:i], 10, 8)
		if err != nil {
			break
		}
		n, err := strconv.ParseUint(body[i+1:], 10, 64)
		if err != nil {
			break
		}
		return FileTypeTable, int(l), FileNum(n), true
	}
	return 0, 0, 0, false
}
