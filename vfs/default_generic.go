// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

//go:build !linux

package vfs

import (
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

func wrapOSFile(f *os.File) File {
	return genericFile{f}
}

func (defaultFS) OpenDir(name string) (File, error) {
	f, err := os.OpenFile(name, syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return genericFile{f}, nil
}

// Assert that genericFile implements vfs.File.
var _ File = genericFile{}

type genericFile struct {
	*os.File
}

func (f genericFile) SyncData() error {
	return f.Sync()
}
