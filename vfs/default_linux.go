// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.
// Modifications copyright (C) 2026 The TrimDB Authors.

//go:build linux

package vfs

import (
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

func wrapOSFile(f *os.File) File {
	return &linuxFile{File: f, fd: f.Fd()}
}

func (defaultFS) OpenDir(name string) (File, error) {
	f, err := os.OpenFile(name, syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &linuxDir{f}, nil
}

// Assert that linuxFile and linuxDir implement vfs.File.
var (
	_ File = (*linuxDir)(nil)
	_ File = (*linuxFile)(nil)
)

type linuxDir struct {
	*os.File
}

func (d *linuxDir) SyncData() error { return d.Sync() }

type linuxFile struct {
	*os.File
	fd uintptr
}

func (f *linuxFile) SyncData() error {
	return unix.Fdatasync(int(f.fd))
}
