// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package tool implements the trim introspection commands.
package tool

import (
	"github.com/spf13/cobra"
	"github.com/trimdb/trimdb"
	"github.com/trimdb/trimdb/cache"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/vfs"
)

// T is the container for all of the introspection tools.
type T struct {
	Commands []*cobra.Command
	db       *dbT
	sstable  *sstableT
	opts     trimdb.Options
}

// An Option configures the introspection tools.
type Option func(*T)

// FS sets the file system used by the tools. The default is vfs.Default.
func FS(fs vfs.FS) Option {
	return func(t *T) {
		t.opts.FS = fs
	}
}

// New creates a new introspection tool.
func New(opts ...Option) *T {
	t := &T{
		opts: trimdb.Options{
			Cache:  cache.New(128 << 20 /* 128 MB */),
			FS:     vfs.Default,
			Logger: base.NoopLogger{},
		},
	}
	for _, o := range opts {
		o(t)
	}

	t.db = newDB(&t.opts)
	t.sstable = newSSTable(&t.opts)
	t.Commands = []*cobra.Command{
		t.db.Root,
		t.sstable.Root,
	}
	return t
}
