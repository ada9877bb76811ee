// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package trimdb

import (
	"github.com/trimdb/trimdb/internal/manifest"
)

// liveTables returns the metadata of every table installed in the layers,
// level by level.
func (d *DB) liveTables() []*manifest.TableMetadata {
	var tables []*manifest.TableMetadata
	for _, l := range d.layers {
		tables = append(tables, l.load().metas...)
	}
	return tables
}

// currentVersion returns the tables currently installed in the layers,
// grouped by level.
func (d *DB) currentVersion() *manifest.Version {
	v := &manifest.Version{Levels: make([][]*manifest.TableMetadata, len(d.layers))}
	for level, l := range d.layers {
		v.Levels[level] = l.load().metas
	}
	return v
}

// commitManifest durably records the tables currently installed in the
// layers. It is the commit point of every flush and compaction: tables that
// a compaction consumed are only released once it succeeds. d.workMu must be
// held.
func (d *DB) commitManifest() error {
	return manifest.Commit(d.opts.FS, d.dirname, d.liveTables())
}
