// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package vfs

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
)

const sep = "/"

// NewMem returns a new memory-backed FS implementation.
func NewMem() *MemFS {
	return &MemFS{
		files: make(map[string]*memNode),
		dirs:  map[string]bool{sep: true},
		locks: make(map[string]bool),
	}
}

// MemFS implements FS. Paths are cleaned and always treated as absolute.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memNode
	dirs  map[string]bool
	locks map[string]bool
}

var _ FS = (*MemFS)(nil)

func (*MemFS) clean(name string) string {
	return path.Clean(sep + name)
}

func (y *MemFS) parentExistsLocked(name string) bool {
	return y.dirs[path.Dir(name)]
}

func pathErr(op, name string, err error) error {
	return errors.WithStack(&os.PathError{Op: op, Path: name, Err: err})
}

// Create implements FS.Create.
func (y *MemFS) Create(fullname string) (File, error) {
	name := y.clean(fullname)
	y.mu.Lock()
	defer y.mu.Unlock()
	if !y.parentExistsLocked(name) || y.dirs[name] {
		return nil, pathErr("create", fullname, oserror.ErrNotExist)
	}
	n := &memNode{name: path.Base(name), modTime: time.Now()}
	y.files[name] = n
	return &memFile{n: n, read: true, write: true}, nil
}

// Open implements FS.Open.
func (y *MemFS) Open(fullname string) (File, error) {
	name := y.clean(fullname)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.files[name]
	if !ok {
		return nil, pathErr("open", fullname, oserror.ErrNotExist)
	}
	return &memFile{n: n, read: true}, nil
}

// OpenDir implements FS.OpenDir.
func (y *MemFS) OpenDir(fullname string) (File, error) {
	name := y.clean(fullname)
	y.mu.Lock()
	defer y.mu.Unlock()
	if !y.dirs[name] {
		return nil, pathErr("open", fullname, oserror.ErrNotExist)
	}
	return &memFile{n: &memNode{name: path.Base(name), isDir: true}}, nil
}

// Remove implements FS.Remove.
func (y *MemFS) Remove(fullname string) error {
	name := y.clean(fullname)
	y.mu.Lock()
	defer y.mu.Unlock()
	if _, ok := y.files[name]; ok {
		delete(y.files, name)
		return nil
	}
	if y.dirs[name] && name != sep {
		for other := range y.files {
			if path.Dir(other) == name {
				return pathErr("remove", fullname, oserror.ErrExist)
			}
		}
		for other := range y.dirs {
			if other != name && path.Dir(other) == name {
				return pathErr("remove", fullname, oserror.ErrExist)
			}
		}
		delete(y.dirs, name)
		return nil
	}
	return pathErr("remove", fullname, oserror.ErrNotExist)
}

// Rename implements FS.Rename.
func (y *MemFS) Rename(oldname, newname string) error {
	from, to := y.clean(oldname), y.clean(newname)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.files[from]
	if !ok {
		return pathErr("rename", oldname, oserror.ErrNotExist)
	}
	if !y.parentExistsLocked(to) {
		return pathErr("rename", newname, oserror.ErrNotExist)
	}
	delete(y.files, from)
	n.mu.Lock()
	n.name = path.Base(to)
	n.mu.Unlock()
	y.files[to] = n
	return nil
}

// MkdirAll implements FS.MkdirAll.
func (y *MemFS) MkdirAll(dirname string, perm os.FileMode) error {
	name := y.clean(dirname)
	y.mu.Lock()
	defer y.mu.Unlock()
	for d := name; ; d = path.Dir(d) {
		if _, ok := y.files[d]; ok {
			return pathErr("mkdir", dirname, oserror.ErrExist)
		}
		y.dirs[d] = true
		if d == sep {
			return nil
		}
	}
}

// Lock implements FS.Lock.
func (y *MemFS) Lock(fullname string) (io.Closer, error) {
	name := y.clean(fullname)
	y.mu.Lock()
	defer y.mu.Unlock()
	if !y.parentExistsLocked(name) {
		return nil, pathErr("lock", fullname, oserror.ErrNotExist)
	}
	if y.locks[name] {
		return nil, errors.Errorf("trimdb: lock %q is already held", fullname)
	}
	if _, ok := y.files[name]; !ok {
		y.files[name] = &memNode{name: path.Base(name), modTime: time.Now()}
	}
	y.locks[name] = true
	return &memFileLock{y: y, name: name}, nil
}

// List implements FS.List.
func (y *MemFS) List(dirname string) ([]string, error) {
	name := y.clean(dirname)
	y.mu.Lock()
	defer y.mu.Unlock()
	if !y.dirs[name] {
		return nil, pathErr("open", dirname, oserror.ErrNotExist)
	}
	var names []string
	for f := range y.files {
		if path.Dir(f) == name {
			names = append(names, path.Base(f))
		}
	}
	for d := range y.dirs {
		if d != name && path.Dir(d) == name {
			names = append(names, path.Base(d))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stat implements FS.Stat.
func (y *MemFS) Stat(fullname string) (os.FileInfo, error) {
	name := y.clean(fullname)
	y.mu.Lock()
	defer y.mu.Unlock()
	if n, ok := y.files[name]; ok {
		return n.stat(), nil
	}
	if y.dirs[name] {
		return &memFileInfo{name: path.Base(name), isDir: true}, nil
	}
	return nil, pathErr("stat", fullname, oserror.ErrNotExist)
}

// PathBase implements FS.PathBase.
func (*MemFS) PathBase(p string) string {
	return path.Base(p)
}

// PathJoin implements FS.PathJoin.
func (*MemFS) PathJoin(elem ...string) string {
	return path.Join(elem...)
}

// String dumps the contents of the MemFS.
func (y *MemFS) String() string {
	y.mu.Lock()
	defer y.mu.Unlock()
	var names []string
	for d := range y.dirs {
		if d != sep {
			d += sep
		}
		names = append(names, d)
	}
	for f := range y.files {
		names = append(names, f)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteString("\n")
	}
	return b.String()
}

type memNode struct {
	mu      sync.Mutex
	name    string
	isDir   bool
	data    []byte
	modTime time.Time
}

func (n *memNode) stat() *memFileInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &memFileInfo{
		name:    n.name,
		size:    int64(len(n.data)),
		modTime: n.modTime,
		isDir:   n.isDir,
	}
}

type memFile struct {
	n           *memNode
	pos         int
	read, write bool
}

var _ File = (*memFile)(nil)

func (f *memFile) Close() error {
	if f.n == nil {
		return errors.New("trimdb: close of closed file")
	}
	f.n = nil
	return nil
}

func (f *memFile) Read(p []byte) (int, error) {
	if !f.read {
		return 0, errors.New("trimdb: file was not opened for reading")
	}
	if f.n.isDir {
		return 0, errors.New("trimdb: cannot read a directory")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if f.pos >= len(f.n.data) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[f.pos:])
	f.pos += n
	return n, nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if !f.read {
		return 0, errors.New("trimdb: file was not opened for reading")
	}
	if f.n.isDir {
		return 0, errors.New("trimdb: cannot read a directory")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off >= int64(len(f.n.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if !f.write {
		return 0, errors.New("trimdb: file was not created for writing")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.modTime = time.Now()
	if f.pos+len(p) <= len(f.n.data) {
		copy(f.n.data[f.pos:], p)
	} else {
		f.n.data = append(f.n.data[:f.pos], p...)
	}
	f.pos += len(p)
	return len(p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	return f.n.stat(), nil
}

func (f *memFile) Sync() error {
	return nil
}

func (f *memFile) SyncData() error {
	return nil
}

// memFileInfo implements os.FileInfo for a memFile.
type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

var _ os.FileInfo = (*memFileInfo)(nil)

func (f *memFileInfo) Name() string       { return f.name }
func (f *memFileInfo) Size() int64        { return f.size }
func (f *memFileInfo) ModTime() time.Time { return f.modTime }
func (f *memFileInfo) IsDir() bool        { return f.isDir }
func (f *memFileInfo) Sys() interface{}   { return nil }

func (f *memFileInfo) Mode() os.FileMode {
	if f.isDir {
		return os.ModeDir | 0755
	}
	return 0755
}

type memFileLock struct {
	y    *MemFS
	name string
}

func (l *memFileLock) Close() error {
	if l.y == nil {
		return nil
	}
	l.y.mu.Lock()
	delete(l.y.locks, l.name)
	l.y.mu.Unlock()
	l.y = nil
	return nil
}
