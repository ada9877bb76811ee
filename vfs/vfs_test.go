// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package vfs

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors/oserror"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs FS, name, contents string) {
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = io.WriteString(f, contents)
	require.NoError(t, err)
	require.NoError(t, f.SyncData())
	require.NoError(t, f.Close())
}

func readFile(t *testing.T, fs FS, name string) string {
	f, err := fs.Open(name)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}

func runFSTest(t *testing.T, fs FS, dir string) {
	db := fs.PathJoin(dir, "db")
	require.NoError(t, fs.MkdirAll(db, 0755))
	require.NoError(t, fs.MkdirAll(db, 0755))

	writeFile(t, fs, fs.PathJoin(db, "a"), "hello")
	writeFile(t, fs, fs.PathJoin(db, "b.tmp"), "world")
	require.Equal(t, "hello", readFile(t, fs, fs.PathJoin(db, "a")))

	f, err := fs.Open(fs.PathJoin(db, "a"))
	require.NoError(t, err)
	buf := make([]byte, 3)
	n, err := f.ReadAt(buf, 2)
	require.NoError(t, err)
	require.Equal(t, "llo", string(buf[:n]))
	_, err = f.ReadAt(buf, 4)
	require.ErrorIs(t, err, io.EOF)
	fi, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(5), fi.Size())
	require.NoError(t, f.Close())

	require.NoError(t, fs.Rename(fs.PathJoin(db, "b.tmp"), fs.PathJoin(db, "a")))
	require.Equal(t, "world", readFile(t, fs, fs.PathJoin(db, "a")))
	require.NoError(t, SyncDir(fs, db))

	names, err := fs.List(db)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, names)

	_, err = fs.Open(fs.PathJoin(db, "missing"))
	require.True(t, oserror.IsNotExist(err), "%v", err)
	_, err = fs.Stat(fs.PathJoin(db, "missing"))
	require.True(t, oserror.IsNotExist(err), "%v", err)

	lock, err := fs.Lock(fs.PathJoin(db, "LOCK"))
	require.NoError(t, err)
	require.NoError(t, lock.Close())

	require.NoError(t, fs.Remove(fs.PathJoin(db, "a")))
	require.NoError(t, fs.Remove(fs.PathJoin(db, "LOCK")))
	names, err = fs.List(db)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestDefaultFS(t *testing.T) {
	runFSTest(t, Default, t.TempDir())
}

func TestMemFS(t *testing.T) {
	runFSTest(t, NewMem(), "/")
}

func TestMemFSLockHeld(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("/db", 0755))
	l, err := fs.Lock("/db/LOCK")
	require.NoError(t, err)
	_, err = fs.Lock("/db/LOCK")
	require.Error(t, err)
	require.NoError(t, l.Close())
	l, err = fs.Lock("/db/LOCK")
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestMemFSMissingParent(t *testing.T) {
	fs := NewMem()
	_, err := fs.Create("/nope/file")
	require.True(t, oserror.IsNotExist(err))
	require.NoError(t, fs.MkdirAll("/a/b", 0755))
	writeFile(t, fs, "/a/b/c", "x")
	require.Error(t, fs.Remove("/a/b"))

	var fis []string
	for _, name := range []string{"/a", "/a/b", "/a/b/c"} {
		fi, err := fs.Stat(name)
		require.NoError(t, err)
		fis = append(fis, fmt.Sprintf("%s:%t", fi.Name(), fi.IsDir()))
	}
	require.Equal(t, "a:true b:true c:false", strings.Join(fis, " "))
	require.Equal(t, "/\n/a/\n/a/b/\n/a/b/c\n", fs.String())
}
