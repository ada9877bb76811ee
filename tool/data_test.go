// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package tool

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/trimdb/trimdb/vfs"
)

// runCommand runs a trim command against fs and returns its combined output
// and exit status.
func runCommand(fs vfs.FS, args []string) (string, int) {
	var buf bytes.Buffer
	exitCode := 0
	stdout = &buf
	stderr = &buf
	osExit = func(code int) { exitCode = code }

	defer func() {
		stdout = os.Stdout
		stderr = os.Stderr
		osExit = os.Exit
	}()

	c := &cobra.Command{}
	c.AddCommand(New(FS(fs)).Commands...)
	c.SetArgs(args)
	c.SetOutput(&buf)
	if err := c.Execute(); err != nil {
		return err.Error(), 1
	}
	return buf.String(), exitCode
}

func runTests(t *testing.T, path string) {
	paths, err := filepath.Glob(path)
	require.NoError(t, err)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			fs := vfs.NewMem()
			datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
				args := []string{d.Cmd}
				for _, arg := range d.CmdArgs {
					args = append(args, arg.String())
				}
				args = append(args, strings.Fields(d.Input)...)
				out, code := runCommand(fs, args)
				if code != 0 {
					out += fmt.Sprintf("exit status %d\n", code)
				}
				return out
			})
		})
	}
}

func TestTool(t *testing.T) {
	runTests(t, "testdata/*")
}

func TestLSMAndLayout(t *testing.T) {
	fs := vfs.NewMem()
	for _, args := range [][]string{
		{"db", "set", "db", "apple", "red"},
		{"db", "set", "db", "banana", "yellow"},
		{"db", "compact", "db"},
	} {
		out, code := runCommand(fs, args)
		require.Equal(t, 0, code)
		require.Empty(t, out)
	}

	out, code := runCommand(fs, []string{"db", "lsm", "db"})
	require.Equal(t, 0, code)
	for _, s := range []string{"level", "file", "smallest", "largest", "L1", "000001", `"apple"`, `"banana"`} {
		require.Contains(t, out, s)
	}

	out, code = runCommand(fs, []string{"db", "metrics", "db"})
	require.Equal(t, 0, code)
	require.Contains(t, out, "level__files____size___score______in____read___write___w-amp")

	path := fs.PathJoin("db", "Level1_1.trim")
	out, code = runCommand(fs, []string{"sstable", "layout", path})
	require.Equal(t, 0, code)
	for _, s := range []string{path, "block", "offset", "crc", `"apple"`, `"banana"`, "size="} {
		require.Contains(t, out, s)
	}

	out, code = runCommand(fs, []string{"sstable", "properties", path})
	require.Equal(t, 0, code)
	require.Contains(t, out, "entries       2\n")
	require.Contains(t, out, "blocks        1\n")
	require.Contains(t, out, "smallest      \"apple\"\n")
	require.Contains(t, out, "largest       \"banana\"\n")
}

func TestCheckCorruption(t *testing.T) {
	fs := vfs.NewMem()
	_, code := runCommand(fs, []string{"db", "set", "db", "a", "1"})
	require.Equal(t, 0, code)

	// Flip a byte in the first data block.
	path := fs.PathJoin("db", "Level0_1.trim")
	f, err := fs.Open(path)
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	data := make([]byte, info.Size())
	_, err = f.ReadAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	data[100] ^= 0xff
	f, err = fs.Create(path)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, code := runCommand(fs, []string{"sstable", "check", path})
	require.Equal(t, 1, code)
	require.Contains(t, out, path)
	require.NotContains(t, out, "OK")
}
