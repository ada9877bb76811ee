// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package tool

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/trimdb/trimdb"
	"github.com/trimdb/trimdb/internal/base"
	"github.com/trimdb/trimdb/sstable"
)

// sstableT implements sstable-level tools, including both configuration
// state and the commands themselves.
type sstableT struct {
	Root       *cobra.Command
	Check      *cobra.Command
	Layout     *cobra.Command
	Properties *cobra.Command
	Scan       *cobra.Command

	// Configuration and state.
	opts     *trimdb.Options
	fmtKey   formatter
	fmtValue formatter
	start    key
	end      key
	count    int64
}

func newSSTable(opts *trimdb.Options) *sstableT {
	s := &sstableT{opts: opts}
	s.fmtKey.mustSet("quoted")
	s.fmtValue.mustSet("[%x]")

	s.Root = &cobra.Command{
		Use:   "sstable",
		Short: "sstable introspection tools",
	}
	s.Check = &cobra.Command{
		Use:   "check <sstables>",
		Short: "verify checksums and metadata",
		Long: `
Verify the checksum of every block, the structure of every block, and the
agreement of the blocks with the table's index and statistics.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  s.runCheck,
	}
	s.Layout = &cobra.Command{
		Use:   "layout <sstables>",
		Short: "print sstable block and section layout",
		Long: `
Print the layout for the sstables. The layout shows the offset, entry count,
free space, key range and checksum of every block, and the footer sections.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  s.runLayout,
	}
	s.Properties = &cobra.Command{
		Use:   "properties <sstables>",
		Short: "print sstable properties",
		Long: `
Print the statistics recorded in the footer of the sstables.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  s.runProperties,
	}
	s.Scan = &cobra.Command{
		Use:   "scan <sstables>",
		Short: "print sstable records",
		Long: `
Print the records in the sstables, tombstones included.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  s.runScan,
	}

	s.Root.AddCommand(s.Check, s.Layout, s.Properties, s.Scan)

	s.Scan.Flags().Var(
		&s.fmtKey, "key", "key formatter")
	s.Scan.Flags().Var(
		&s.fmtValue, "value", "value formatter")
	s.Scan.Flags().Var(
		&s.start, "start", "start key for the scan")
	s.Scan.Flags().Var(
		&s.end, "end", "end key for the scan")
	s.Scan.Flags().Int64Var(
		&s.count, "count", 0, "key count for scan (0 is unlimited)")
	return s
}

func (s *sstableT) newReader(path string) (*sstable.Reader, error) {
	f, err := s.opts.FS.Open(path)
	if err != nil {
		return nil, err
	}
	return sstable.NewReader(f, sstable.ReaderOptions{
		Cache:    s.opts.Cache,
		Filename: path,
	})
}

func (s *sstableT) forEach(args []string, fn func(path string, r *sstable.Reader)) {
	for _, arg := range args {
		r, err := s.newReader(arg)
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			continue
		}
		fn(arg, r)
		if err := r.Close(); err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}
}

// runCheck exits with a non-zero status if any table fails verification.
func (s *sstableT) runCheck(cmd *cobra.Command, args []string) {
	var failed bool
	defer func() {
		if failed {
			osExit(1)
		}
	}()
	s.forEach(args, func(path string, r *sstable.Reader) {
		fmt.Fprintf(stdout, "%s\n", path)
		if err := r.ValidateChecksums(); err != nil {
			fmt.Fprintf(stdout, "%s\n", err)
			failed = true
			return
		}

		// Walk every record, verifying that the keys are strictly increasing
		// and that every key is found by a point lookup.
		iter := r.NewIter()
		var prev []byte
		var count uint64
		for kv := iter.First(); kv != nil; kv = iter.Next() {
			if count > 0 && base.Compare(prev, kv.K) >= 0 {
				fmt.Fprintf(stdout, "WARNING: OUT OF ORDER KEYS!\n    %q >= %q\n", prev, kv.K)
				failed = true
			}
			if _, res, err := r.Get(kv.K, base.Hash64(kv.K)); err != nil {
				fmt.Fprintf(stdout, "%s\n", err)
				failed = true
			} else if res == base.NotFound {
				fmt.Fprintf(stdout, "WARNING: FIND MISMATCH %q\n", kv.K)
				failed = true
			}
			prev = append(prev[:0], kv.K...)
			count++
		}
		if err := iter.Close(); err != nil {
			fmt.Fprintf(stdout, "%s\n", err)
			failed = true
			return
		}
		if props := r.Properties(); count != props.Count {
			fmt.Fprintf(stdout, "WARNING: COUNT MISMATCH %d != %d\n", count, props.Count)
			failed = true
			return
		}
		fmt.Fprintf(stdout, "%d %s OK\n", count, makePlural("record", int64(count)))
	})
}

func (s *sstableT) runLayout(cmd *cobra.Command, args []string) {
	s.forEach(args, func(path string, r *sstable.Reader) {
		fmt.Fprintf(stdout, "%s\n", path)
		l, err := r.Layout()
		if err != nil {
			fmt.Fprintf(stdout, "%s\n", err)
			return
		}
		tw := tablewriter.NewWriter(stdout)
		tw.SetHeader([]string{"block", "offset", "count", "free", "first", "last", "crc"})
		tw.SetAutoFormatHeaders(false)
		tw.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, b := range l.Blocks {
			tw.Append([]string{
				strconv.Itoa(b.Index),
				strconv.FormatInt(b.Offset, 10),
				strconv.Itoa(b.Count),
				strconv.Itoa(b.FreeSpace),
				strconv.Quote(string(b.FirstKey)),
				strconv.Quote(string(b.LastKey)),
				fmt.Sprintf("%08x", b.Checksum),
			})
		}
		tw.Render()
		for _, sec := range l.Sections {
			fmt.Fprintf(stdout, "%-10s offset=%d length=%d\n", sec.Type, sec.Offset, sec.Length)
		}
		fmt.Fprintf(stdout, "size=%d\n", l.Size)
	})
}

func (s *sstableT) runProperties(cmd *cobra.Command, args []string) {
	s.forEach(args, func(path string, r *sstable.Reader) {
		p := r.Properties()
		fmt.Fprintf(stdout, "%s\n", path)
		fmt.Fprintf(stdout, "size          %d\n", p.Size)
		fmt.Fprintf(stdout, "entries       %d\n", p.Count)
		fmt.Fprintf(stdout, "blocks        %d\n", p.NumBlocks)
		fmt.Fprintf(stdout, "filter        %d\n", p.FilterSize)
		fmt.Fprintf(stdout, "index         %d\n", p.IndexSize)
		fmt.Fprintf(stdout, "smallest      %q\n", p.Smallest)
		fmt.Fprintf(stdout, "largest       %q\n", p.Largest)
	})
}

func (s *sstableT) runScan(cmd *cobra.Command, args []string) {
	s.forEach(args, func(path string, r *sstable.Reader) {
		fmt.Fprintf(stdout, "%s\n", path)
		iter := r.NewIter()
		var kv *base.InternalKV
		if s.start != nil {
			kv = iter.SeekGE(s.start)
		} else {
			kv = iter.First()
		}
		var count int64
		for ; kv != nil; kv = iter.Next() {
			if s.end != nil && base.Compare(kv.K, s.end) >= 0 {
				break
			}
			formatKeyValue(stdout, &s.fmtKey, &s.fmtValue, kv)
			count++
			if s.count > 0 && count >= s.count {
				break
			}
		}
		if err := iter.Close(); err != nil {
			fmt.Fprintf(stdout, "%s\n", err)
		}
	})
}
