// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package tool

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/trimdb/trimdb"
	"github.com/trimdb/trimdb/internal/base"
)

// dbT implements db-level tools, including both configuration state and the
// commands themselves.
type dbT struct {
	Root    *cobra.Command
	Get     *cobra.Command
	Set     *cobra.Command
	Delete  *cobra.Command
	Scan    *cobra.Command
	Compact *cobra.Command
	LSM     *cobra.Command
	Metrics *cobra.Command

	// Configuration.
	opts     *trimdb.Options
	fmtKey   formatter
	fmtValue formatter
	start    key
	end      key
	count    int64
}

func newDB(opts *trimdb.Options) *dbT {
	d := &dbT{opts: opts}
	d.fmtKey.mustSet("quoted")
	d.fmtValue.mustSet("quoted")

	d.Root = &cobra.Command{
		Use:   "db",
		Short: "DB introspection tools",
	}
	d.Get = &cobra.Command{
		Use:   "get <dir> <key>",
		Short: "print the value of a key",
		Long: `
Print the value of a key. Requires that the specified database not be in use
by another process.
`,
		Args: cobra.ExactArgs(2),
		Run:  d.runGet,
	}
	d.Set = &cobra.Command{
		Use:   "set <dir> <key> <value>",
		Short: "set the value of a key",
		Long: `
Set the value of a key and flush it to disk. Requires that the specified
database not be in use by another process.
`,
		Args: cobra.ExactArgs(3),
		Run:  d.runSet,
	}
	d.Delete = &cobra.Command{
		Use:   "delete <dir> <key>",
		Short: "delete a key",
		Long: `
Write a tombstone for a key and flush it to disk. Requires that the specified
database not be in use by another process.
`,
		Args: cobra.ExactArgs(2),
		Run:  d.runDelete,
	}
	d.Scan = &cobra.Command{
		Use:   "scan <dir>",
		Short: "print db records",
		Long: `
Print the records in the DB. Requires that the specified database not be in use
by another process.
`,
		Args: cobra.ExactArgs(1),
		Run:  d.runScan,
	}
	d.Compact = &cobra.Command{
		Use:   "compact <dir>",
		Short: "compact the db",
		Long: `
Flush the memtables and compact the LSM until L0 is empty and every level is
within its file limit. Requires that the specified database not be in use by
another process.
`,
		Args: cobra.ExactArgs(1),
		Run:  d.runCompact,
	}
	d.LSM = &cobra.Command{
		Use:   "lsm <dir>",
		Short: "print LSM structure",
		Long: `
Print the structure of the LSM tree. Requires that the specified database not
be in use by another process.
`,
		Args: cobra.ExactArgs(1),
		Run:  d.runLSM,
	}
	d.Metrics = &cobra.Command{
		Use:   "metrics <dir>",
		Short: "print db metrics",
		Long: `
Print the metrics of the DB. Requires that the specified database not be in use
by another process.
`,
		Args: cobra.ExactArgs(1),
		Run:  d.runMetrics,
	}

	d.Root.AddCommand(d.Get, d.Set, d.Delete, d.Scan, d.Compact, d.LSM, d.Metrics)

	for _, cmd := range []*cobra.Command{d.Get, d.Scan} {
		cmd.Flags().Var(
			&d.fmtValue, "value", "value formatter")
	}
	d.Scan.Flags().Var(
		&d.fmtKey, "key", "key formatter")
	d.Scan.Flags().Var(
		&d.start, "start", "start key for the scan")
	d.Scan.Flags().Var(
		&d.end, "end", "end key for the scan")
	d.Scan.Flags().Int64Var(
		&d.count, "count", 0, "key count for scan (0 is unlimited)")
	return d
}

func (d *dbT) openDB(dir string, readOnly bool) (*trimdb.DB, error) {
	opts := d.opts.Clone()
	opts.ReadOnly = readOnly
	db, err := trimdb.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dir)
	}
	return db, nil
}

func (d *dbT) closeDB(db *trimdb.DB) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
}

func (d *dbT) runGet(cmd *cobra.Command, args []string) {
	k, err := parseKey(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	db, err := d.openDB(args[0], true /* readOnly */)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer d.closeDB(db)

	v, err := db.Get(k)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	d.fmtValue.fn(stdout, v)
	fmt.Fprintf(stdout, "\n")
}

func (d *dbT) runSet(cmd *cobra.Command, args []string) {
	d.write(args[0], func(db *trimdb.DB) error {
		k, err := parseKey(args[1])
		if err != nil {
			return err
		}
		return db.Set(k, []byte(args[2]))
	})
}

func (d *dbT) runDelete(cmd *cobra.Command, args []string) {
	d.write(args[0], func(db *trimdb.DB) error {
		k, err := parseKey(args[1])
		if err != nil {
			return err
		}
		return db.Delete(k)
	})
}

func (d *dbT) write(dir string, fn func(db *trimdb.DB) error) {
	db, err := d.openDB(dir, false /* readOnly */)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer d.closeDB(db)

	if err := fn(db); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	if err := db.Flush(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
}

func (d *dbT) runScan(cmd *cobra.Command, args []string) {
	db, err := d.openDB(args[0], true /* readOnly */)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer d.closeDB(db)

	iter, err := db.NewIter(&trimdb.IterOptions{
		LowerBound: d.start,
		UpperBound: d.end,
	})
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	var count int64
	for valid := iter.First(); valid; valid = iter.Next() {
		kv := base.MakeKV(iter.Key(), iter.Value())
		formatKeyValue(stdout, &d.fmtKey, &d.fmtValue, &kv)
		count++
		if d.count > 0 && count >= d.count {
			break
		}
	}
	if err := iter.Close(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	fmt.Fprintf(stdout, "scanned %d %s\n", count, makePlural("record", count))
}

func (d *dbT) runCompact(cmd *cobra.Command, args []string) {
	d.write(args[0], func(db *trimdb.DB) error {
		return db.Compact()
	})
}

func (d *dbT) runLSM(cmd *cobra.Command, args []string) {
	db, err := d.openDB(args[0], true /* readOnly */)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer d.closeDB(db)

	levels, err := db.SSTables()
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	tw := tablewriter.NewWriter(stdout)
	tw.SetHeader([]string{"level", "file", "size", "count", "smallest", "largest"})
	tw.SetAutoFormatHeaders(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	for level, tables := range levels {
		for _, t := range tables {
			tw.Append([]string{
				fmt.Sprintf("L%d", level),
				t.FileNum.String(),
				strconv.FormatUint(t.Size, 10),
				strconv.FormatUint(t.Count, 10),
				strconv.Quote(string(t.Smallest)),
				strconv.Quote(string(t.Largest)),
			})
		}
	}
	tw.Render()
}

func (d *dbT) runMetrics(cmd *cobra.Command, args []string) {
	db, err := d.openDB(args[0], true /* readOnly */)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer d.closeDB(db)

	fmt.Fprintf(stdout, "%s", db.Metrics())
}

func makePlural(singular string, count int64) string {
	if count != 1 {
		return singular + "s"
	}
	return singular
}
