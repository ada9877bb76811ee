// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/trimdb/trimdb/tool"
)

var rootCmd = &cobra.Command{
	Use:   "trim [command] (flags)",
	Short: "trimdb introspection tool",
	Long: `
Inspect and modify trimdb databases and the sorted table files they hold.
`,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	t := tool.New()
	rootCmd.AddCommand(t.Commands...)

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
