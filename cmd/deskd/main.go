// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command deskd runs the dealership voice desk.
//
// Usage:
//
//	deskd serve                 HTTP surface for the voice runtime
//	deskd console [--offline]   Simulate a call in the terminal
//	deskd resolve <identity>    Resolve a caller identity to a phone
//	deskd match <text>          Match free text against the catalog
//	deskd tools [--llm]         Print the tool catalogue
//	deskd journal <session-id>  Dump a call journal from disk
//
// Exit codes:
//
//	0 - success
//	1 - error
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// envFiles holds --env-file values.
var envFiles []string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deskd",
		Short:         "Dealership voice desk orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load variables from these .env files (default: ./.env if present)")

	root.AddCommand(
		newServeCmd(),
		newConsoleCmd(),
		newResolveCmd(),
		newMatchCmd(),
		newToolsCmd(),
		newJournalCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
