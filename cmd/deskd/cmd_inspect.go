// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/journal"
	badgerstore "github.com/AleutianAI/voicedesk/services/desk/storage/badger"
)

var (
	matchCatalogPath string
	matchThreshold   float64
	toolsLLM         bool
	journalPath      string
	journalJSON      bool
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <identity>",
		Short: "Resolve a caller identity to a Kuwaiti phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phone, err := identity.Resolve(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), phone)
			return nil
		},
	}
}

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <text>",
		Short: "Match free text against the vehicle catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := matchCatalogPath
			if path == "" {
				path = loadLocalConfig().CatalogPath
			}
			cat, err := loadCatalog(path)
			if err != nil {
				return err
			}
			m := catalog.NewMatcher(cat, matchThreshold, nil)
			res, err := m.Match(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%.2f\t%s\n",
				res.Entry.Key, res.Entry.NameEn, res.Kind, res.Ratio, res.Entry.ImageURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&matchCatalogPath, "catalog", "", "Catalog YAML (default: DESK_CATALOG_PATH or the embedded catalog)")
	cmd.Flags().Float64Var(&matchThreshold, "threshold", catalog.DefaultMatchThreshold, "Fuzzy match threshold")
	return cmd
}

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalogue as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if toolsLLM {
				return enc.Encode(dispatch.LLMTools())
			}
			return enc.Encode(dispatch.Tools())
		},
	}
	cmd.Flags().BoolVar(&toolsLLM, "llm", false, "Print LLM function-calling definitions")
	return cmd
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal <session-id>",
		Short: "Dump a call journal from disk",
		Long: `Dump a call journal straight from the BadgerDB directory.

The store is opened read-only. A running server holds the directory lock;
use GET /v1/desk/sessions/:id/journal instead while it is up.`,
		Args: cobra.ExactArgs(1),
		RunE: runJournal,
	}
	cmd.Flags().StringVar(&journalPath, "path", "", "Journal directory (default: DESK_JOURNAL_DIR)")
	cmd.Flags().BoolVar(&journalJSON, "json", false, "Print entries as JSON lines")
	return cmd
}

func runJournal(cmd *cobra.Command, args []string) error {
	path := journalPath
	if path == "" {
		path = loadLocalConfig().JournalDir
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(cmd.OutOrStdout(), "Journal directory %s does not exist. No calls have been recorded yet.\n", path)
		return nil
	}

	cfg := badgerstore.DefaultConfig()
	cfg.Path = path
	cfg.ReadOnly = true
	db, err := badgerstore.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := journal.New(db, 0, nil).List(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJournal(cmd, args[0], entries)
}

func printJournal(cmd *cobra.Command, sessionID string, entries []journal.Entry) error {
	out := cmd.OutOrStdout()
	if journalJSON {
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "No journal entries for session %s.\n", sessionID)
		return nil
	}
	fmt.Fprintf(out, "Session %s: %d entr%s\n", sessionID, len(entries), plural(len(entries), "y", "ies"))
	fmt.Fprintln(out, strings.Repeat("─", 60))
	for _, e := range entries {
		ts := e.At.Local().Format(time.TimeOnly)
		switch e.Kind {
		case journal.KindTool:
			line := fmt.Sprintf("%s  tool      %s -> %s", ts, e.Tool, e.Status)
			if e.Reason != "" {
				line += " (" + e.Reason + ")"
			}
			fmt.Fprintln(out, line)
		default:
			lang := ""
			if e.Language != "" {
				lang = " [" + string(e.Language) + "]"
			}
			fmt.Fprintf(out, "%s  %-9s%s %s\n", ts, e.Kind, lang, e.Text)
		}
	}
	return nil
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}
