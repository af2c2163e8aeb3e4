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
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/voicedesk/services/desk/config"
	"github.com/AleutianAI/voicedesk/services/desk/server"
)

var serveDebug bool

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the desk API for the voice runtime",
		Long: `Serve /v1/desk and /metrics on DESK_HTTP_ADDR.

SIGINT or SIGTERM ends open calls, flushes analytics and telemetry, closes
the journal and wipes secrets from memory before exiting.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable gin debug mode and request logging")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, os.Stderr, collaborators{})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:            cfg.HTTPAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Debug:           serveDebug,
	}, rt.coord, rt.logger)

	runErr := srv.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil {
		rt.logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
	rt.logger.Info("voicedesk stopped")
	return runErr
}
