// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the call coordinator over HTTP for the hosting
// voice runtime.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/voicedesk/services/desk/agent"
)

// Config configures the HTTP surface.
type Config struct {
	// Addr is the listen address, e.g. ":8090".
	Addr string

	// ShutdownTimeout bounds graceful shutdown. Zero uses 10s.
	ShutdownTimeout time.Duration

	// Debug enables gin's debug mode and request logging.
	Debug bool

	// PingInterval is the websocket keepalive period. Zero uses 30s.
	PingInterval time.Duration
}

// Server serves /v1/desk.
//
// Thread Safety: Safe for concurrent use after New returns.
type Server struct {
	cfg     Config
	coord   *agent.Coordinator
	handler *Handlers
	router  *gin.Engine
	logger  *slog.Logger
}

// New builds the router.
//
// Inputs:
//   - cfg: Listen settings.
//   - coord: The call coordinator. Must not be nil.
//   - logger: May be nil.
func New(cfg Config, coord *agent.Coordinator, logger *slog.Logger) *Server {
	if coord == nil {
		panic("server.New: coordinator must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger = logger.With(slog.String("component", "server"))
	h := NewHandlers(coord, cfg.PingInterval, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("voicedesk"))
	if cfg.Debug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterRoutes(router.Group("/v1"), h)

	return &Server{cfg: cfg, coord: coord, handler: h, router: router, logger: logger}
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// Description:
//
//	On cancellation the listener stops accepting, in-flight requests get
//	ShutdownTimeout to finish, and every open call is ended so its summary
//	reaches analytics.
//
// Outputs:
//   - error: Non-nil if the listener fails or shutdown times out.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting voicedesk server", slog.String("address", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down voicedesk server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	ended := s.coord.Shutdown(shutdownCtx)
	s.logger.Info("open calls ended", slog.Int("count", ended))

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
