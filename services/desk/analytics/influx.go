// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics exports tool invocations and call summaries as time
// series for dashboards.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/session"
)

const (
	measurementTool = "voicedesk_tool"
	measurementCall = "voicedesk_call"
)

// Sink receives analytics events. Implementations must not block the
// caller on network I/O.
type Sink interface {
	dispatch.Observer

	// CallEnded records a finished call.
	CallEnded(ctx context.Context, snap session.Snapshot)

	// Close flushes pending points.
	Close()
}

// Noop discards everything.
type Noop struct{}

func (Noop) ToolInvoked(context.Context, map[string]any, dispatch.ToolResult) {}
func (Noop) CallEnded(context.Context, session.Snapshot)                       {}
func (Noop) Close()                                                            {}

// InfluxConfig configures an Influx sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// BatchSize is the number of points buffered before a write. Zero uses 100.
	BatchSize uint

	// FlushInterval bounds how long a point waits in the buffer. Zero uses 1s.
	FlushInterval time.Duration
}

// pointWriter is the part of api.WriteAPI the sink needs.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Influx writes points through the client's non-blocking write API.
//
// Thread Safety: Safe for concurrent use.
type Influx struct {
	client influxdb2.Client
	writer pointWriter
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewInflux connects a sink to InfluxDB 2.x.
//
// Description:
//
//	The connection is lazy: nothing is sent until the first batch fills or
//	the flush interval passes. Write errors are logged from a background
//	goroutine and never reach the dispatcher.
func NewInflux(cfg InfluxConfig, logger *slog.Logger) (*Influx, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("analytics: influx URL, org and bucket are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	s := &Influx{
		client: client,
		writer: writeAPI,
		logger: logger.With(slog.String("component", "analytics")),
		done:   make(chan struct{}),
	}
	errs := writeAPI.Errors()
	go func() {
		for {
			select {
			case err := <-errs:
				s.logger.Warn("influx write failed", slog.String("error", err.Error()))
			case <-s.done:
				return
			}
		}
	}()
	return s, nil
}

func newInfluxWithWriter(w pointWriter, logger *slog.Logger) *Influx {
	if logger == nil {
		logger = slog.Default()
	}
	return &Influx{writer: w, logger: logger, done: make(chan struct{})}
}

// ToolInvoked implements dispatch.Observer.
func (s *Influx) ToolInvoked(_ context.Context, _ map[string]any, res dispatch.ToolResult) {
	tool := res.Tool
	if res.Reason == dispatch.ReasonUnknownTool {
		tool = "unknown"
	}
	tags := map[string]string{
		"tool":   tool,
		"status": string(res.Status),
	}
	if res.Reason != dispatch.ReasonNone {
		tags["reason"] = string(res.Reason)
	}
	fields := map[string]any{
		"duration_ms": float64(res.Duration.Microseconds()) / 1000,
		"count":       1,
	}
	if res.StatusCode != 0 {
		fields["status_code"] = res.StatusCode
	}
	if res.Discarded {
		fields["discarded"] = true
	}
	if v, ok := res.Payload.(dispatch.VehicleList); ok {
		fields["vehicles"] = len(v.Vehicles)
		fields["images_sent"] = v.ImagesSent
		fields["images_failed"] = v.ImagesFailed
	}
	if img, ok := res.Payload.(dispatch.CarImageSent); ok {
		tags["model"] = img.Entry.Key
		fields["match_ratio"] = img.Ratio
	}
	s.writer.WritePoint(influxdb2.NewPoint(measurementTool, tags, fields, time.Now()))
}

// CallEnded records call length, final state and whether the caller was
// identified.
func (s *Influx) CallEnded(_ context.Context, snap session.Snapshot) {
	end := snap.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	tags := map[string]string{
		"language": string(snap.Language),
	}
	if snap.LastIntent != "" {
		tags["last_intent"] = snap.LastIntent
	}
	fields := map[string]any{
		"duration_s":     end.Sub(snap.StartedAt).Seconds(),
		"identified":     snap.Client != nil,
		"phone_resolved": snap.Phone != "",
	}
	s.writer.WritePoint(influxdb2.NewPoint(measurementCall, tags, fields, end))
}

// Close flushes buffered points and releases the client.
func (s *Influx) Close() {
	s.closeOnce.Do(func() {
		s.writer.Flush()
		close(s.done)
		if s.client != nil {
			s.client.Close()
		}
	})
}
