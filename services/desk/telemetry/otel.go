// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config selects the OpenTelemetry exporters.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint is a host:port for the OTLP gRPC trace exporter. Empty
	// disables it.
	OTLPEndpoint string
	OTLPInsecure bool

	// TraceStdout writes spans to StdoutWriter.
	TraceStdout bool

	// MetricStdout writes metrics to StdoutWriter every MetricInterval.
	MetricStdout   bool
	MetricInterval time.Duration

	// StdoutWriter defaults to os.Stdout.
	StdoutWriter io.Writer

	// Registerer receives the OTel Prometheus bridge. Nil means
	// prometheus.DefaultRegisterer so OTel instruments show up on /metrics
	// next to the promauto ones.
	Registerer prometheus.Registerer
}

// ShutdownFunc flushes and stops the providers installed by Setup.
type ShutdownFunc func(ctx context.Context) error

// Setup installs global tracer and meter providers and the W3C propagator.
//
// Description:
//
//	A tracer provider is always installed so spans carry valid ids for log
//	correlation, even when no exporter is configured. Metrics always go
//	through the Prometheus bridge.
//
// Inputs:
//   - ctx: Used while dialing the OTLP exporter.
//   - cfg: Exporter selection.
//   - logger: May be nil.
//
// Outputs:
//   - ShutdownFunc: Flushes both providers. Never nil on success.
//   - error: Non-nil if an exporter cannot be built.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voicedesk"
	}
	if cfg.StdoutWriter == nil {
		cfg.StdoutWriter = os.Stdout
	}
	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = time.Minute
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp))
	}
	if cfg.TraceStdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.StdoutWriter))
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithSyncer(exp))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	promExp, err := otelprom.New(otelprom.WithRegisterer(cfg.Registerer))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
	}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res), sdkmetric.WithReader(promExp)}
	if cfg.MetricStdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.StdoutWriter))
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.MetricInterval)),
		))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("otlp", cfg.OTLPEndpoint != ""),
		slog.Bool("trace_stdout", cfg.TraceStdout),
		slog.Bool("metric_stdout", cfg.MetricStdout),
	)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
