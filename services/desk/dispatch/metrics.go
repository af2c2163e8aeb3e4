// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const dispatchMeterName = "voicedesk.dispatch"

// dispatchMetrics are OTel instruments exported through the Prometheus
// reader set up in telemetry.Setup.
type dispatchMetrics struct {
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

func newDispatchMetrics() *dispatchMetrics {
	meter := otel.Meter(dispatchMeterName)
	fallback := noop.NewMeterProvider().Meter(dispatchMeterName)

	invocations, err := meter.Int64Counter("voicedesk.dispatch.invocations",
		metric.WithDescription("Tool invocations by tool, status and reason"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		otel.Handle(err)
		invocations, _ = fallback.Int64Counter("voicedesk.dispatch.invocations")
	}

	duration, err := meter.Float64Histogram("voicedesk.dispatch.duration",
		metric.WithDescription("Tool invocation wall time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16),
	)
	if err != nil {
		otel.Handle(err)
		duration, _ = fallback.Float64Histogram("voicedesk.dispatch.duration")
	}

	return &dispatchMetrics{invocations: invocations, duration: duration}
}

func (m *dispatchMetrics) record(ctx context.Context, res ToolResult) {
	tool := res.Tool
	if res.Reason == ReasonUnknownTool {
		tool = "unknown"
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", string(res.Status)),
		attribute.String("reason", string(res.Reason)),
	)
	m.invocations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, res.Duration.Seconds(), attrs)
}
