// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/voicedesk/services/desk/telemetry"
)

const remoteTracerName = "voicedesk.remote"

// MaxResponseBytes bounds the response body read from a collaborator.
const MaxResponseBytes = 4 << 20

// DefaultHTTPTimeout is the client-level timeout used when no client is
// supplied. Dispatch applies its own, usually shorter, per-call deadline.
const DefaultHTTPTimeout = 15 * time.Second

// Caller sends requests to one collaborator and turns every failure into
// an *Error.
//
// Thread Safety: Safe for concurrent use.
type Caller struct {
	target string
	client *http.Client
	logger *slog.Logger
}

// NewCaller creates a caller for a named collaborator.
//
// Inputs:
//   - target: Collaborator name used in metrics and spans ("crm", "whatsapp").
//   - client: HTTP client. Nil uses a client with DefaultHTTPTimeout.
//   - logger: May be nil.
func NewCaller(target string, client *http.Client, logger *slog.Logger) *Caller {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{target: target, client: client, logger: logger}
}

// Target returns the collaborator name.
func (c *Caller) Target() string {
	return c.target
}

// Request describes one outbound call.
type Request struct {
	// Op is the operation name, e.g. "list_clients".
	Op     string
	Method string
	URL    string

	// Body is JSON-encoded when non-nil.
	Body any

	Header http.Header
}

// Response is a successful (2xx) answer.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the body into v, reporting a KindRejected error when
// the body is not the expected JSON.
func (r *Response) Decode(op string, v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return Malformed(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// Do sends a request and reads the answer.
//
// Description:
//
//	Opens a span named "<target>.<op>", records call metrics, and maps
//	transport failures, timeouts, cancellations and non-2xx statuses to
//	*Error. Never returns a raw transport error.
//
// Inputs:
//   - ctx: Carries the per-call deadline.
//   - req: The call to make.
//
// Outputs:
//   - *Response: The 2xx answer.
//   - error: Always an *Error when non-nil.
func (c *Caller) Do(ctx context.Context, req Request) (*Response, error) {
	op := c.target + "." + req.Op
	ctx, span := otel.Tracer(remoteTracerName).Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("remote.target", c.target),
			attribute.String("http.method", req.Method),
		),
	)
	defer span.End()

	remoteActiveRequests.WithLabelValues(c.target).Inc()
	defer remoteActiveRequests.WithLabelValues(c.target).Dec()

	start := time.Now()
	resp, rerr := c.do(ctx, op, req)
	duration := time.Since(start)
	recordCall(c.target, req.Op, duration, rerr)

	logger := telemetry.LoggerWithTrace(ctx, c.logger)
	if rerr != nil {
		span.RecordError(rerr)
		span.SetStatus(codes.Error, string(rerr.Kind))
		if rerr.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.status_code", rerr.StatusCode))
		}
		logger.Warn("remote call failed",
			slog.String("op", op),
			slog.String("kind", string(rerr.Kind)),
			slog.Int("status", rerr.StatusCode),
			slog.Duration("duration", duration),
		)
		return nil, rerr
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	logger.Debug("remote call succeeded",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
	)
	return resp, nil
}

func (c *Caller) do(ctx context.Context, op string, req Request) (*Response, *Error) {
	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Op: op, Kind: KindNetwork, Err: fmt.Errorf("encoding request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindNetwork, Err: fmt.Errorf("building request: %w", err)}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, Classify(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, Classify(op, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, Rejected(op, resp.StatusCode, raw)
	}
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}
