// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch validates and executes the dialogue runtime's tool calls
// against the CRM and messaging collaborators.
//
// # Check Order
//
// Every invocation goes through the same gates, and the first failing gate
// decides the reason:
//
//  1. Unknown tool name: UnknownTool.
//  2. Argument decoding and validation: InvalidArguments, before any
//     collaborator is called.
//  3. Session already closed: SessionClosed.
//  4. Same tool already running for this session: AlreadyInFlight.
//  5. Argument resolution: IdentityNotResolved, NotIdentified, NoCatalogMatch.
//  6. Collaborator call under a per-call deadline: NetworkError,
//     RemoteRejected, Timeout, Canceled.
//
// Session updates go through session.Session.Update and are dropped when
// the call has been torn down in the meantime.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/messaging"
	"github.com/AleutianAI/voicedesk/services/desk/remote"
	"github.com/AleutianAI/voicedesk/services/desk/session"
	"github.com/AleutianAI/voicedesk/services/desk/telemetry"
)

const dispatchTracerName = "voicedesk.dispatch"

const (
	// DefaultTimeout bounds each collaborator call. It is a tuning value,
	// not a protocol constant.
	DefaultTimeout = 8 * time.Second

	// DefaultImageConcurrency bounds parallel image sends in get_vehicle_data.
	DefaultImageConcurrency = 4
)

var (
	// ErrNotIdentified is returned when a tool needs a client id and neither
	// the arguments nor the session carry one.
	ErrNotIdentified = errors.New("dispatch: caller not identified")

	// ErrUnknownBranch is returned when the branch directory has no branch
	// of the requested type.
	ErrUnknownBranch = errors.New("dispatch: no branch of that type")
)

// CRM is the customer system of record.
type CRM interface {
	FindClientByPhone(ctx context.Context, phone string) (session.ClientRecord, bool, error)
	CreateClient(ctx context.Context, in crm.ClientInput) (session.ClientRecord, error)
	ListVehicles(ctx context.Context, clientID string) ([]crm.Vehicle, error)
	ListTickets(ctx context.Context, filter crm.TicketFilter) ([]crm.Ticket, error)
	CreateTicket(ctx context.Context, in crm.NewTicket) (crm.Ticket, error)
}

// Messenger delivers WhatsApp messages to the caller.
type Messenger interface {
	SendImage(ctx context.Context, to, imageURL, caption string) (messaging.Ack, error)
	SendText(ctx context.Context, to, body string) (messaging.Ack, error)
}

// Observer is told about every finished invocation, including rejected ones.
//
// Thread Safety: ToolInvoked may be called concurrently and must not block
// for long; it runs on the dispatching goroutine.
type Observer interface {
	ToolInvoked(ctx context.Context, args map[string]any, result ToolResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, args map[string]any, result ToolResult)

// ToolInvoked calls f.
func (f ObserverFunc) ToolInvoked(ctx context.Context, args map[string]any, result ToolResult) {
	f(ctx, args, result)
}

// Config wires a Dispatcher to its collaborators.
type Config struct {
	CRM       CRM
	Messenger Messenger
	Catalog   *catalog.Catalog

	// MatchThreshold is the fuzzy catalog threshold. Zero uses
	// catalog.DefaultMatchThreshold.
	MatchThreshold float64

	// Timeout is the per-call deadline. Zero uses DefaultTimeout.
	Timeout time.Duration

	// ImageConcurrency bounds parallel image sends. Zero uses
	// DefaultImageConcurrency.
	ImageConcurrency int

	Observers []Observer
}

// binder decodes arguments and returns the bound call.
type binder func(args map[string]any) (invocation, error)

type invocation func(ctx context.Context, s *session.Session) (Payload, error)

// Dispatcher executes tool calls.
//
// Thread Safety: Safe for concurrent use. Per-session single-flight is
// enforced through session.Session.Begin.
type Dispatcher struct {
	crm       CRM
	messenger Messenger
	catalog   *catalog.Catalog
	matcher   *catalog.Matcher

	timeout          time.Duration
	imageConcurrency int
	observers        []Observer

	validate *validator.Validate
	tools    map[string]binder
	metrics  *dispatchMetrics
	logger   *slog.Logger
}

// New creates a Dispatcher.
//
// Inputs:
//   - cfg: Collaborators and tuning. CRM, Messenger and Catalog are required.
//   - logger: May be nil.
//
// Outputs:
//   - *Dispatcher: Ready to use.
//   - error: Non-nil if a required collaborator is missing.
func New(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	if cfg.CRM == nil {
		return nil, fmt.Errorf("dispatch: CRM is required")
	}
	if cfg.Messenger == nil {
		return nil, fmt.Errorf("dispatch: Messenger is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("dispatch: Catalog is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ImageConcurrency <= 0 {
		cfg.ImageConcurrency = DefaultImageConcurrency
	}

	d := &Dispatcher{
		crm:              cfg.CRM,
		messenger:        cfg.Messenger,
		catalog:          cfg.Catalog,
		matcher:          catalog.NewMatcher(cfg.Catalog, cfg.MatchThreshold, logger),
		timeout:          cfg.Timeout,
		imageConcurrency: cfg.ImageConcurrency,
		observers:        cfg.Observers,
		validate:         newValidator(),
		metrics:          newDispatchMetrics(),
		logger:           logger.With(slog.String("component", "dispatch")),
	}
	d.tools = map[string]binder{
		ToolGetClientData:       bind(d, ToolGetClientData, d.getClientData),
		ToolCreateClient:        bind(d, ToolCreateClient, d.createClient),
		ToolGetVehicleData:      bind(d, ToolGetVehicleData, d.getVehicleData),
		ToolSendCarImage:        bind(d, ToolSendCarImage, d.sendCarImage),
		ToolSendLocation:        bind(d, ToolSendLocation, d.sendLocation),
		ToolCreateServiceTicket: bind(d, ToolCreateServiceTicket, d.createServiceTicket),
		ToolGetServiceTickets:   bind(d, ToolGetServiceTickets, d.getServiceTickets),
	}
	return d, nil
}

func bind[A any](d *Dispatcher, tool string, fn func(context.Context, *session.Session, *A) (Payload, error)) binder {
	return func(args map[string]any) (invocation, error) {
		a, err := decodeArgs[A](d.validate, tool, args)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session.Session) (Payload, error) {
			return fn(ctx, s, a)
		}, nil
	}
}

// Matcher returns the catalog matcher used by send_car_image.
func (d *Dispatcher) Matcher() *catalog.Matcher {
	return d.matcher
}

// Timeout returns the per-call deadline.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// AddObserver registers an observer. Not safe to call concurrently with Dispatch.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// Dispatch runs one tool call for a session.
//
// Description:
//
//	Never returns a Go error: every outcome, including rejections before
//	any collaborator is called, is a ToolResult. The tool's per-call
//	deadline is derived from ctx, so cancelling ctx cancels the call.
//
// Inputs:
//   - ctx: Parent context.
//   - s: The call's session.
//   - tool: Tool name.
//   - args: Arguments as decoded from the model's JSON.
//
// Outputs:
//   - ToolResult: Always populated.
func (d *Dispatcher) Dispatch(ctx context.Context, s *session.Session, tool string, args map[string]any) ToolResult {
	start := time.Now()
	ctx, span := otel.Tracer(dispatchTracerName).Start(ctx, "dispatch."+tool,
		trace.WithAttributes(
			attribute.String("session.id", s.ID()),
			attribute.String("tool", tool),
		),
	)
	defer span.End()

	res := ToolResult{
		InvocationID: uuid.NewString(),
		SessionID:    s.ID(),
		Tool:         tool,
		Status:       StatusSuccess,
	}
	res = d.run(ctx, s, res, args)
	res.Duration = time.Since(start)

	span.SetAttributes(attribute.String("tool.status", string(res.Status)))
	if !res.OK() {
		span.SetAttributes(attribute.String("tool.reason", string(res.Reason)))
		span.SetStatus(codes.Error, string(res.Reason))
	}
	d.metrics.record(ctx, res)

	logger := telemetry.LoggerWithTrace(ctx, d.logger)
	attrs := []any{
		slog.String("session_id", res.SessionID),
		slog.String("invocation_id", res.InvocationID),
		slog.String("tool", tool),
		slog.String("status", string(res.Status)),
		slog.Duration("duration", res.Duration),
	}
	switch {
	case res.OK():
		logger.Info("tool succeeded", attrs...)
	case res.Reason == ReasonAlreadyInFlight:
		logger.Debug("tool already in flight", attrs...)
	default:
		attrs = append(attrs, slog.String("reason", string(res.Reason)), slog.String("detail", res.Detail))
		logger.Warn("tool failed", attrs...)
	}

	for _, o := range d.observers {
		o.ToolInvoked(ctx, args, res)
	}
	return res
}

func (d *Dispatcher) run(ctx context.Context, s *session.Session, res ToolResult, args map[string]any) ToolResult {
	b, ok := d.tools[res.Tool]
	if !ok {
		return failed(res, ReasonUnknownTool, fmt.Errorf("unknown tool %q", res.Tool))
	}

	call, err := b(args)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			res.Fields = argErr.Fields
		}
		return failed(res, ReasonInvalidArguments, err)
	}

	release, err := s.Begin(res.Tool)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			return failed(res, ReasonSessionClosed, err)
		}
		return failed(res, ReasonAlreadyInFlight, err)
	}
	defer release()

	if err := s.Update(func(r *session.Record) error {
		r.LastIntent = res.Tool
		return nil
	}); err != nil {
		return failed(res, ReasonSessionClosed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	payload, err := call(callCtx, s)
	res.Payload = payload
	if s.Closed() {
		res.Discarded = true
	}
	if err != nil {
		reason, status := classify(err)
		res.StatusCode = status
		return failed(res, reason, err)
	}
	return res
}

func failed(res ToolResult, reason Reason, err error) ToolResult {
	res.Status = StatusError
	res.Reason = reason
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}

// classify maps a tool failure to its Reason and, for RemoteRejected, the
// collaborator status code.
func classify(err error) (Reason, int) {
	switch {
	case errors.Is(err, session.ErrClosed):
		return ReasonSessionClosed, 0
	case errors.Is(err, identity.ErrIdentityNotResolved):
		return ReasonIdentityNotResolved, 0
	case errors.Is(err, ErrNotIdentified):
		return ReasonNotIdentified, 0
	case errors.Is(err, catalog.ErrNoCatalogMatch), errors.Is(err, ErrUnknownBranch):
		return ReasonNoCatalogMatch, 0
	}

	if re, ok := remote.As(err); ok {
		switch re.Kind {
		case remote.KindRejected:
			return ReasonRemoteRejected, re.StatusCode
		case remote.KindTimeout:
			return ReasonTimeout, 0
		case remote.KindCanceled:
			return ReasonCanceled, 0
		default:
			return ReasonNetworkError, 0
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout, 0
	case errors.Is(err, context.Canceled):
		return ReasonCanceled, 0
	}
	return ReasonNetworkError, 0
}
