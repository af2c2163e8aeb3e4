// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent coordinates a call: it opens and closes sessions, tracks
// the reply language per turn, triggers identification on a greeting, and
// turns tool results into single-language replies.
//
// The hosting runtime owns speech and intent. This package only sees text
// turns and tool requests.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/voicedesk/services/desk/analytics"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/format"
	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/journal"
	"github.com/AleutianAI/voicedesk/services/desk/language"
	"github.com/AleutianAI/voicedesk/services/desk/session"
	"github.com/AleutianAI/voicedesk/services/desk/telemetry"
)

const agentTracerName = "voicedesk.agent"

// Journal is the call log the coordinator writes turns to.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) error
	List(ctx context.Context, sessionID string) ([]journal.Entry, error)
}

// Config wires a Coordinator.
type Config struct {
	// Store, Dispatcher and Journal are required.
	Store      *session.Store
	Dispatcher *dispatch.Dispatcher
	Journal    Journal

	// Analytics receives call summaries. Nil uses analytics.Noop.
	Analytics analytics.Sink

	// GreetingKeywords trigger get_client_data while the caller is
	// anonymous. Empty disables the trigger.
	GreetingKeywords []string

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Turn is the outcome of one coordinator call.
type Turn struct {
	SessionID string            `json:"session_id"`
	Language  language.Language `json:"language"`

	// Reply is nil when there is nothing to say, e.g. an utterance that
	// triggered no tool.
	Reply *format.Message `json:"reply,omitempty"`

	// Result is set when a tool ran.
	Result *dispatch.ToolResult `json:"result,omitempty"`
}

// Coordinator runs calls.
//
// # Description
//
// Every utterance updates the session language before anything else, so
// replies rendered later in the same turn already use it. Journal writes
// are best effort: a failed write is logged and the turn goes on.
//
// # Thread Safety
//
// Safe for concurrent use. Turns of different calls never share state.
type Coordinator struct {
	store      *session.Store
	dispatcher *dispatch.Dispatcher
	journal    Journal
	analytics  analytics.Sink
	greetings  greetingMatcher
	tracer     trace.Tracer
	hub        *hub
	logger     *slog.Logger
}

// New builds a Coordinator and registers it as a dispatch observer so tool
// invocations reach stream subscribers.
func New(cfg Config, logger *slog.Logger) (*Coordinator, error) {
	if cfg.Store == nil || cfg.Dispatcher == nil || cfg.Journal == nil {
		return nil, errors.New("agent: store, dispatcher and journal are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Analytics == nil {
		cfg.Analytics = analytics.Noop{}
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	logger = logger.With(slog.String("component", "agent"))

	c := &Coordinator{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		journal:    cfg.Journal,
		analytics:  cfg.Analytics,
		greetings:  newGreetingMatcher(cfg.GreetingKeywords),
		tracer:     tp.Tracer(agentTracerName),
		hub:        newHub(logger),
		logger:     logger,
	}
	cfg.Dispatcher.AddObserver(c)
	return c, nil
}

// StartCall opens a session and returns the opening greeting.
//
// Inputs:
//   - ctx: Context for journal writes.
//   - participantIdentity: Raw caller identity from the hosting runtime.
//
// Outputs:
//   - Turn: The new session id and the greeting in the default language.
func (c *Coordinator) StartCall(ctx context.Context, participantIdentity string) Turn {
	ctx, span := c.tracer.Start(ctx, "agent.StartCall")
	defer span.End()

	s := c.store.Create(participantIdentity)
	snap := s.Snapshot()
	span.SetAttributes(
		attribute.String("session.id", snap.ID),
		attribute.Bool("session.phone_resolved", snap.Phone != ""),
	)

	c.record(ctx, journal.Entry{
		SessionID: snap.ID,
		Kind:      journal.KindCallStarted,
		Text:      identity.Mask(snap.Phone),
		At:        snap.StartedAt,
	})

	greeting := format.Greeting(language.Default)
	c.reply(ctx, snap.ID, greeting)
	return Turn{SessionID: snap.ID, Language: greeting.Language, Reply: &greeting}
}

// HandleUtterance records a caller turn.
//
// Description:
//
//	The reply language is resolved from the text and stored on the
//	session. If the caller is still anonymous and the text contains a
//	greeting keyword, get_client_data runs for the caller's own number and
//	its rendered result becomes the reply.
//
// Outputs:
//   - Turn: Reply is nil unless identification ran.
//   - error: session.ErrNotFound or session.ErrClosed.
func (c *Coordinator) HandleUtterance(ctx context.Context, sessionID, text string) (Turn, error) {
	ctx, span := c.tracer.Start(ctx, "agent.HandleUtterance",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	s, err := c.store.Get(sessionID)
	if err != nil {
		return Turn{}, c.fail(span, err)
	}

	var (
		lang      language.Language
		anonymous bool
	)
	err = s.Update(func(r *session.Record) error {
		lang = language.Resolve(text, r.Language)
		r.Language = lang
		anonymous = r.State == session.Anonymous
		return nil
	})
	if err != nil {
		return Turn{}, c.fail(span, err)
	}
	span.SetAttributes(attribute.String("language", string(lang)))

	c.record(ctx, journal.Entry{SessionID: sessionID, Kind: journal.KindUtterance, Language: lang, Text: text})

	turn := Turn{SessionID: sessionID, Language: lang}
	if !anonymous || !c.greetings.match(text) {
		return turn, nil
	}

	telemetry.LoggerWithTrace(ctx, c.logger).Debug("agent: greeting triggers identification",
		slog.String("session_id", sessionID),
	)
	return c.invoke(ctx, s, dispatch.ToolGetClientData, map[string]any{}), nil
}

// InvokeTool runs a tool requested by the hosting runtime and renders the
// reply in the session language.
//
// Outputs:
//   - Turn: Always carries Result. Reply is nil for suppressed results.
//   - error: session.ErrNotFound for unknown sessions. Tool failures are
//     reported in Result, not here.
func (c *Coordinator) InvokeTool(ctx context.Context, sessionID, tool string, args map[string]any) (Turn, error) {
	ctx, span := c.tracer.Start(ctx, "agent.InvokeTool", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("tool", tool),
	))
	defer span.End()

	s, err := c.store.Get(sessionID)
	if err != nil {
		return Turn{}, c.fail(span, err)
	}
	return c.invoke(ctx, s, tool, args), nil
}

// InvokeToolCall runs a tool call emitted by an LLM.
func (c *Coordinator) InvokeToolCall(ctx context.Context, sessionID string, call llms.ToolCall) (Turn, error) {
	tool, args, err := dispatch.FromToolCall(call)
	if err != nil {
		return Turn{}, err
	}
	return c.InvokeTool(ctx, sessionID, tool, args)
}

// EndCall tears the session down and reports the call to analytics.
// In-flight tools keep running; their results are discarded.
func (c *Coordinator) EndCall(ctx context.Context, sessionID string) (session.Snapshot, error) {
	ctx, span := c.tracer.Start(ctx, "agent.EndCall",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	s, err := c.store.Close(sessionID)
	if err != nil {
		return session.Snapshot{}, c.fail(span, err)
	}
	snap := s.Snapshot()

	c.record(ctx, journal.Entry{
		SessionID: sessionID,
		Kind:      journal.KindCallEnded,
		Language:  snap.Language,
		Text:      string(snap.State),
		At:        snap.EndedAt,
	})
	c.analytics.CallEnded(ctx, snap)
	c.hub.closeSession(sessionID)
	return snap, nil
}

// Transcript returns the journal of a call, open or ended.
func (c *Coordinator) Transcript(ctx context.Context, sessionID string) ([]journal.Entry, error) {
	entries, err := c.journal.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("agent: transcript %s: %w", sessionID, err)
	}
	return entries, nil
}

// Session returns a snapshot of an open call.
func (c *Coordinator) Session(sessionID string) (session.Snapshot, error) {
	s, err := c.store.Get(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// OpenCalls returns the number of calls in progress.
func (c *Coordinator) OpenCalls() int {
	return c.store.Len()
}

// Subscribe streams a call's journal entries as they are written. The
// channel is closed when the call ends or cancel is called.
func (c *Coordinator) Subscribe(sessionID string) (<-chan journal.Entry, func(), error) {
	if _, err := c.store.Get(sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := c.hub.subscribe(sessionID)
	return ch, cancel, nil
}

// Shutdown ends every open call.
func (c *Coordinator) Shutdown(ctx context.Context) int {
	snaps := c.store.List()
	for _, snap := range snaps {
		if _, err := c.EndCall(ctx, snap.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
			c.logger.Warn("agent: ending call on shutdown",
				slog.String("session_id", snap.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(snaps)
}

// ToolInvoked implements dispatch.Observer by streaming tool entries.
// The journal itself is written by journal.Journal's own observer.
func (c *Coordinator) ToolInvoked(_ context.Context, _ map[string]any, res dispatch.ToolResult) {
	c.hub.publish(journal.Entry{
		SessionID: res.SessionID,
		At:        time.Now().UTC(),
		Kind:      journal.KindTool,
		Tool:      res.Tool,
		Status:    string(res.Status),
		Reason:    string(res.Reason),
	})
}

func (c *Coordinator) invoke(ctx context.Context, s *session.Session, tool string, args map[string]any) Turn {
	res := c.dispatcher.Dispatch(ctx, s, tool, args)
	lang := s.Snapshot().Language

	turn := Turn{SessionID: s.ID(), Result: &res}
	msg := format.Render(lang, res)
	turn.Language = msg.Language
	if !msg.Suppressed {
		c.reply(ctx, s.ID(), msg)
		turn.Reply = &msg
	}
	return turn
}

func (c *Coordinator) reply(ctx context.Context, sessionID string, msg format.Message) {
	c.record(ctx, journal.Entry{
		SessionID: sessionID,
		Kind:      journal.KindReply,
		Language:  msg.Language,
		Text:      msg.Text,
	})
}

// record journals and streams an entry. Failures are logged only.
func (c *Coordinator) record(ctx context.Context, e journal.Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.At = e.At.UTC()
	if err := c.journal.Append(context.WithoutCancel(ctx), e); err != nil {
		telemetry.LoggerWithTrace(ctx, c.logger).Warn("agent: journal write failed",
			slog.String("session_id", e.SessionID),
			slog.String("kind", string(e.Kind)),
			slog.String("error", err.Error()),
		)
	}
	c.hub.publish(e)
}

func (c *Coordinator) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
