// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/journal"
	"github.com/AleutianAI/voicedesk/services/desk/language"
	"github.com/AleutianAI/voicedesk/services/desk/messaging"
	"github.com/AleutianAI/voicedesk/services/desk/session"
	badgerstore "github.com/AleutianAI/voicedesk/services/desk/storage/badger"
)

const callerIdentity = "sip:+96566756452@pbx.local"

type fakeCRM struct {
	mu    sync.Mutex
	finds int
}

func (f *fakeCRM) FindClientByPhone(_ context.Context, phone string) (session.ClientRecord, bool, error) {
	f.mu.Lock()
	f.finds++
	f.mu.Unlock()
	return session.ClientRecord{ID: "c1", FirstName: "Sara", LastName: "Ali", Phone: phone}, true, nil
}

func (f *fakeCRM) CreateClient(_ context.Context, in crm.ClientInput) (session.ClientRecord, error) {
	return session.ClientRecord{ID: "c-new", FirstName: in.FirstName, Phone: in.Phone}, nil
}

func (f *fakeCRM) ListVehicles(context.Context, string) ([]crm.Vehicle, error) { return nil, nil }

func (f *fakeCRM) ListTickets(context.Context, crm.TicketFilter) ([]crm.Ticket, error) {
	return nil, nil
}

func (f *fakeCRM) CreateTicket(_ context.Context, in crm.NewTicket) (crm.Ticket, error) {
	return crm.Ticket{ID: "t-1", Title: in.Title}, nil
}

func (f *fakeCRM) findCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finds
}

type fakeMessenger struct {
	mu    sync.Mutex
	texts []string
}

func (m *fakeMessenger) SendImage(context.Context, string, string, string) (messaging.Ack, error) {
	return messaging.Ack{MessageID: "wamid.img"}, nil
}

func (m *fakeMessenger) SendText(_ context.Context, _ string, body string) (messaging.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, body)
	return messaging.Ack{MessageID: "wamid.txt"}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	calls []session.Snapshot
	tools int
}

func (r *recordingSink) ToolInvoked(context.Context, map[string]any, dispatch.ToolResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools++
}

func (r *recordingSink) CallEnded(_ context.Context, snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, snap)
}

func (r *recordingSink) Close() {}

type failingJournal struct{}

func (failingJournal) Append(context.Context, journal.Entry) error {
	return errors.New("disk full")
}

func (failingJournal) List(context.Context, string) ([]journal.Entry, error) {
	return nil, errors.New("disk full")
}

type fixture struct {
	coord     *Coordinator
	crm       *fakeCRM
	messenger *fakeMessenger
	sink      *recordingSink
	spans     *tracetest.SpanRecorder
}

func newFixture(t *testing.T, j Journal) *fixture {
	t.Helper()
	f := &fixture{
		crm:       &fakeCRM{},
		messenger: &fakeMessenger{},
		sink:      &recordingSink{},
		spans:     tracetest.NewSpanRecorder(),
	}
	cat, err := catalog.Default()
	require.NoError(t, err)
	d, err := dispatch.New(dispatch.Config{
		CRM:       f.crm,
		Messenger: f.messenger,
		Catalog:   cat,
		Timeout:   2 * time.Second,
		Observers: []dispatch.Observer{f.sink},
	}, nil)
	require.NoError(t, err)

	if j == nil {
		db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		j = journal.New(db, time.Hour, nil)
	}

	f.coord, err = New(Config{
		Store:            session.NewStore(nil),
		Dispatcher:       d,
		Journal:          j,
		Analytics:        f.sink,
		GreetingKeywords: []string{"السلام عليكم", "أهلا", "hello", "hi"},
		TracerProvider:   sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans)),
	}, nil)
	require.NoError(t, err)
	return f
}

func kinds(entries []journal.Entry) []journal.Kind {
	out := make([]journal.Kind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestCoordinator_StartCall(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	turn := f.coord.StartCall(ctx, callerIdentity)
	require.NotEmpty(t, turn.SessionID)
	require.NotNil(t, turn.Reply)
	assert.Equal(t, language.Arabic, turn.Language)
	assert.Equal(t, language.Arabic, language.Detect(turn.Reply.Text))

	snap, err := f.coord.Session(turn.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "+96566756452", snap.Phone)
	assert.Equal(t, session.Anonymous, snap.State)

	entries, err := f.coord.Transcript(ctx, turn.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []journal.Kind{journal.KindCallStarted, journal.KindReply}, kinds(entries))
	assert.NotContains(t, entries[0].Text, "66756452", "journal stores the masked number")
}

func TestCoordinator_GreetingTriggersIdentification(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.coord.StartCall(ctx, callerIdentity).SessionID

	turn, err := f.coord.HandleUtterance(ctx, id, "Hello, good morning")
	require.NoError(t, err)
	assert.Equal(t, language.English, turn.Language)
	require.NotNil(t, turn.Result)
	assert.Equal(t, dispatch.ToolGetClientData, turn.Result.Tool)
	assert.True(t, turn.Result.OK())
	require.NotNil(t, turn.Reply)
	assert.Contains(t, turn.Reply.Text, "Sara")
	assert.False(t, language.ContainsArabic(turn.Reply.Text))

	snap, err := f.coord.Session(id)
	require.NoError(t, err)
	assert.Equal(t, session.Identified, snap.State)
	require.NotNil(t, snap.Client)
	assert.Equal(t, "c1", snap.Client.ID)

	// Already identified: a second greeting does not call the CRM again.
	turn, err = f.coord.HandleUtterance(ctx, id, "hello")
	require.NoError(t, err)
	assert.Nil(t, turn.Result)
	assert.Nil(t, turn.Reply)
	assert.Equal(t, 1, f.crm.findCount())
}

func TestCoordinator_UtteranceWithoutGreeting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.coord.StartCall(ctx, callerIdentity).SessionID

	turn, err := f.coord.HandleUtterance(ctx, id, "this is about my car")
	require.NoError(t, err)
	assert.Nil(t, turn.Result)
	assert.Nil(t, turn.Reply)
	assert.Equal(t, 0, f.crm.findCount())
}

func TestCoordinator_LanguageCarriesOver(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.coord.StartCall(ctx, callerIdentity).SessionID

	turn, err := f.coord.HandleUtterance(ctx, id, "أهلاً")
	require.NoError(t, err)
	assert.Equal(t, language.Arabic, turn.Language)
	require.NotNil(t, turn.Reply)
	assert.Equal(t, language.Arabic, language.Detect(turn.Reply.Text))

	turn, err = f.coord.HandleUtterance(ctx, id, "12345")
	require.NoError(t, err)
	assert.Equal(t, language.Arabic, turn.Language)

	turn, err = f.coord.InvokeTool(ctx, id, dispatch.ToolSendLocation, map[string]any{"location_type": "parts"})
	require.NoError(t, err)
	require.NotNil(t, turn.Reply)
	assert.Equal(t, language.Arabic, turn.Reply.Language)
	require.Len(t, f.messenger.texts, 1)
	assert.True(t, language.ContainsArabic(f.messenger.texts[0]))
}

func TestCoordinator_InvokeToolCall(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.coord.StartCall(ctx, callerIdentity).SessionID
	_, err := f.coord.HandleUtterance(ctx, id, "where is the service center")
	require.NoError(t, err)

	turn, err := f.coord.InvokeToolCall(ctx, id, llms.ToolCall{
		ID:   "call_1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      dispatch.ToolSendLocation,
			Arguments: `{"location_type":"service"}`,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, turn.Result)
	assert.True(t, turn.Result.OK())
	assert.Equal(t, language.English, turn.Reply.Language)

	_, err = f.coord.InvokeToolCall(ctx, id, llms.ToolCall{ID: "call_2"})
	assert.Error(t, err)
}

func TestCoordinator_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.coord.HandleUtterance(ctx, "nope", "hello")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.coord.InvokeTool(ctx, "nope", dispatch.ToolSendLocation, nil)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.coord.EndCall(ctx, "nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, _, err = f.coord.Subscribe("nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCoordinator_EndCall(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.coord.StartCall(ctx, callerIdentity).SessionID

	events, cancel, err := f.coord.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	_, err = f.coord.HandleUtterance(ctx, id, "hi")
	require.NoError(t, err)

	snap, err := f.coord.EndCall(ctx, id)
	require.NoError(t, err)
	assert.True(t, snap.Closed)
	assert.Equal(t, session.Closed, snap.State)

	var streamed []journal.Kind
	for e := range events {
		streamed = append(streamed, e.Kind)
	}
	assert.Equal(t, []journal.Kind{journal.KindUtterance, journal.KindTool, journal.KindReply, journal.KindCallEnded}, streamed)

	require.Len(t, f.sink.calls, 1)
	assert.Equal(t, id, f.sink.calls[0].ID)
	assert.Equal(t, 1, f.sink.tools)

	entries, err := f.coord.Transcript(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, journal.KindCallEnded, entries[len(entries)-1].Kind)

	_, err = f.coord.EndCall(ctx, id)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCoordinator_Shutdown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.coord.StartCall(ctx, callerIdentity)
	f.coord.StartCall(ctx, "unknown-caller")

	assert.Equal(t, 2, f.coord.Shutdown(ctx))
	assert.Len(t, f.sink.calls, 2)
}

func TestCoordinator_JournalFailureDoesNotBreakTurns(t *testing.T) {
	f := newFixture(t, failingJournal{})
	ctx := context.Background()
	id := f.coord.StartCall(ctx, callerIdentity).SessionID

	turn, err := f.coord.HandleUtterance(ctx, id, "hello")
	require.NoError(t, err)
	require.NotNil(t, turn.Reply)

	_, err = f.coord.Transcript(ctx, id)
	assert.Error(t, err)
}

func TestCoordinator_Spans(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.coord.StartCall(ctx, callerIdentity).SessionID
	_, _ = f.coord.HandleUtterance(ctx, id, "hi")
	_, _ = f.coord.HandleUtterance(ctx, "missing", "hi")

	var names []string
	var failed int
	for _, s := range f.spans.Ended() {
		names = append(names, s.Name())
		if len(s.Events()) > 0 {
			failed++
		}
	}
	assert.Contains(t, names, "agent.StartCall")
	assert.Contains(t, names, "agent.HandleUtterance")
	assert.Equal(t, 1, failed)
}

func TestGreetingMatcher(t *testing.T) {
	g := newGreetingMatcher([]string{"السلام عليكم", "أهلا", "hi", " "})

	assert.True(t, g.match("السلامُ عليكم، أبي أسأل عن سيارتي"))
	assert.True(t, g.match("اهلا"))
	assert.True(t, g.match("Hi!"))
	assert.False(t, g.match("this is Sara"))
	assert.False(t, g.match("السلام"))
	assert.False(t, g.match(""))
}
