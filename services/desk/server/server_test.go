// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/voicedesk/services/desk/agent"
	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/journal"
	"github.com/AleutianAI/voicedesk/services/desk/messaging"
	"github.com/AleutianAI/voicedesk/services/desk/session"
	badgerstore "github.com/AleutianAI/voicedesk/services/desk/storage/badger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const callerIdentity = "+96566756452"

type stubCRM struct{}

func (stubCRM) FindClientByPhone(_ context.Context, phone string) (session.ClientRecord, bool, error) {
	return session.ClientRecord{}, false, nil
}

func (stubCRM) CreateClient(_ context.Context, in crm.ClientInput) (session.ClientRecord, error) {
	return session.ClientRecord{ID: "c-new", FirstName: in.FirstName, LastName: in.LastName, Phone: in.Phone}, nil
}

func (stubCRM) ListVehicles(context.Context, string) ([]crm.Vehicle, error) { return nil, nil }

func (stubCRM) ListTickets(context.Context, crm.TicketFilter) ([]crm.Ticket, error) { return nil, nil }

func (stubCRM) CreateTicket(_ context.Context, in crm.NewTicket) (crm.Ticket, error) {
	return crm.Ticket{ID: "t-1", Title: in.Title}, nil
}

type stubMessenger struct {
	mu   sync.Mutex
	sent int
}

func (m *stubMessenger) SendImage(context.Context, string, string, string) (messaging.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return messaging.Ack{MessageID: "wamid.1"}, nil
}

func (m *stubMessenger) SendText(context.Context, string, string) (messaging.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return messaging.Ack{MessageID: "wamid.2"}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	j := journal.New(db, time.Hour, nil)

	d, err := dispatch.New(dispatch.Config{
		CRM:       stubCRM{},
		Messenger: &stubMessenger{},
		Catalog:   cat,
		Timeout:   2 * time.Second,
		Observers: []dispatch.Observer{j},
	}, nil)
	require.NoError(t, err)

	coord, err := agent.New(agent.Config{
		Store:            session.NewStore(nil),
		Dispatcher:       d,
		Journal:          j,
		GreetingKeywords: []string{"hello"},
	}, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(New(Config{PingInterval: time.Second}, coord, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func startCall(t *testing.T, base string) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, base+"/v1/desk/sessions", StartCallRequest{ParticipantIdentity: callerIdentity})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var turn agent.Turn
	require.NoError(t, json.Unmarshal(body, &turn))
	require.NotEmpty(t, turn.SessionID)
	require.NotNil(t, turn.Reply)
	return turn.SessionID
}

func TestServer_CallLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := startCall(t, srv.URL)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/desk/sessions/"+id+"/utterances", UtteranceRequest{Text: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var turn struct {
		Language string `json:"language"`
		Reply    struct {
			Text string `json:"text"`
		} `json:"reply"`
		Result struct {
			Tool   string `json:"tool"`
			Status string `json:"status"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(body, &turn))
	assert.Equal(t, "en", turn.Language)
	assert.Equal(t, dispatch.ToolGetClientData, turn.Result.Tool)
	assert.Equal(t, "success", turn.Result.Status)
	assert.NotEmpty(t, turn.Reply.Text)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/desk/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, session.NewClient, snap.State)

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/desk/sessions/"+id+"/tools/create_client", map[string]any{
		"first_name": "Sara",
		"last_name":  "Ali",
		"email":      "sara@example.com",
		"address":    "Salmiya",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"status":"success"`)

	resp, body = do(t, http.MethodDelete, srv.URL+"/v1/desk/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.True(t, snap.Closed)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/desk/sessions/"+id+"/journal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var jr JournalResponse
	require.NoError(t, json.Unmarshal(body, &jr))
	require.NotEmpty(t, jr.Entries)
	assert.Equal(t, journal.KindCallStarted, jr.Entries[0].Kind)
	assert.Equal(t, journal.KindCallEnded, jr.Entries[len(jr.Entries)-1].Kind)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/desk/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ToolFailureIsStillOK(t *testing.T) {
	srv := newTestServer(t)
	id := startCall(t, srv.URL)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/desk/sessions/"+id+"/tools/create_client", map[string]any{"first_name": "Sara"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"reason":"InvalidArguments"`)

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/desk/sessions/"+id+"/tools/reboot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"reason":"UnknownTool"`)
}

func TestServer_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/desk/sessions", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "INVALID_REQUEST")

	id := startCall(t, srv.URL)
	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/desk/sessions/"+id+"/tools/send_location", []string{"not", "an", "object"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/desk/sessions/missing/utterances", UtteranceRequest{Text: "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "SESSION_NOT_FOUND")
}

func TestServer_ToolsHealthMetrics(t *testing.T) {
	srv := newTestServer(t)
	startCall(t, srv.URL)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/desk/tools", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, name := range []string{dispatch.ToolGetClientData, dispatch.ToolSendCarImage, dispatch.ToolGetServiceTickets} {
		assert.Contains(t, string(body), name)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/desk/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.OpenCalls)

	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "voicedesk_")
}

func TestServer_Stream(t *testing.T) {
	srv := newTestServer(t)
	id := startCall(t, srv.URL)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/desk/sessions/" + id + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	r, _ := do(t, http.MethodPost, srv.URL+"/v1/desk/sessions/"+id+"/utterances", UtteranceRequest{Text: "where is the showroom"})
	require.Equal(t, http.StatusOK, r.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var e journal.Entry
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, journal.KindUtterance, e.Kind)
	assert.Equal(t, "where is the showroom", e.Text)

	r, _ = do(t, http.MethodDelete, srv.URL+"/v1/desk/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, r.StatusCode)

	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, journal.KindCallEnded, e.Kind)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServer_StreamUnknownSession(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/desk/sessions/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()
	d, err := dispatch.New(dispatch.Config{CRM: stubCRM{}, Messenger: &stubMessenger{}, Catalog: cat}, nil)
	require.NoError(t, err)
	coord, err := agent.New(agent.Config{Store: session.NewStore(nil), Dispatcher: d, Journal: journal.New(db, 0, nil)}, nil)
	require.NoError(t, err)
	coord.StartCall(context.Background(), callerIdentity)

	s := New(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, coord, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, coord.OpenCalls())
}
