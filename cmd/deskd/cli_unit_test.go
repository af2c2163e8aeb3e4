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
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/journal"
	"github.com/AleutianAI/voicedesk/services/desk/language"
	badgerstore "github.com/AleutianAI/voicedesk/services/desk/storage/badger"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "console", "resolve", "match", "tools", "journal"} {
		assert.Contains(t, names, want)
	}
}

func TestResolveCmd(t *testing.T) {
	t.Run("sip identity", func(t *testing.T) {
		out, err := execute(t, "resolve", "sip_+96566756452@pbx")
		require.NoError(t, err)
		assert.Equal(t, "+96566756452\n", out)
	})

	t.Run("foreign number", func(t *testing.T) {
		_, err := execute(t, "resolve", "+14155550100")
		assert.ErrorIs(t, err, identity.ErrIdentityNotResolved)
	})

	t.Run("missing argument", func(t *testing.T) {
		_, err := execute(t, "resolve")
		assert.Error(t, err)
	})
}

func TestMatchCmd(t *testing.T) {
	out, err := execute(t, "match", "Camry")
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSpace(out), "\t")
	require.Len(t, fields, 5)
	assert.Equal(t, "camry", fields[0])
	assert.Equal(t, "exact", fields[2])
	assert.Equal(t, "1.00", fields[3])
}

func TestMatchCmd_NoMatch(t *testing.T) {
	_, err := execute(t, "match", "zzzzzzzzzzzz")
	assert.Error(t, err)
}

func TestToolsCmd(t *testing.T) {
	t.Run("catalogue", func(t *testing.T) {
		out, err := execute(t, "tools")
		require.NoError(t, err)
		var infos []dispatch.ToolInfo
		require.NoError(t, json.Unmarshal([]byte(out), &infos))
		assert.Len(t, infos, len(dispatch.Tools()))
	})

	t.Run("llm definitions", func(t *testing.T) {
		out, err := execute(t, "tools", "--llm")
		require.NoError(t, err)
		var defs []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &defs))
		require.NotEmpty(t, defs)
		assert.Equal(t, "function", defs[0]["type"])
	})
}

func TestJournalCmd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")

	cfg := badgerstore.DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = -1
	db, err := badgerstore.OpenDB(cfg)
	require.NoError(t, err)
	j := journal.New(db, 0, nil)
	ctx := context.Background()
	require.NoError(t, j.Append(ctx, journal.Entry{SessionID: "s1", Kind: journal.KindUtterance, Language: language.English, Text: "hello"}))
	require.NoError(t, j.Append(ctx, journal.Entry{SessionID: "s1", Kind: journal.KindTool, Tool: dispatch.ToolGetClientData, Status: "success"}))
	require.NoError(t, j.Append(ctx, journal.Entry{SessionID: "s2", Kind: journal.KindUtterance, Text: "other"}))
	require.NoError(t, db.Close())

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "journal", "s1", "--path", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "Session s1: 2 entries")
		assert.Contains(t, out, "[en] hello")
		assert.Contains(t, out, "get_client_data -> success")
		assert.NotContains(t, out, "other")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "journal", "s1", "--path", dir, "--json")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		var e journal.Entry
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
		assert.Equal(t, journal.KindUtterance, e.Kind)
	})

	t.Run("unknown session", func(t *testing.T) {
		out, err := execute(t, "journal", "nope", "--path", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "No journal entries")
	})

	t.Run("missing directory", func(t *testing.T) {
		out, err := execute(t, "journal", "s1", "--path", filepath.Join(t.TempDir(), "absent"))
		require.NoError(t, err)
		assert.Contains(t, out, "does not exist")
	})
}

func TestParseToolLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantTool string
		wantArgs map[string]any
		wantErr  bool
	}{
		{name: "no args", line: "/get_client_data", wantTool: "get_client_data", wantArgs: map[string]any{}},
		{name: "key value", line: "/send_car_image car_name=camry", wantTool: "send_car_image", wantArgs: map[string]any{"car_name": "camry"}},
		{name: "quoted value", line: `/create_service_ticket title="oil change" description=noise`, wantTool: "create_service_ticket", wantArgs: map[string]any{"title": "oil change", "description": "noise"}},
		{name: "booleans", line: "/get_vehicle_data send=true ask=false", wantTool: "get_vehicle_data", wantArgs: map[string]any{"send": true, "ask": false}},
		{name: "json", line: `/create_client {"first_name":"Sara","address":"Salmiya"}`, wantTool: "create_client", wantArgs: map[string]any{"first_name": "Sara", "address": "Salmiya"}},
		{name: "bad json", line: `/create_client {"first_name":`, wantErr: true},
		{name: "not key value", line: "/send_location parts", wantErr: true},
		{name: "empty name", line: "/", wantErr: true},
		{name: "unterminated quote", line: `/send_car_image car_name="land cruiser`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, args, err := parseToolLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTool, tool)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSplitQuoted(t *testing.T) {
	got, err := splitQuoted(`a=1  b="two words" c=""`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a=1", "b=two words", "c="}, got)
}

func TestToolNames_Sorted(t *testing.T) {
	names := toolNames()
	require.Len(t, names, len(dispatch.Tools()))
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestMemoryCRM(t *testing.T) {
	ctx := context.Background()
	m := newMemoryCRM()
	m.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	m.seed("66756452")

	c, ok, err := m.FindClientByPhone(ctx, "+96566756452")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "demo-client", c.ID)

	_, ok, err = m.FindClientByPhone(ctx, "+96599999999")
	require.NoError(t, err)
	assert.False(t, ok)

	vehicles, err := m.ListVehicles(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "Camry", vehicles[0].Model)

	tk, err := m.CreateTicket(ctx, crm.NewTicket{ClientID: c.ID, VehicleID: vehicles[0].ID, Title: "Oil change"})
	require.NoError(t, err)
	assert.Equal(t, "T-0001", tk.ID)
	assert.Equal(t, "2025-03-01", tk.PreferredDate)

	byVehicle, err := m.ListTickets(ctx, crm.TicketFilter{VehicleID: vehicles[0].ID})
	require.NoError(t, err)
	assert.Len(t, byVehicle, 1)
	byOther, err := m.ListTickets(ctx, crm.TicketFilter{ClientID: "someone-else"})
	require.NoError(t, err)
	assert.Empty(t, byOther)

	created, err := m.CreateClient(ctx, crm.ClientInput{FirstName: "Omar", Phone: "+96550000000", Address: "Hawally"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	found, ok, err := m.FindClientByPhone(ctx, "+96550000000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Hawally", found.Address)
}

func TestMemoryCRM_SeedIgnoresUnresolvable(t *testing.T) {
	m := newMemoryCRM()
	m.seed("guest-caller")
	assert.Empty(t, m.clients)
}

func TestOutbox(t *testing.T) {
	ctx := context.Background()
	o := &outbox{}
	ack, err := o.SendText(ctx, "+96566756452", "hi")
	require.NoError(t, err)
	assert.Equal(t, "local.1", ack.MessageID)
	ack, err = o.SendImage(ctx, "+96566756452", "https://example.com/a.png", "Camry")
	require.NoError(t, err)
	assert.Equal(t, "local.2", ack.MessageID)

	sent := o.drain()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "*********452")
	assert.NotContains(t, sent[0], "66756452")
	assert.Contains(t, sent[1], "https://example.com/a.png")
	assert.Empty(t, o.drain())
}
