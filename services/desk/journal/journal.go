// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal keeps a per-call log of utterances, tool invocations and
// replies in BadgerDB.
//
// # Key Layout
//
//	journal/v1/{sessionID}/{unixNano:020d}-{seq:010d}
//
// Keys sort by time within a session; seq breaks ties between entries
// written in the same nanosecond. Entries expire through Badger's native
// TTL, so there is no application-level cleanup.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/language"
	badgerstore "github.com/AleutianAI/voicedesk/services/desk/storage/badger"
)

// DefaultTTL is how long a call's journal is kept.
const DefaultTTL = 30 * 24 * time.Hour

const keyPrefix = "journal/v1/"

// Kind is the type of a journal entry.
type Kind string

const (
	KindCallStarted Kind = "call_started"
	KindUtterance   Kind = "utterance"
	KindTool        Kind = "tool"
	KindReply       Kind = "reply"
	KindCallEnded   Kind = "call_ended"
)

// Entry is one journaled event.
type Entry struct {
	SessionID string            `json:"session_id"`
	Seq       uint64            `json:"seq"`
	At        time.Time         `json:"at"`
	Kind      Kind              `json:"kind"`
	Language  language.Language `json:"language,omitempty"`
	Text      string            `json:"text,omitempty"`

	// Tool fields, set for KindTool.
	Tool   string          `json:"tool,omitempty"`
	Args   map[string]any  `json:"args,omitempty"`
	Status string          `json:"status,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Journal appends and reads call entries.
//
// # Thread Safety
//
// Safe for concurrent use.
type Journal struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
	seq    atomic.Uint64
}

// New creates a Journal backed by db. The caller owns db.
//
// # Inputs
//
//   - db: Open BadgerDB. Must not be nil.
//   - ttl: Entry lifetime. Zero uses DefaultTTL.
//   - logger: May be nil.
func New(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *Journal {
	if db == nil {
		panic("journal.New: db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, ttl: ttl, logger: logger, now: time.Now}
}

// Append writes one entry. SessionID and Kind are required; Seq and At are
// assigned here when zero.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.SessionID == "" || e.Kind == "" {
		return fmt.Errorf("journal: session id and kind are required")
	}
	e.Seq = j.seq.Add(1)
	if e.At.IsZero() {
		e.At = j.now()
	}
	e.At = e.At.UTC()

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}
	key := entryKey(e.SessionID, e.At, e.Seq)
	err = j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.SetEntry(dgbadger.NewEntry(key, raw).WithTTL(j.ttl))
	})
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// List returns a session's entries in write order. An unknown session
// yields an empty slice.
func (j *Journal) List(ctx context.Context, sessionID string) ([]Entry, error) {
	prefix := []byte(keyPrefix + sessionID + "/")
	var out []Entry
	err := j.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}

// ToolInvoked journals a finished tool invocation. It implements
// dispatch.Observer; write failures are logged, not returned.
func (j *Journal) ToolInvoked(ctx context.Context, args map[string]any, res dispatch.ToolResult) {
	raw, err := json.Marshal(res)
	if err != nil {
		j.logger.Warn("journal: encoding tool result", slog.String("error", err.Error()))
		raw = nil
	}
	err = j.Append(context.WithoutCancel(ctx), Entry{
		SessionID: res.SessionID,
		Kind:      KindTool,
		Tool:      res.Tool,
		Args:      args,
		Status:    string(res.Status),
		Reason:    string(res.Reason),
		Result:    raw,
	})
	if err != nil {
		j.logger.Warn("journal: tool entry dropped",
			slog.String("session_id", res.SessionID),
			slog.String("tool", res.Tool),
			slog.String("error", err.Error()),
		)
	}
}

func entryKey(sessionID string, at time.Time, seq uint64) []byte {
	return fmt.Appendf(nil, "%s%s/%020d-%010d", keyPrefix, sessionID, at.UnixNano(), seq)
}
