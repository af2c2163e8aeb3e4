// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/voicedesk/services/desk/identity"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "voicedesk",
		Subsystem: "session",
		Name:      "active",
		Help:      "Number of open call sessions.",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicedesk",
		Subsystem: "session",
		Name:      "created_total",
		Help:      "Call sessions created, by whether the caller phone was resolved.",
	}, []string{"phone_resolved"})
)

// Store indexes open sessions by id.
//
// Thread Safety: Safe for concurrent use. Sessions are independent; the
// store lock only guards the index.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	logger   *slog.Logger
}

// NewStore creates an empty store. logger may be nil.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		logger:   logger,
	}
}

// Create opens a session for a caller.
//
// Description:
//
//	The phone is resolved from participantIdentity when possible. A caller
//	whose number cannot be resolved still gets a session; tools that need
//	the number will ask for it.
//
// Inputs:
//   - participantIdentity: Raw identity from the hosting runtime.
//
// Outputs:
//   - *Session: The new session. Never nil.
func (st *Store) Create(participantIdentity string) *Session {
	s := New(uuid.NewString(), participantIdentity, st.now())
	phone := s.rec.Phone
	resolved := phone != ""

	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()

	sessionsActive.Inc()
	if resolved {
		sessionsTotal.WithLabelValues("true").Inc()
	} else {
		sessionsTotal.WithLabelValues("false").Inc()
	}

	st.logger.Info("session: created",
		slog.String("session_id", s.id),
		slog.Bool("phone_resolved", resolved),
		slog.String("phone", identity.Mask(phone)),
	)
	return s
}

// Get looks up an open session.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close tears a session down and removes it from the index.
//
// Description:
//
//	In-flight tool calls keep running; their results are discarded by
//	Session.Update.
//
// Outputs:
//   - *Session: The closed session, for final snapshots.
//   - error: ErrNotFound for unknown or already removed ids.
func (st *Store) Close(id string) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	st.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	if s.Close(st.now()) {
		sessionsActive.Dec()
		st.logger.Info("session: closed",
			slog.String("session_id", id),
			slog.Duration("duration", st.now().Sub(s.startedAt)),
		)
	}
	return s, nil
}

// CloseAll tears down every open session. Used on shutdown.
func (st *Store) CloseAll() int {
	st.mu.RLock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	st.mu.RUnlock()

	for _, id := range ids {
		_, _ = st.Close(id)
	}
	return len(ids)
}

// List returns snapshots of all open sessions, oldest first.
func (st *Store) List() []Snapshot {
	st.mu.RLock()
	out := make([]Snapshot, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.Snapshot())
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of open sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
