// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds the per-call state of a voice desk conversation.
//
// A Session is written only through Update, which applies a change
// atomically under the session lock and refuses it once the call has been
// torn down. Late results from in-flight tool calls are therefore dropped
// without touching the record.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/language"
)

var (
	// ErrClosed is returned for any write to a session after teardown.
	ErrClosed = errors.New("session: closed")

	// ErrAlreadyInFlight is returned by Begin when the same tool is still
	// running for this session.
	ErrAlreadyInFlight = errors.New("session: tool already in flight")

	// ErrInvalidTransition is returned for a state change the call flow does
	// not allow.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrInvalidPhone is returned when an update would store a phone that is
	// not a +965 E.164 number.
	ErrInvalidPhone = errors.New("session: phone is not a valid +965 number")

	// ErrNotFound is returned by Store lookups for unknown session ids.
	ErrNotFound = errors.New("session: not found")
)

// ClientRecord is a CRM customer as seen by this call. Values are replaced
// wholesale on re-fetch, never patched.
type ClientRecord struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address,omitempty"`
}

// FullName joins first and last name.
func (c ClientRecord) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Record is the mutable part of a session, handed to Update callbacks.
type Record struct {
	// Phone is empty or a valid +965 number.
	Phone string

	// Language is the language of the latest decisive utterance.
	Language language.Language

	// Client is set once the caller is identified or registered.
	Client *ClientRecord

	// LastIntent is the last tool dispatched for this call.
	LastIntent string

	State State
}

// Transition moves the record to a new state if the call flow allows it.
func (r *Record) Transition(to State) error {
	if !r.State.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.State = to
	return nil
}

// SetClient replaces the client and moves the call to Identified.
//
// Description:
//
//	Passes through Identifying when the call is still Anonymous so the
//	state machine is never skipped.
func (r *Record) SetClient(c ClientRecord) error {
	if r.State == Anonymous {
		if err := r.Transition(Identifying); err != nil {
			return err
		}
	}
	if r.State != Identified {
		if err := r.Transition(Identified); err != nil {
			return err
		}
	}
	r.Client = &c
	if identity.Valid(c.Phone) && r.Phone == "" {
		r.Phone = c.Phone
	}
	return nil
}

// Session is one call.
//
// Thread Safety: All methods are safe for concurrent use.
type Session struct {
	id                  string
	participantIdentity string
	startedAt           time.Time

	mu       sync.Mutex
	rec      Record
	closed   bool
	endedAt  time.Time
	inflight map[string]struct{}
	done     chan struct{}
}

// New creates a session for a caller.
//
// Inputs:
//   - id: Opaque unique id. Store.Create passes a UUID.
//   - participantIdentity: Raw identity from the hosting runtime. The
//     phone is resolved from it on a best-effort basis.
//   - now: Start time.
func New(id, participantIdentity string, now time.Time) *Session {
	s := &Session{
		id:                  id,
		participantIdentity: participantIdentity,
		startedAt:           now,
		rec:                 Record{Language: language.Unknown, State: Anonymous},
		inflight:            make(map[string]struct{}),
		done:                make(chan struct{}),
	}
	if phone, err := identity.Resolve(participantIdentity); err == nil {
		s.rec.Phone = phone
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ParticipantIdentity returns the raw caller identity.
func (s *Session) ParticipantIdentity() string { return s.participantIdentity }

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Update applies fn to a copy of the record and commits it atomically.
//
// Description:
//
//	fn runs under the session lock and must not block. If fn fails, or
//	the result breaks the phone invariant, nothing is committed.
//
// Outputs:
//   - error: ErrClosed after teardown (fn is not called), ErrInvalidPhone,
//     or whatever fn returned.
func (s *Session) Update(fn func(r *Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	work := s.rec
	if work.Client != nil {
		c := *work.Client
		work.Client = &c
	}
	if err := fn(&work); err != nil {
		return err
	}
	if work.Phone != "" && !identity.Valid(work.Phone) {
		return fmt.Errorf("%w: %s", ErrInvalidPhone, identity.Mask(work.Phone))
	}
	s.rec = work
	return nil
}

// Begin marks tool as in flight for this session.
//
// Outputs:
//   - func(): Clears the marker. Safe to call more than once.
//   - error: ErrClosed or ErrAlreadyInFlight.
func (s *Session) Begin(tool string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if _, busy := s.inflight[tool]; busy {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInFlight, tool)
	}
	s.inflight[tool] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inflight, tool)
			s.mu.Unlock()
		})
	}, nil
}

// Close tears the session down. Only the first call returns true.
func (s *Session) Close(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.endedAt = now
	s.rec.State = Closed
	close(s.done)
	return true
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID                  string            `json:"id"`
	ParticipantIdentity string            `json:"participant_identity"`
	StartedAt           time.Time         `json:"started_at"`
	EndedAt             time.Time         `json:"ended_at,omitzero"`
	Phone               string            `json:"phone,omitempty"`
	Language            language.Language `json:"language"`
	Client              *ClientRecord     `json:"client,omitempty"`
	LastIntent          string            `json:"last_intent,omitempty"`
	State               State             `json:"state"`
	Closed              bool              `json:"closed"`
	InFlight            []string          `json:"in_flight,omitempty"`
}

// Snapshot returns a copy of the session that is safe to keep.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                  s.id,
		ParticipantIdentity: s.participantIdentity,
		StartedAt:           s.startedAt,
		EndedAt:             s.endedAt,
		Phone:               s.rec.Phone,
		Language:            s.rec.Language,
		LastIntent:          s.rec.LastIntent,
		State:               s.rec.State,
		Closed:              s.closed,
	}
	if s.rec.Client != nil {
		c := *s.rec.Client
		snap.Client = &c
	}
	for tool := range s.inflight {
		snap.InFlight = append(snap.InFlight, tool)
	}
	sort.Strings(snap.InFlight)
	return snap
}
