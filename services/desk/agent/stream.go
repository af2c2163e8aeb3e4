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
	"log/slog"
	"sync"

	"github.com/AleutianAI/voicedesk/services/desk/journal"
)

// subscriberBuffer is the per-subscriber backlog before events are dropped.
const subscriberBuffer = 64

// hub fans journal entries out to live subscribers of a session.
//
// Thread Safety: Safe for concurrent use.
type hub struct {
	mu     sync.Mutex
	next   int
	subs   map[string]map[int]chan journal.Entry
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{subs: make(map[string]map[int]chan journal.Entry), logger: logger}
}

func (h *hub) subscribe(sessionID string) (<-chan journal.Entry, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan journal.Entry, subscriberBuffer)
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[int]chan journal.Entry)
	}
	h.subs[sessionID][id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[sessionID][id]; ok {
			delete(h.subs[sessionID], id)
			close(c)
		}
	}
}

// publish never blocks; a subscriber that falls behind loses events.
func (h *hub) publish(e journal.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[e.SessionID] {
		select {
		case ch <- e:
		default:
			h.logger.Warn("agent: stream subscriber behind, event dropped",
				slog.String("session_id", e.SessionID),
				slog.String("kind", string(e.Kind)),
			)
		}
	}
}

// closeSession ends every subscription of a session.
func (h *hub) closeSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
}
