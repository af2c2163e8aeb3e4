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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/messaging"
	"github.com/AleutianAI/voicedesk/services/desk/session"
)

// memoryCRM is an in-process CRM for console rehearsals.
type memoryCRM struct {
	mu       sync.Mutex
	clients  map[string]session.ClientRecord // by phone
	vehicles map[string][]crm.Vehicle        // by client id
	tickets  []crm.Ticket
	now      func() time.Time
}

func newMemoryCRM() *memoryCRM {
	return &memoryCRM{
		clients:  make(map[string]session.ClientRecord),
		vehicles: make(map[string][]crm.Vehicle),
		now:      time.Now,
	}
}

// seed registers a known caller with one vehicle.
func (m *memoryCRM) seed(phone string) {
	phone, err := identity.Resolve(phone)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := session.ClientRecord{ID: "demo-client", FirstName: "Sara", LastName: "Al-Ahmad", Email: "sara@example.com", Phone: phone}
	m.clients[phone] = c
	m.vehicles[c.ID] = []crm.Vehicle{{
		ID:           "demo-vehicle",
		ClientID:     c.ID,
		Make:         "Toyota",
		Model:        "Camry",
		Year:         "2023",
		LicensePlate: "12345",
		ImageURL:     crm.DefaultVehicleImage,
	}}
}

func (m *memoryCRM) FindClientByPhone(_ context.Context, phone string) (session.ClientRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[phone]
	return c, ok, nil
}

func (m *memoryCRM) CreateClient(_ context.Context, in crm.ClientInput) (session.ClientRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := session.ClientRecord{
		ID:        uuid.NewString(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Address:   in.Address,
	}
	m.clients[in.Phone] = c
	return c, nil
}

func (m *memoryCRM) ListVehicles(_ context.Context, clientID string) ([]crm.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]crm.Vehicle(nil), m.vehicles[clientID]...), nil
}

func (m *memoryCRM) ListTickets(_ context.Context, f crm.TicketFilter) ([]crm.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []crm.Ticket
	for _, t := range m.tickets {
		if f.VehicleID != "" && t.VehicleID != f.VehicleID {
			continue
		}
		if f.ClientID != "" && t.ClientID != f.ClientID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memoryCRM) CreateTicket(_ context.Context, in crm.NewTicket) (crm.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	preferred := in.PreferredDate
	if preferred == "" {
		preferred = m.now().Format(time.DateOnly)
	}
	t := crm.Ticket{
		ID:            fmt.Sprintf("T-%04d", len(m.tickets)+1),
		Title:         in.Title,
		Description:   in.Description,
		Status:        "pending",
		Priority:      "medium",
		VehicleID:     in.VehicleID,
		ClientID:      in.ClientID,
		PreferredDate: preferred,
	}
	m.tickets = append(m.tickets, t)
	return t, nil
}

// outbox collects messages instead of sending them.
type outbox struct {
	mu   sync.Mutex
	sent []string
}

func (o *outbox) SendImage(_ context.Context, to, imageURL, caption string) (messaging.Ack, error) {
	return o.add(fmt.Sprintf("[image to %s] %s\n%s", identity.Mask(to), imageURL, caption)), nil
}

func (o *outbox) SendText(_ context.Context, to, body string) (messaging.Ack, error) {
	return o.add(fmt.Sprintf("[text to %s]\n%s", identity.Mask(to), body)), nil
}

func (o *outbox) add(msg string) messaging.Ack {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return messaging.Ack{MessageID: fmt.Sprintf("local.%d", len(o.sent))}
}

// drain returns and clears pending messages.
func (o *outbox) drain() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.sent
	o.sent = nil
	return out
}
