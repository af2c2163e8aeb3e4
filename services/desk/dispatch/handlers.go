// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/language"
	"github.com/AleutianAI/voicedesk/services/desk/session"
)

// =============================================================================
// Client tools
// =============================================================================

func (d *Dispatcher) getClientData(ctx context.Context, s *session.Session, a *GetClientDataArgs) (Payload, error) {
	phone, err := destination(s, a.PhoneNumber)
	if err != nil {
		return nil, err
	}

	var prev session.State
	if err := s.Update(func(r *session.Record) error {
		prev = r.State
		if r.State.CanTransition(session.Identifying) {
			return r.Transition(session.Identifying)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	client, found, err := d.crm.FindClientByPhone(ctx, phone)
	if err != nil {
		_ = s.Update(func(r *session.Record) error {
			if r.State == session.Identifying && prev != session.Identifying {
				return r.Transition(prev)
			}
			return nil
		})
		return nil, err
	}

	payload := ClientLookup{Phone: phone, Found: found}
	if found {
		payload.Client = &client
	}
	err = s.Update(func(r *session.Record) error {
		r.Phone = phone
		if found {
			return r.SetClient(client)
		}
		r.Client = nil
		return moveTo(r, session.NewClient)
	})
	return payload, err
}

func (d *Dispatcher) createClient(ctx context.Context, s *session.Session, a *CreateClientArgs) (Payload, error) {
	phone, err := destination(s, a.PhoneNumber)
	if err != nil {
		return nil, err
	}

	client, err := d.crm.CreateClient(ctx, crm.ClientInput{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Phone:     phone,
		Address:   a.Address,
	})
	if err != nil {
		return nil, err
	}

	err = s.Update(func(r *session.Record) error {
		r.Phone = phone
		return r.SetClient(client)
	})
	return ClientCreated{Client: client}, err
}

// =============================================================================
// Vehicle and messaging tools
// =============================================================================

func (d *Dispatcher) getVehicleData(ctx context.Context, s *session.Session, a *GetVehicleDataArgs) (Payload, error) {
	id, err := clientID(s, a.ClientID)
	if err != nil {
		return nil, err
	}
	var phone string
	if a.SendImages {
		if phone, err = destination(s, a.PhoneNumber); err != nil {
			return nil, err
		}
	}

	vehicles, err := d.crm.ListVehicles(ctx, id)
	if err != nil {
		return nil, err
	}
	payload := VehicleList{ClientID: id, Vehicles: vehicles}
	if !a.SendImages || len(vehicles) == 0 {
		return payload, nil
	}

	lang := replyLanguage(s)
	var (
		sent, failed atomic.Int32
		firstErr     error
		errOnce      sync.Once
	)
	var g errgroup.Group
	g.SetLimit(d.imageConcurrency)
	for _, v := range vehicles {
		g.Go(func() error {
			if _, err := d.messenger.SendImage(ctx, phone, v.ImageURL, vehicleCaption(lang, v)); err != nil {
				failed.Add(1)
				errOnce.Do(func() { firstErr = err })
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	payload.ImagesSent = int(sent.Load())
	payload.ImagesFailed = int(failed.Load())
	if payload.ImagesSent == 0 {
		return payload, firstErr
	}
	if payload.ImagesFailed > 0 {
		d.logger.Warn("some vehicle images failed",
			slog.String("session_id", s.ID()),
			slog.Int("sent", payload.ImagesSent),
			slog.Int("failed", payload.ImagesFailed),
		)
	}
	return payload, nil
}

func (d *Dispatcher) sendCarImage(ctx context.Context, s *session.Session, a *SendCarImageArgs) (Payload, error) {
	phone, err := destination(s, a.PhoneNumber)
	if err != nil {
		return nil, err
	}
	match, err := d.matcher.Match(a.CarName)
	if err != nil {
		return nil, err
	}

	caption := carImageCaption(replyLanguage(s), match.Entry, a.Description)
	ack, err := d.messenger.SendImage(ctx, phone, match.Entry.ImageURL, caption)
	if err != nil {
		return nil, err
	}
	return CarImageSent{
		Entry:     match.Entry,
		MatchKind: match.Kind,
		Ratio:     match.Ratio,
		MessageID: ack.MessageID,
	}, nil
}

func (d *Dispatcher) sendLocation(ctx context.Context, s *session.Session, a *SendLocationArgs) (Payload, error) {
	phone, err := destination(s, a.PhoneNumber)
	if err != nil {
		return nil, err
	}
	branchType := catalog.BranchShowroom
	if a.LocationType != "" {
		branchType = catalog.BranchType(a.LocationType)
	}
	branch, ok := d.catalog.Branch(branchType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBranch, branchType)
	}

	ack, err := d.messenger.SendText(ctx, phone, locationText(replyLanguage(s), branch))
	if err != nil {
		return nil, err
	}
	return LocationSent{Branch: branch, MessageID: ack.MessageID}, nil
}

// =============================================================================
// Ticket tools
// =============================================================================

func (d *Dispatcher) createServiceTicket(ctx context.Context, s *session.Session, a *CreateServiceTicketArgs) (Payload, error) {
	id, err := clientID(s, a.ClientID)
	if err != nil {
		return nil, err
	}

	leave, err := enterServicing(s)
	if err != nil {
		return nil, err
	}
	defer leave()

	ticket, err := d.crm.CreateTicket(ctx, crm.NewTicket{
		ClientID:      id,
		VehicleID:     a.VehicleID,
		Title:         a.Title,
		Description:   a.Description,
		PreferredDate: a.PreferredDate,
	})
	if err != nil {
		return nil, err
	}
	return TicketCreated{Ticket: ticket}, nil
}

func (d *Dispatcher) getServiceTickets(ctx context.Context, s *session.Session, a *GetServiceTicketsArgs) (Payload, error) {
	// A known client always scopes the lookup, vehicle id or not.
	filter := crm.TicketFilter{VehicleID: a.VehicleID}
	id, err := clientID(s, a.ClientID)
	switch {
	case err == nil:
		filter.ClientID = id
	case filter.VehicleID == "":
		return nil, err
	}

	leave, err := enterServicing(s)
	if err != nil {
		return nil, err
	}
	defer leave()

	tickets, err := d.crm.ListTickets(ctx, filter)
	if err != nil {
		return nil, err
	}
	return TicketList{Tickets: tickets}, nil
}

// =============================================================================
// Argument resolution
// =============================================================================

// destination returns the WhatsApp/CRM phone for a tool: the supplied
// number if any, else the session phone, else whatever the participant
// identity resolves to.
func destination(s *session.Session, supplied string) (string, error) {
	if supplied != "" {
		return identity.Resolve(supplied)
	}
	snap := s.Snapshot()
	if snap.Phone != "" {
		return snap.Phone, nil
	}
	return identity.Resolve(snap.ParticipantIdentity)
}

// clientID returns the supplied id, else the identified client's id.
func clientID(s *session.Session, supplied string) (string, error) {
	if supplied != "" {
		return supplied, nil
	}
	if c := s.Snapshot().Client; c != nil && c.ID != "" {
		return c.ID, nil
	}
	return "", ErrNotIdentified
}

// replyLanguage is the session language, Arabic when none is established.
func replyLanguage(s *session.Session) language.Language {
	return language.Resolve("", s.Snapshot().Language)
}

// moveTo transitions r to target, passing through Identifying when a
// direct transition is not allowed.
func moveTo(r *session.Record, target session.State) error {
	if r.State == target {
		return nil
	}
	if !r.State.CanTransition(target) && r.State.CanTransition(session.Identifying) {
		if err := r.Transition(session.Identifying); err != nil {
			return err
		}
	}
	return r.Transition(target)
}

// enterServicing moves the session to ServicingRequest for the duration of
// a ticket call. The returned func restores the previous state; it is a
// no-op when the session was not in a state that can service requests.
func enterServicing(s *session.Session) (func(), error) {
	var (
		prev    session.State
		entered bool
	)
	err := s.Update(func(r *session.Record) error {
		if !r.State.CanTransition(session.ServicingRequest) {
			return nil
		}
		prev = r.State
		entered = true
		return r.Transition(session.ServicingRequest)
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if !entered {
			return
		}
		_ = s.Update(func(r *session.Record) error {
			if r.State != session.ServicingRequest {
				return nil
			}
			return r.Transition(prev)
		})
	}, nil
}
