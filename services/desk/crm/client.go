// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package crm is the dealership CRM collaborator: clients, vehicles and
// service tickets over the CRM's REST API.
//
// Every response envelope is decoded into typed records at this boundary.
// A list item missing its id is skipped with a warning; an envelope that
// does not report success is a RemoteRejected failure.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/remote"
	"github.com/AleutianAI/voicedesk/services/desk/secrets"
	"github.com/AleutianAI/voicedesk/services/desk/session"
)

const (
	authHeader = "x-auth-token"

	ticketStatusPending  = "pending"
	ticketPriorityMedium = "medium"
	ticketCategory       = "service_request"

	// ticketTurnaround is the estimated completion offset for new tickets.
	ticketTurnaround = 48 * time.Hour

	// DefaultVehicleImage is used for vehicles without uploaded media.
	DefaultVehicleImage = "https://crm-api.trypair.ai/uploads/default_vehicle.jpg"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://crm.example.com/api".
	BaseURL string

	Token secrets.TokenSource

	// HTTPClient may be nil.
	HTTPClient *http.Client

	// DefaultVehicleImage overrides DefaultVehicleImage.
	DefaultVehicleImage string

	// Now is the clock for ticket dates. Nil means time.Now.
	Now func() time.Time
}

// Client talks to the CRM.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	base         string
	token        secrets.TokenSource
	caller       *remote.Caller
	defaultImage string
	now          func() time.Time
	logger       *slog.Logger
}

// NewClient creates a CRM client.
//
// Inputs:
//   - cfg: BaseURL and Token are required.
//   - logger: May be nil.
//
// Outputs:
//   - *Client: Ready-to-use client.
//   - error: Non-nil if required configuration is missing.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("crm: base URL is required")
	}
	if cfg.Token == nil {
		return nil, errors.New("crm: token source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultVehicleImage == "" {
		cfg.DefaultVehicleImage = DefaultVehicleImage
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		base:         strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		caller:       remote.NewCaller("crm", cfg.HTTPClient, logger),
		defaultImage: cfg.DefaultVehicleImage,
		now:          cfg.Now,
		logger:       logger,
	}, nil
}

// FindClientByPhone looks a caller up by phone number.
//
// Description:
//
//	The CRM has no phone query, so the full client list is fetched and
//	both sides are normalized through identity.Resolve before comparing.
//	The first match in CRM order wins.
//
// Inputs:
//   - ctx: Carries the per-call deadline.
//   - phone: A +965 number.
//
// Outputs:
//   - session.ClientRecord: The client when found.
//   - bool: False when no client has that number.
//   - error: A *remote.Error on transport or envelope failure.
func (c *Client) FindClientByPhone(ctx context.Context, phone string) (session.ClientRecord, bool, error) {
	want, err := identity.Resolve(phone)
	if err != nil {
		return session.ClientRecord{}, false, fmt.Errorf("crm: %w", err)
	}

	const op = "list_clients"
	items, err := c.list(ctx, op, "/clients", func(e *listEnvelope) []json.RawMessage { return e.Clients })
	if err != nil {
		return session.ClientRecord{}, false, err
	}

	for _, raw := range items {
		var wc wireClient
		if err := json.Unmarshal(raw, &wc); err != nil || wc.ID == "" {
			c.skip(op, err)
			continue
		}
		got, err := identity.Resolve(wc.Phone)
		if err != nil || got != want {
			continue
		}
		return toClientRecord(wc, got), true, nil
	}
	return session.ClientRecord{}, false, nil
}

// CreateClient registers a new client with email as the communication
// preference.
func (c *Client) CreateClient(ctx context.Context, in ClientInput) (session.ClientRecord, error) {
	const op = "create_client"
	body := createClientBody{
		FirstName:               in.FirstName,
		LastName:                in.LastName,
		Email:                   in.Email,
		Phone:                   in.Phone,
		Address:                 in.Address,
		CommunicationPreference: "email",
	}

	env, err := c.create(ctx, op, "/clients", body)
	if err != nil {
		return session.ClientRecord{}, err
	}
	if len(env.Client) == 0 {
		return session.ClientRecord{}, remote.Malformed(c.opName(op), errors.New("envelope has no client"))
	}

	var wc wireClient
	if err := json.Unmarshal(env.Client, &wc); err != nil || wc.ID == "" {
		return session.ClientRecord{}, remote.Malformed(c.opName(op), recordErr("client", err))
	}
	phone := in.Phone
	if resolved, err := identity.Resolve(wc.Phone); err == nil {
		phone = resolved
	}
	return toClientRecord(wc, phone), nil
}

// ListVehicles returns the vehicles owned by a client.
func (c *Client) ListVehicles(ctx context.Context, clientID string) ([]Vehicle, error) {
	const op = "list_vehicles"
	items, err := c.list(ctx, op, "/vehicles", func(e *listEnvelope) []json.RawMessage { return e.Vehicles })
	if err != nil {
		return nil, err
	}

	var out []Vehicle
	for _, raw := range items {
		var wv wireVehicle
		if err := json.Unmarshal(raw, &wv); err != nil || wv.ID == "" {
			c.skip(op, err)
			continue
		}
		if wv.Client.ID != clientID {
			continue
		}
		out = append(out, c.toVehicle(wv))
	}
	return out, nil
}

// ListTickets returns service tickets for a vehicle, a client, or a
// vehicle owned by a client.
func (c *Client) ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
	if filter.VehicleID == "" && filter.ClientID == "" {
		return nil, errors.New("crm: ticket filter needs a vehicle or client id")
	}

	const op = "list_tickets"
	items, err := c.list(ctx, op, "/tickets", func(e *listEnvelope) []json.RawMessage { return e.Tickets })
	if err != nil {
		return nil, err
	}

	var out []Ticket
	for _, raw := range items {
		var wt wireTicket
		if err := json.Unmarshal(raw, &wt); err != nil || wt.ID == "" {
			c.skip(op, err)
			continue
		}
		if filter.VehicleID != "" && wt.Vehicle.ID != filter.VehicleID {
			continue
		}
		if filter.ClientID != "" && wt.Client.ID != filter.ClientID {
			continue
		}
		out = append(out, toTicket(wt))
	}
	return out, nil
}

// CreateTicket opens a pending, medium-priority service request with an
// estimated completion two days out.
func (c *Client) CreateTicket(ctx context.Context, in NewTicket) (Ticket, error) {
	const op = "create_ticket"
	now := c.now()
	preferred := in.PreferredDate
	if preferred == "" {
		preferred = now.Format(time.RFC3339)
	}
	body := createTicketBody{
		ClientID:                in.ClientID,
		VehicleID:               in.VehicleID,
		Title:                   in.Title,
		Description:             in.Description,
		Status:                  ticketStatusPending,
		Priority:                ticketPriorityMedium,
		EstimatedCompletionDate: now.Add(ticketTurnaround).Format(time.RFC3339),
		PreferredServiceDate:    preferred,
		Category:                ticketCategory,
	}

	env, err := c.create(ctx, op, "/tickets", body)
	if err != nil {
		return Ticket{}, err
	}
	var wt wireTicket
	if len(env.Ticket) == 0 {
		return Ticket{}, remote.Malformed(c.opName(op), errors.New("envelope has no ticket"))
	}
	if err := json.Unmarshal(env.Ticket, &wt); err != nil || wt.ID == "" {
		return Ticket{}, remote.Malformed(c.opName(op), recordErr("ticket", err))
	}

	t := toTicket(wt)
	if t.Status == "" {
		t.Status = body.Status
	}
	if t.Title == "" {
		t.Title = body.Title
	}
	if t.VehicleID == "" {
		t.VehicleID = body.VehicleID
	}
	if t.ClientID == "" {
		t.ClientID = body.ClientID
	}
	if t.PreferredDate == "" {
		t.PreferredDate = body.PreferredServiceDate
	}
	if t.EstimatedCompletion == "" {
		t.EstimatedCompletion = body.EstimatedCompletionDate
	}
	return t, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (c *Client) list(ctx context.Context, op, path string, pick func(*listEnvelope) []json.RawMessage) ([]json.RawMessage, error) {
	header, err := c.header(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := c.caller.Do(ctx, remote.Request{Op: op, Method: http.MethodGet, URL: c.base + path, Header: header})
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := resp.Decode(c.opName(op), &env); err != nil {
		return nil, err
	}
	items := pick(&env)
	if !env.Success || items == nil {
		return nil, remote.Malformed(c.opName(op), fmt.Errorf("unsuccessful envelope: %s", env.Message))
	}
	return items, nil
}

func (c *Client) create(ctx context.Context, op, path string, body any) (*createEnvelope, error) {
	header, err := c.header(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := c.caller.Do(ctx, remote.Request{Op: op, Method: http.MethodPost, URL: c.base + path, Body: body, Header: header})
	if err != nil {
		return nil, err
	}

	var env createEnvelope
	if err := resp.Decode(c.opName(op), &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &remote.Error{Op: c.opName(op), Kind: remote.KindRejected, StatusCode: resp.StatusCode, Body: env.Message}
	}
	return &env, nil
}

func (c *Client) header(ctx context.Context, op string) (http.Header, error) {
	token, err := c.token.Token(ctx)
	if err != nil {
		return nil, remote.Classify(c.opName(op), fmt.Errorf("auth token: %w", err))
	}
	h := http.Header{}
	h.Set(authHeader, token)
	return h, nil
}

func (c *Client) opName(op string) string {
	return c.caller.Target() + "." + op
}

func (c *Client) skip(op string, err error) {
	reason := "missing id"
	if err != nil {
		reason = err.Error()
	}
	c.logger.Warn("crm: skipping malformed record", slog.String("op", op), slog.String("reason", reason))
}

func recordErr(kind string, err error) error {
	if err == nil {
		return fmt.Errorf("%s record has no _id", kind)
	}
	return fmt.Errorf("%s record: %w", kind, err)
}

func toClientRecord(wc wireClient, phone string) session.ClientRecord {
	return session.ClientRecord{
		ID:        wc.ID,
		FirstName: wc.FirstName,
		LastName:  wc.LastName,
		Email:     wc.Email,
		Phone:     phone,
		Address:   wc.Address,
	}
}

func (c *Client) toVehicle(wv wireVehicle) Vehicle {
	v := Vehicle{
		ID:              wv.ID,
		Make:            wv.Make,
		Model:           wv.ModelName,
		Year:            string(wv.Year),
		Color:           wv.Color,
		LicensePlate:    wv.LicensePlate,
		VIN:             wv.VIN,
		ImageURL:        c.defaultImage,
		ClientID:        wv.Client.ID,
		ClientName:      strings.TrimSpace(wv.Client.FirstName + " " + wv.Client.LastName),
		PurchaseDate:    wv.PurchaseDate,
		LastServiceDate: wv.LastServiceDate,
	}
	if v.Make == "" {
		v.Make = "Toyota"
	}
	if wv.Media != nil && wv.Media.URL != "" {
		v.ImageURL = wv.Media.URL
	}
	return v
}

func toTicket(wt wireTicket) Ticket {
	return Ticket{
		ID:                  wt.ID,
		Title:               wt.Title,
		Description:         wt.Description,
		Status:              wt.Status,
		Priority:            wt.Priority,
		Category:            wt.Category,
		VehicleID:           wt.Vehicle.ID,
		ClientID:            wt.Client.ID,
		PreferredDate:       wt.PreferredServiceDate,
		EstimatedCompletion: wt.EstimatedCompletionDate,
	}
}
