// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Vehicle is a customer vehicle registered in the CRM.
type Vehicle struct {
	ID              string `json:"id"`
	Make            string `json:"make"`
	Model           string `json:"model"`
	Year            string `json:"year,omitempty"`
	Color           string `json:"color,omitempty"`
	LicensePlate    string `json:"license_plate,omitempty"`
	VIN             string `json:"vin,omitempty"`
	ImageURL        string `json:"image_url"`
	ClientID        string `json:"client_id"`
	ClientName      string `json:"client_name,omitempty"`
	PurchaseDate    string `json:"purchase_date,omitempty"`
	LastServiceDate string `json:"last_service_date,omitempty"`
}

// Title is "Make Model Year" with empty parts dropped.
func (v Vehicle) Title() string {
	out := v.Make
	for _, part := range []string{v.Model, v.Year} {
		if part == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += part
	}
	return out
}

// Ticket is a service request.
type Ticket struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Description         string `json:"description,omitempty"`
	Status              string `json:"status"`
	Priority            string `json:"priority,omitempty"`
	Category            string `json:"category,omitempty"`
	VehicleID           string `json:"vehicle_id,omitempty"`
	ClientID            string `json:"client_id,omitempty"`
	PreferredDate       string `json:"preferred_date,omitempty"`
	EstimatedCompletion string `json:"estimated_completion,omitempty"`
}

// ClientInput is the input to CreateClient.
type ClientInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
}

// NewTicket is the input to CreateTicket.
type NewTicket struct {
	ClientID    string
	VehicleID   string
	Title       string
	Description string

	// PreferredDate is YYYY-MM-DD. Empty means now.
	PreferredDate string
}

// TicketFilter narrows ListTickets. When both are set a ticket must match
// both.
type TicketFilter struct {
	VehicleID string
	ClientID  string
}

// =============================================================================
// Wire format
// =============================================================================

type wireClient struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

type wireVehicle struct {
	ID              string     `json:"_id"`
	Make            string     `json:"make"`
	ModelName       string     `json:"modelName"`
	Year            flexString `json:"year"`
	Color           string     `json:"color"`
	LicensePlate    string     `json:"licensePlate"`
	VIN             string     `json:"VIN"`
	Media           *wireMedia `json:"mediaId"`
	Client          ref        `json:"clientId"`
	PurchaseDate    string     `json:"purchaseDate"`
	LastServiceDate string     `json:"lastServiceDate"`
}

type wireMedia struct {
	URL string `json:"url"`
}

type wireTicket struct {
	ID                      string `json:"_id"`
	Title                   string `json:"title"`
	Description             string `json:"description"`
	Status                  string `json:"status"`
	Priority                string `json:"priority"`
	Category                string `json:"category"`
	Vehicle                 ref    `json:"vehicleId"`
	Client                  ref    `json:"clientId"`
	PreferredServiceDate    string `json:"preferredServiceDate"`
	EstimatedCompletionDate string `json:"estimatedCompletionDate"`
}

type listEnvelope struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Clients  []json.RawMessage `json:"clients"`
	Vehicles []json.RawMessage `json:"vehicles"`
	Tickets  []json.RawMessage `json:"tickets"`
}

type createEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Client  json.RawMessage `json:"client"`
	Ticket  json.RawMessage `json:"ticket"`
}

type createClientBody struct {
	FirstName               string `json:"firstName"`
	LastName                string `json:"lastName"`
	Email                   string `json:"email"`
	Phone                   string `json:"phone"`
	Address                 string `json:"address"`
	CommunicationPreference string `json:"communicationPreference"`
}

type createTicketBody struct {
	ClientID                string `json:"clientId"`
	VehicleID               string `json:"vehicleId"`
	Title                   string `json:"title"`
	Description             string `json:"description"`
	Status                  string `json:"status"`
	Priority                string `json:"priority"`
	EstimatedCompletionDate string `json:"estimatedCompletionDate"`
	PreferredServiceDate    string `json:"preferredServiceDate"`
	Category                string `json:"category"`
}

// ref is a populated or bare Mongo reference: either "id" or
// {"_id": "id", ...}.
type ref struct {
	ID        string
	FirstName string
	LastName  string
}

func (r *ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID        string `json:"_id"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	r.ID, r.FirstName, r.LastName = obj.ID, obj.FirstName, obj.LastName
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}
