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
	"time"

	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/session"
)

// Status is the coarse outcome of a tool invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Reason is the machine-readable failure class of a tool invocation.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInvalidArguments    Reason = "InvalidArguments"
	ReasonIdentityNotResolved Reason = "IdentityNotResolved"
	ReasonNoCatalogMatch      Reason = "NoCatalogMatch"
	ReasonAlreadyInFlight     Reason = "AlreadyInFlight"
	ReasonNetworkError        Reason = "NetworkError"
	ReasonRemoteRejected      Reason = "RemoteRejected"
	ReasonTimeout             Reason = "Timeout"
	ReasonNotIdentified       Reason = "NotIdentified"
	ReasonSessionClosed       Reason = "SessionClosed"
	ReasonUnknownTool         Reason = "UnknownTool"
	ReasonCanceled            Reason = "Canceled"
)

// Transport reports whether the reason is a collaborator failure the
// caller may retry.
func (r Reason) Transport() bool {
	switch r {
	case ReasonNetworkError, ReasonRemoteRejected, ReasonTimeout, ReasonCanceled:
		return true
	}
	return false
}

// ToolResult is the outcome of one tool invocation.
//
// Description:
//
//	On success Payload holds one of the typed payloads below. On error
//	Reason says why and Payload may still carry partial data (e.g. the
//	vehicle list when every image send failed).
//
// Thread Safety: Value type; safe to copy. Payload values are not mutated
// after the result is returned.
type ToolResult struct {
	InvocationID string `json:"invocation_id"`
	SessionID    string `json:"session_id"`
	Tool         string `json:"tool"`
	Status       Status `json:"status"`
	Reason       Reason `json:"reason,omitempty"`

	// StatusCode is the collaborator's HTTP status for RemoteRejected.
	StatusCode int `json:"status_code,omitempty"`

	// Fields lists the offending argument names for InvalidArguments.
	Fields []string `json:"fields,omitempty"`

	// Detail is the underlying error text, for logs and the journal only.
	Detail string `json:"detail,omitempty"`

	Payload Payload `json:"payload,omitempty"`

	// Discarded is set when the session closed while the tool ran; the
	// session was not updated and nothing should be spoken.
	Discarded bool `json:"discarded,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// OK reports whether the invocation succeeded.
func (r ToolResult) OK() bool {
	return r.Status == StatusSuccess
}

// Payload is implemented by the typed result of each tool.
type Payload interface {
	payloadTool() string
}

// ClientLookup is the result of get_client_data.
type ClientLookup struct {
	Phone  string                `json:"phone"`
	Found  bool                  `json:"found"`
	Client *session.ClientRecord `json:"client,omitempty"`
}

// ClientCreated is the result of create_client.
type ClientCreated struct {
	Client session.ClientRecord `json:"client"`
}

// VehicleList is the result of get_vehicle_data.
type VehicleList struct {
	ClientID     string        `json:"client_id"`
	Vehicles     []crm.Vehicle `json:"vehicles"`
	ImagesSent   int           `json:"images_sent,omitempty"`
	ImagesFailed int           `json:"images_failed,omitempty"`
}

// CarImageSent is the result of send_car_image.
type CarImageSent struct {
	Entry     catalog.Entry     `json:"entry"`
	MatchKind catalog.MatchKind `json:"match_kind"`
	Ratio     float64           `json:"ratio"`
	MessageID string            `json:"message_id"`
}

// LocationSent is the result of send_location.
type LocationSent struct {
	Branch    catalog.Branch `json:"branch"`
	MessageID string         `json:"message_id"`
}

// TicketCreated is the result of create_service_ticket.
type TicketCreated struct {
	Ticket crm.Ticket `json:"ticket"`
}

// TicketList is the result of get_service_tickets.
type TicketList struct {
	Tickets []crm.Ticket `json:"tickets"`
}

func (ClientLookup) payloadTool() string  { return ToolGetClientData }
func (ClientCreated) payloadTool() string { return ToolCreateClient }
func (VehicleList) payloadTool() string   { return ToolGetVehicleData }
func (CarImageSent) payloadTool() string  { return ToolSendCarImage }
func (LocationSent) payloadTool() string  { return ToolSendLocation }
func (TicketCreated) payloadTool() string { return ToolCreateServiceTicket }
func (TicketList) payloadTool() string    { return ToolGetServiceTickets }
