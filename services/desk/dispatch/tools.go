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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/go-playground/validator/v10"
)

// Tool names exposed to the dialogue runtime.
const (
	ToolGetClientData       = "get_client_data"
	ToolCreateClient        = "create_client"
	ToolGetVehicleData      = "get_vehicle_data"
	ToolSendCarImage        = "send_car_image"
	ToolSendLocation        = "send_location"
	ToolCreateServiceTicket = "create_service_ticket"
	ToolGetServiceTickets   = "get_service_tickets"
)

// =============================================================================
// Argument types
// =============================================================================

// GetClientDataArgs looks up the caller in the CRM. PhoneNumber defaults
// to the session phone.
type GetClientDataArgs struct {
	PhoneNumber string `json:"phone_number"`
}

// CreateClientArgs registers a new customer.
type CreateClientArgs struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Address     string `json:"address" validate:"required"`
	PhoneNumber string `json:"phone_number"`
}

// GetVehicleDataArgs lists the customer's vehicles, optionally sending a
// WhatsApp image of each.
type GetVehicleDataArgs struct {
	ClientID    string `json:"client_id"`
	SendImages  bool   `json:"send_images"`
	PhoneNumber string `json:"phone_number"`
}

// SendCarImageArgs sends a catalog model image. CarName is free text in
// either script.
type SendCarImageArgs struct {
	CarName     string `json:"car_name" validate:"required"`
	Description string `json:"description"`
	PhoneNumber string `json:"phone_number"`
}

// SendLocationArgs sends branch details. LocationType defaults to showroom.
type SendLocationArgs struct {
	LocationType string `json:"location_type" validate:"omitempty,oneof=showroom service parts"`
	PhoneNumber  string `json:"phone_number"`
}

// CreateServiceTicketArgs opens a service request.
type CreateServiceTicketArgs struct {
	ClientID      string `json:"client_id"`
	VehicleID     string `json:"vehicle_id" validate:"required"`
	Title         string `json:"title" validate:"required"`
	Description   string `json:"description" validate:"required"`
	PreferredDate string `json:"preferred_date" validate:"omitempty,fulldate"`
}

// GetServiceTicketsArgs lists tickets for a vehicle or, failing that, a client.
type GetServiceTicketsArgs struct {
	ClientID  string `json:"client_id"`
	VehicleID string `json:"vehicle_id"`
}

// =============================================================================
// Decoding and validation
// =============================================================================

// ArgumentError is an InvalidArguments failure.
type ArgumentError struct {
	Tool string

	// Fields are the offending argument names, sorted.
	Fields []string

	Err error
}

func (e *ArgumentError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: invalid arguments: %s", e.Tool, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: invalid arguments: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// newValidator returns a validator that reports json tag names and knows
// the fulldate (YYYY-MM-DD) format.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("fulldate", func(fl validator.FieldLevel) bool {
		return strfmt.IsDate(fl.Field().String())
	})
	return v
}

// decodeArgs converts loosely typed model arguments into A and validates it.
//
// Description:
//
//	Arguments round-trip through JSON so numbers, booleans and strings are
//	checked against the struct field types. Unknown keys are ignored since
//	models often add context fields. String fields are trimmed before
//	validation so "  " does not satisfy required.
func decodeArgs[A any](v *validator.Validate, tool string, args map[string]any) (*A, error) {
	out := new(A)
	if len(args) > 0 {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, &ArgumentError{Tool: tool, Err: err}
		}
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(out); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field != "" {
				return nil, &ArgumentError{Tool: tool, Fields: []string{typeErr.Field}, Err: err}
			}
			return nil, &ArgumentError{Tool: tool, Err: err}
		}
	}
	trimStrings(out)

	if err := v.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			sort.Strings(fields)
			return nil, &ArgumentError{Tool: tool, Fields: fields, Err: err}
		}
		return nil, &ArgumentError{Tool: tool, Err: err}
	}
	return out, nil
}

func trimStrings(ptr any) {
	rv := reflect.ValueOf(ptr).Elem()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}

// =============================================================================
// Tool descriptions
// =============================================================================

// Param describes one tool argument in JSON Schema terms.
type Param struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Format      string   `json:"format,omitempty"`
}

// ToolInfo describes a tool to the dialogue runtime.
type ToolInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Params      map[string]Param `json:"parameters"`
	Required    []string         `json:"required,omitempty"`
}

// Schema returns the JSON Schema object for the tool's arguments.
func (t ToolInfo) Schema() map[string]any {
	props := make(map[string]any, len(t.Params))
	for name, p := range t.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Format != "" {
			prop["format"] = p.Format
		}
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(t.Required) > 0 {
		schema["required"] = t.Required
	}
	return schema
}

var phoneParam = Param{
	Type:        "string",
	Description: "Customer phone number. Defaults to the caller's number.",
}

var toolInfos = []ToolInfo{
	{
		Name:        ToolGetClientData,
		Description: "Look up the caller in the CRM by phone number.",
		Params:      map[string]Param{"phone_number": phoneParam},
	},
	{
		Name:        ToolCreateClient,
		Description: "Register a new customer. Ask for all four fields before calling.",
		Params: map[string]Param{
			"first_name":   {Type: "string", Description: "First name."},
			"last_name":    {Type: "string", Description: "Last name."},
			"email":        {Type: "string", Description: "Email address.", Format: "email"},
			"address":      {Type: "string", Description: "Home address."},
			"phone_number": phoneParam,
		},
		Required: []string{"first_name", "last_name", "email", "address"},
	},
	{
		Name:        ToolGetVehicleData,
		Description: "List the customer's registered vehicles, optionally sending a WhatsApp image of each.",
		Params: map[string]Param{
			"client_id":    {Type: "string", Description: "CRM client id. Defaults to the identified caller."},
			"send_images":  {Type: "boolean", Description: "Send one WhatsApp image per vehicle."},
			"phone_number": phoneParam,
		},
	},
	{
		Name:        ToolSendCarImage,
		Description: "Send a WhatsApp image of a Toyota model the caller asked about.",
		Params: map[string]Param{
			"car_name":     {Type: "string", Description: "Model name as the caller said it, Arabic or English."},
			"description":  {Type: "string", Description: "Optional caption text in the caller's language."},
			"phone_number": phoneParam,
		},
		Required: []string{"car_name"},
	},
	{
		Name:        ToolSendLocation,
		Description: "Send the address, contact and map link of a branch over WhatsApp.",
		Params: map[string]Param{
			"location_type": {Type: "string", Description: "Branch type.", Enum: []string{"showroom", "service", "parts"}},
			"phone_number":  phoneParam,
		},
	},
	{
		Name:        ToolCreateServiceTicket,
		Description: "Open a service request for one of the customer's vehicles.",
		Params: map[string]Param{
			"client_id":      {Type: "string", Description: "CRM client id. Defaults to the identified caller."},
			"vehicle_id":     {Type: "string", Description: "CRM vehicle id from get_vehicle_data."},
			"title":          {Type: "string", Description: "Short summary of the request."},
			"description":    {Type: "string", Description: "What the customer needs done."},
			"preferred_date": {Type: "string", Description: "Preferred date, YYYY-MM-DD.", Format: "date"},
		},
		Required: []string{"vehicle_id", "title", "description"},
	},
	{
		Name:        ToolGetServiceTickets,
		Description: "List service tickets for a vehicle or for the customer.",
		Params: map[string]Param{
			"client_id":  {Type: "string", Description: "CRM client id. Defaults to the identified caller."},
			"vehicle_id": {Type: "string", Description: "Only tickets for this vehicle."},
		},
	},
}

// Tools returns descriptions of every tool, in a stable order.
func Tools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}
