// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remote is the shared outbound HTTP layer for the CRM and
// messaging collaborators: one error type, one traced caller, one set of
// metrics.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the machine-readable class of an outbound failure.
type Kind string

const (
	// KindNetwork covers connection, DNS and TLS failures.
	KindNetwork Kind = "NetworkError"

	// KindRejected is a non-2xx answer or a body that does not decode.
	KindRejected Kind = "RemoteRejected"

	// KindTimeout is a per-call deadline that fired.
	KindTimeout Kind = "Timeout"

	// KindCanceled is a caller cancellation, e.g. call teardown.
	KindCanceled Kind = "Canceled"
)

// maxErrorBody bounds the response body kept on an Error.
const maxErrorBody = 512

// Error is an outbound call failure.
type Error struct {
	// Op names the collaborator operation, e.g. "crm.create_client".
	Op string

	Kind Kind

	// StatusCode is set for KindRejected answers. Zero when the body failed
	// to decode on a 2xx.
	StatusCode int

	// Body is the start of the response body, for logs.
	Body string

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps a transport error to an Error.
//
// Description:
//
//	Context deadlines and net.Error timeouts become KindTimeout, context
//	cancellation becomes KindCanceled, everything else is KindNetwork.
//	An error that already is an *Error is returned unchanged.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return re
	}

	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Rejected builds a KindRejected error for a non-2xx answer.
func Rejected(op string, statusCode int, body []byte) *Error {
	return &Error{Op: op, Kind: KindRejected, StatusCode: statusCode, Body: truncate(body)}
}

// Malformed builds a KindRejected error for an answer that does not decode
// into the expected envelope.
func Malformed(op string, err error) *Error {
	return &Error{Op: op, Kind: KindRejected, Err: err}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func truncate(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}
