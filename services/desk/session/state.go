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

// State is where a call is in the identification flow.
type State string

const (
	Anonymous        State = "anonymous"
	Identifying      State = "identifying"
	Identified       State = "identified"
	NewClient        State = "new_client"
	ServicingRequest State = "servicing_request"
	Closed           State = "closed"
)

// transitions lists the states reachable from each state through
// Record.Transition. Closed is entered only by Session.Close.
//
// Identifying may fall back to the state it came from when the lookup
// fails, and re-identification is allowed after a caller was found or
// registered.
var transitions = map[State][]State{
	Anonymous:        {Identifying},
	Identifying:      {Identified, NewClient, Anonymous},
	Identified:       {Identifying, ServicingRequest},
	NewClient:        {Identifying, Identified, ServicingRequest},
	ServicingRequest: {Identified, NewClient},
}

// CanTransition reports whether to is reachable from s in one step.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}
