// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity extracts a normalized Kuwaiti phone number from the raw
// caller identity supplied by the hosting voice runtime.
//
// Thread Safety:
//
//	All functions are pure and safe for concurrent use.
package identity

import (
	"errors"
	"regexp"
	"strings"
)

// CountryCode is the Kuwaiti E.164 country prefix.
const CountryCode = "+965"

// subscriberDigits is the length of a Kuwaiti subscriber number.
const subscriberDigits = 8

var (
	exactPattern      = regexp.MustCompile(`^\+965\d{8}$`)
	embeddedPattern   = regexp.MustCompile(`\+965\d{8}`)
	subscriberPattern = regexp.MustCompile(`^\d{8}$`)
)

// ErrIdentityNotResolved is returned when no Kuwaiti number can be
// extracted from the caller identity.
var ErrIdentityNotResolved = errors.New("identity: phone number not resolved")

// Resolve extracts a +965 E.164 number from a raw caller identity.
//
// Description:
//
//	Tries each rule in order and returns the first hit:
//	  1. The identity already is +965 followed by exactly 8 digits.
//	  2. A +965XXXXXXXX substring appears anywhere in the identity.
//	  3. The identity is exactly 8 digits (country code is prepended).
//	  4. After stripping non-digits, 11 digits starting with 965 get a "+",
//	     8 digits get "+965". Arabic-Indic digits are folded at this step.
//
// Inputs:
//   - rawIdentity: Participant identity from the hosting runtime, e.g.
//     "sip_+96566756452", "66756452", "965-6675-6452".
//
// Outputs:
//   - string: The normalized number, always matching ^\+965\d{8}$.
//   - error: ErrIdentityNotResolved if no rule matched or input is empty.
func Resolve(rawIdentity string) (string, error) {
	if strings.TrimSpace(rawIdentity) == "" {
		return "", ErrIdentityNotResolved
	}

	if exactPattern.MatchString(rawIdentity) {
		return rawIdentity, nil
	}

	if match := embeddedPattern.FindString(rawIdentity); match != "" {
		return match, nil
	}

	if subscriberPattern.MatchString(rawIdentity) {
		return CountryCode + rawIdentity, nil
	}

	digits := digitsOnly(rawIdentity)
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "965"):
		return "+" + digits, nil
	case len(digits) == subscriberDigits:
		return CountryCode + digits, nil
	}

	return "", ErrIdentityNotResolved
}

// Valid reports whether phone is a well-formed +965 E.164 number.
func Valid(phone string) bool {
	return exactPattern.MatchString(phone)
}

// Mask hides all but the last three digits of a phone for log output.
func Mask(phone string) string {
	if len(phone) <= 3 {
		return phone
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}

// digitsOnly drops every rune that is not a decimal digit. ASCII, Arabic-Indic
// (U+0660..U+0669) and Extended Arabic-Indic (U+06F0..U+06F9) digits are kept
// and emitted as ASCII.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		}
	}
	return b.String()
}
