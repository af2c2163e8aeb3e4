// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package language tags utterances with the single language a reply must use.
package language

import "unicode"

// Language is the reply language of a turn.
type Language string

const (
	// Arabic replies use Arabic script only.
	Arabic Language = "ar"

	// English replies must not contain Arabic-script runes.
	English Language = "en"

	// Unknown means the text had no letters of either script.
	Unknown Language = "unknown"
)

// Default is used when neither the utterance nor the session history
// establishes a language.
const Default = Arabic

// String returns the language code.
func (l Language) String() string {
	return string(l)
}

// Parse converts a language code to a Language. Unrecognized codes map to Unknown.
func Parse(code string) Language {
	switch code {
	case "ar", "ar-KW", "ar_KW":
		return Arabic
	case "en", "en-US", "en_US", "en-GB":
		return English
	default:
		return Unknown
	}
}

// Detect classifies text by script.
//
// Description:
//
//	Any Arabic-script rune makes the text Arabic, regardless of Latin
//	brand names mixed in ("أبي كامري Camry"). Otherwise any Latin letter
//	makes it English. Digits and punctuation alone are Unknown.
//
// Thread Safety: Pure function.
func Detect(text string) Language {
	sawLatin := false
	for _, r := range text {
		if unicode.Is(unicode.Arabic, r) {
			return Arabic
		}
		if !sawLatin && unicode.IsLetter(r) && unicode.Is(unicode.Latin, r) {
			sawLatin = true
		}
	}
	if sawLatin {
		return English
	}
	return Unknown
}

// Resolve returns the reply language for a turn.
//
// Inputs:
//   - text: The utterance.
//   - previous: The session's established language; Unknown or "" if none.
//
// Outputs:
//   - Language: Detect(text) when decisive, otherwise previous, otherwise Default.
func Resolve(text string, previous Language) Language {
	if detected := Detect(text); detected != Unknown {
		return detected
	}
	if previous == Arabic || previous == English {
		return previous
	}
	return Default
}

// ContainsArabic reports whether s has any Arabic-script rune.
func ContainsArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}

// ContainsLatin reports whether s has any Latin letter. Digits and
// punctuation are script-neutral.
func ContainsLatin(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}
