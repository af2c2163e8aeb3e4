// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"slices"
	"strings"
	"unicode"

	"github.com/AleutianAI/voicedesk/services/desk/catalog"
)

// greetingMatcher finds greeting keywords in an utterance on word
// boundaries, so "hi" does not fire on "this".
type greetingMatcher struct {
	keywords [][]string
}

func newGreetingMatcher(keywords []string) greetingMatcher {
	var g greetingMatcher
	for _, k := range keywords {
		if words := tokenize(k); len(words) > 0 {
			g.keywords = append(g.keywords, words)
		}
	}
	return g
}

func (g greetingMatcher) match(text string) bool {
	words := tokenize(text)
	for _, kw := range g.keywords {
		for i := 0; i+len(kw) <= len(words); i++ {
			if slices.Equal(words[i:i+len(kw)], kw) {
				return true
			}
		}
	}
	return false
}

// tokenize normalizes text the way catalog keys are normalized and splits
// it on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(catalog.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
