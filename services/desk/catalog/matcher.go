// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMatchThreshold is the minimum similarity ratio for a fuzzy match.
// It is a loose-similarity policy knob, not a calibrated probability.
const DefaultMatchThreshold = 0.6

// ErrNoCatalogMatch is returned when no catalog key is close enough to the input.
var ErrNoCatalogMatch = errors.New("catalog: no matching vehicle")

// MatchKind tells how a match was found.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
)

// Match is a resolved catalog entry.
type Match struct {
	Entry Entry
	// Key is the normalized key that matched (canonical, Arabic name or alias).
	Key   string
	Kind  MatchKind
	Ratio float64
}

type candidate struct {
	key   string
	runes int
	entry int
}

// Matcher resolves free text to catalog entries.
//
// Description:
//
//	Keys are normalized and flattened once at construction in declaration
//	order (entry order, then canonical key, Arabic name, aliases), which
//	is also the final tie-breaker.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Matcher struct {
	catalog    *Catalog
	candidates []candidate
	exact      map[string]int
	threshold  float64
	logger     *slog.Logger
}

// NewMatcher builds a matcher over a catalog snapshot.
//
// Inputs:
//   - c: The catalog. Must not be nil.
//   - threshold: Minimum similarity ratio in (0, 1]. Values outside that
//     range fall back to DefaultMatchThreshold.
//   - logger: Logger for fuzzy-match diagnostics. May be nil.
//
// Outputs:
//   - *Matcher: Ready-to-use matcher.
func NewMatcher(c *Catalog, threshold float64, logger *slog.Logger) *Matcher {
	if c == nil {
		panic("catalog.NewMatcher: catalog must not be nil")
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMatchThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Matcher{
		catalog:   c,
		exact:     make(map[string]int),
		threshold: threshold,
		logger:    logger,
	}
	for i, e := range c.entries {
		for _, k := range e.keys() {
			if _, dup := m.exact[k]; dup {
				continue
			}
			m.exact[k] = i
			m.candidates = append(m.candidates, candidate{key: k, runes: utf8.RuneCountInString(k), entry: i})
		}
	}
	return m
}

// Threshold returns the configured similarity threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match resolves free text to a catalog entry.
//
// Description:
//
//	Exact match on any normalized key first. Otherwise every key is scored
//	with a Levenshtein ratio and the best one wins if it clears the
//	threshold. Ties go to the shorter key, then declaration order.
//
// Inputs:
//   - freeText: Spoken or typed vehicle name in either script.
//
// Outputs:
//   - Match: The resolved entry.
//   - error: ErrNoCatalogMatch if nothing clears the threshold.
//
// Thread Safety: Safe for concurrent use.
func (m *Matcher) Match(freeText string) (Match, error) {
	query := Normalize(freeText)
	if query == "" {
		return Match{}, fmt.Errorf("empty vehicle name: %w", ErrNoCatalogMatch)
	}

	if idx, ok := m.exact[query]; ok {
		return Match{Entry: m.catalog.entries[idx], Key: query, Kind: MatchExact, Ratio: 1}, nil
	}

	best := -1
	bestRatio := 0.0
	for i, c := range m.candidates {
		r := Similarity(query, c.key)
		if r < m.threshold {
			continue
		}
		if best < 0 || r > bestRatio || (r == bestRatio && c.runes < m.candidates[best].runes) {
			best = i
			bestRatio = r
		}
	}

	if best < 0 {
		m.logger.Debug("catalog: no match", slog.String("query", query), slog.Float64("threshold", m.threshold))
		return Match{}, fmt.Errorf("%q: %w", freeText, ErrNoCatalogMatch)
	}

	c := m.candidates[best]
	m.logger.Info("catalog: fuzzy match",
		slog.String("query", query),
		slog.String("matched_key", c.key),
		slog.Float64("ratio", bestRatio),
	)
	return Match{Entry: m.catalog.entries[c.entry], Key: c.key, Kind: MatchFuzzy, Ratio: bestRatio}, nil
}

// Normalize lowercases, trims and collapses whitespace, strips Arabic
// diacritics and tatweel, and folds alef variants. Scripts are never
// transliterated.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		// tatweel, harakat and superscript alef
		case r == '\u0640' || (r >= '\u064B' && r <= '\u0652') || r == '\u0670':
			continue
		// hamza and madda alef forms
		case r == '\u0623' || r == '\u0625' || r == '\u0622' || r == '\u0671':
			r = '\u0627'
		default:
			r = unicode.ToLower(r)
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)), measured in
// runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance(ra, rb))/float64(longest)
}

// levenshteinDistance calculates the edit distance between two rune slices.
func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two rows instead of a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
