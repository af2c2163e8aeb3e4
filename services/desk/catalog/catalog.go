// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog holds the static vehicle catalog and branch directory and
// resolves spoken vehicle names against it.
//
// Thread Safety:
//
//	A Catalog is immutable after Load returns and is safe for unlimited
//	concurrent reads. Nothing in this package mutates a loaded Catalog.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// MaxCatalogFileSize bounds catalog files read from disk.
const MaxCatalogFileSize = 1 << 20

// Entry is one vehicle model in the catalog.
//
// Thread Safety: Value type; safe to copy.
type Entry struct {
	// Key is the canonical key: lowercase, Latin script (e.g. "land cruiser").
	Key string `yaml:"key" json:"key"`

	// NameAr is the Arabic display name; it is also an exact-match key.
	NameAr string `yaml:"name_ar" json:"name_ar"`

	// NameEn is the English display name.
	NameEn string `yaml:"name_en" json:"name_en"`

	// Aliases are additional spellings, in either script.
	Aliases []string `yaml:"aliases" json:"aliases,omitempty"`

	// ImageURL is a publicly reachable image of the model.
	ImageURL string `yaml:"image_url" json:"image_url"`

	// Description is the Arabic marketing description.
	Description string `yaml:"description" json:"description"`

	// DescriptionEn is the English marketing description.
	DescriptionEn string `yaml:"description_en" json:"description_en"`
}

// BranchType is the kind of branch a caller asks directions to.
type BranchType string

const (
	BranchShowroom BranchType = "showroom"
	BranchService  BranchType = "service"
	BranchParts    BranchType = "parts"
)

// Branch is one dealership location.
type Branch struct {
	Type      BranchType `yaml:"type" json:"type"`
	NameAr    string     `yaml:"name_ar" json:"name_ar"`
	NameEn    string     `yaml:"name_en" json:"name_en"`
	AddressAr string     `yaml:"address_ar" json:"address_ar"`
	AddressEn string     `yaml:"address_en" json:"address_en"`
	Contact   string     `yaml:"contact" json:"contact"`
	MapsURL   string     `yaml:"maps_url" json:"maps_url"`
	HoursAr   string     `yaml:"hours_ar" json:"hours_ar,omitempty"`
	HoursEn   string     `yaml:"hours_en" json:"hours_en,omitempty"`
}

// Catalog is the read-only vehicle and branch snapshot loaded at startup.
type Catalog struct {
	entries  []Entry
	branches []Branch
}

type catalogFile struct {
	Vehicles []Entry  `yaml:"vehicles"`
	Branches []Branch `yaml:"branches"`
}

// Load parses and validates a catalog from YAML bytes.
//
// Description:
//
//	Every vehicle needs a key, both display names and an image URL.
//	Canonical keys are normalized on load so callers may write them in
//	any case. Duplicate normalized keys are rejected because they would
//	make exact matching ambiguous.
//
// Inputs:
//   - data: Raw YAML.
//
// Outputs:
//   - *Catalog: The loaded catalog.
//   - error: Non-nil on parse or validation failure.
func Load(data []byte) (*Catalog, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("catalog: empty YAML data")
	}
	if len(data) > MaxCatalogFileSize {
		return nil, fmt.Errorf("catalog: YAML data exceeds maximum size (%d > %d)", len(data), MaxCatalogFileSize)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parsing YAML: %w", err)
	}
	if len(file.Vehicles) == 0 {
		return nil, fmt.Errorf("catalog: no vehicles defined")
	}

	seen := make(map[string]string)
	for i := range file.Vehicles {
		e := &file.Vehicles[i]
		if e.Key == "" || e.NameAr == "" || e.NameEn == "" || e.ImageURL == "" {
			return nil, fmt.Errorf("catalog: vehicle %d is missing key, names or image_url", i)
		}
		e.Key = Normalize(e.Key)
		for _, k := range e.keys() {
			if owner, dup := seen[k]; dup && owner != e.Key {
				return nil, fmt.Errorf("catalog: key %q used by both %q and %q", k, owner, e.Key)
			}
			seen[k] = e.Key
		}
	}

	for i, b := range file.Branches {
		switch b.Type {
		case BranchShowroom, BranchService, BranchParts:
		default:
			return nil, fmt.Errorf("catalog: branch %d has unknown type %q", i, b.Type)
		}
		if b.NameAr == "" || b.NameEn == "" {
			return nil, fmt.Errorf("catalog: branch %d is missing names", i)
		}
	}

	return &Catalog{entries: file.Vehicles, branches: file.Branches}, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if info.Size() > MaxCatalogFileSize {
		return nil, fmt.Errorf("catalog: %s exceeds maximum size", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	return Load(data)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load(defaultCatalogYAML)
}

// Entries returns a copy of the vehicle entries in declaration order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of vehicle entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Branch returns the first branch of the given type.
//
// Outputs:
//   - Branch: The branch.
//   - bool: False if the directory has no branch of that type.
func (c *Catalog) Branch(t BranchType) (Branch, bool) {
	for _, b := range c.branches {
		if b.Type == t {
			return b, true
		}
	}
	return Branch{}, false
}

// Branches returns a copy of all branches in declaration order.
func (c *Catalog) Branches() []Branch {
	out := make([]Branch, len(c.branches))
	copy(out, c.branches)
	return out
}

// keys returns every normalized exact-match key for the entry, canonical key first.
func (e Entry) keys() []string {
	keys := make([]string, 0, 2+len(e.Aliases))
	keys = append(keys, Normalize(e.Key), Normalize(e.NameAr))
	for _, a := range e.Aliases {
		if n := Normalize(a); n != "" {
			keys = append(keys, n)
		}
	}
	return keys
}
