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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 9, c.Len())

	entries := c.Entries()
	assert.Equal(t, "camry", entries[0].Key)
	assert.Equal(t, "land cruiser", entries[2].Key)
	for _, e := range entries {
		assert.NotEmpty(t, e.ImageURL, e.Key)
		assert.NotEmpty(t, e.NameEn, e.Key)
	}
}

func TestDefault_BranchLookup(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	b, ok := c.Branch(BranchService)
	require.True(t, ok)
	assert.Equal(t, "Al-Rai Service Center", b.NameEn)

	b, ok = c.Branch(BranchShowroom)
	require.True(t, ok)
	assert.Equal(t, "Ahmadi Showroom", b.NameEn)

	_, ok = c.Branch("warehouse")
	assert.False(t, ok)
	assert.Len(t, c.Branches(), 5)
}

func TestLoad_NormalizesKey(t *testing.T) {
	c, err := Load([]byte(`
vehicles:
  - key: "  Land   CRUISER "
    name_ar: لاند كروزر
    name_en: Land Cruiser
    image_url: https://example.com/lc.png
`))
	require.NoError(t, err)
	assert.Equal(t, "land cruiser", c.Entries()[0].Key)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "", "empty"},
		{"no vehicles", "branches: []", "no vehicles"},
		{"missing image", `
vehicles:
  - key: camry
    name_ar: كامري
    name_en: Camry
`, "missing"},
		{"duplicate key", `
vehicles:
  - key: camry
    name_ar: كامري
    name_en: Camry
    image_url: https://example.com/a.png
  - key: prado
    name_ar: برادو
    name_en: Prado
    aliases: [Camry]
    image_url: https://example.com/b.png
`, "used by both"},
		{"bad branch", `
vehicles:
  - key: camry
    name_ar: كامري
    name_en: Camry
    image_url: https://example.com/a.png
branches:
  - type: warehouse
    name_ar: مخزن
    name_en: Warehouse
`, "unknown type"},
		{"bad yaml", "vehicles: [", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_RejectsOversizedData(t *testing.T) {
	_, err := Load([]byte(strings.Repeat("a", MaxCatalogFileSize+1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, defaultCatalogYAML, 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9, c.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEntries_ReturnsCopy(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	entries := c.Entries()
	entries[0].Key = "mutated"
	assert.Equal(t, "camry", c.Entries()[0].Key)
}
