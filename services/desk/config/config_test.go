// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/voicedesk/services/desk/secrets"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DESK_CRM_BASE_URL", "https://crm.example.com/api")
	t.Setenv("DESK_WHATSAPP_PHONE_NUMBER_ID", "1234567890")
	t.Setenv("DESK_JOURNAL_DIR", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.Equal(t, 8*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 4, cfg.ImageConcurrency)
	assert.InDelta(t, 0.6, cfg.MatchThreshold, 1e-9)
	assert.Equal(t, DefaultGreetingKeywords, cfg.GreetingKeywords)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, 720*time.Hour, cfg.JournalTTL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DESK_TOOL_TIMEOUT", "3s")
	t.Setenv("DESK_IMAGE_CONCURRENCY", "2")
	t.Setenv("DESK_MATCH_THRESHOLD", "0.75")
	t.Setenv("DESK_GREETING_KEYWORDS", " hala , , marhaba ")
	t.Setenv("DESK_LOG_LEVEL", "DEBUG")
	t.Setenv("DESK_JOURNAL_IN_MEMORY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 2, cfg.ImageConcurrency)
	assert.InDelta(t, 0.75, cfg.MatchThreshold, 1e-9)
	assert.Equal(t, []string{"hala", "marhaba"}, cfg.GreetingKeywords)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.JournalInMemory)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("DESK_TOOL_TIMEOUT", "soon")
	t.Setenv("DESK_IMAGE_CONCURRENCY", "many")
	t.Setenv("DESK_OTLP_INSECURE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 4, cfg.ImageConcurrency)
	assert.False(t, cfg.OTLPInsecure)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing crm url", map[string]string{"DESK_CRM_BASE_URL": ""}, "CRMBaseURL"},
		{"bad crm url", map[string]string{"DESK_CRM_BASE_URL": "not a url"}, "CRMBaseURL"},
		{"threshold above one", map[string]string{"DESK_MATCH_THRESHOLD": "1.5"}, "MatchThreshold"},
		{"bad log level", map[string]string{"DESK_LOG_LEVEL": "loud"}, "LogLevel"},
		{"influx without org", map[string]string{"DESK_INFLUX_URL": "http://localhost:8086", "DESK_INFLUX_BUCKET": "calls"}, "InfluxOrg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	t.Setenv("DESK_HTTP_ADDR", ":9999")
	path := filepath.Join(t.TempDir(), "desk.env")
	require.NoError(t, os.WriteFile(path, []byte("DESK_HTTP_ADDR=:7000\nDESK_CATALOG_PATH=/etc/voicedesk/catalog.yaml\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DESK_CATALOG_PATH") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr, "process environment wins over the file")
	assert.Equal(t, "/etc/voicedesk/catalog.yaml", cfg.CatalogPath)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestSealSecrets(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	require.NoError(t, err)

	t.Run("missing tokens", func(t *testing.T) {
		t.Setenv(EnvCRMToken, "")
		t.Setenv(EnvWhatsAppToken, "")
		err := cfg.SealSecrets(secrets.NewVault())
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvCRMToken)
		assert.Contains(t, err.Error(), EnvWhatsAppToken)
	})

	t.Run("sealed and unset", func(t *testing.T) {
		t.Setenv(EnvCRMToken, "crm-secret")
		t.Setenv(EnvWhatsAppToken, "wa-secret")
		v := secrets.NewVault()
		require.NoError(t, cfg.SealSecrets(v))

		got, err := v.GetSecret(context.Background(), secrets.KeyCRMToken)
		require.NoError(t, err)
		assert.Equal(t, "crm-secret", got)
		assert.Empty(t, os.Getenv(EnvWhatsAppToken))
	})

	t.Run("influx token required when enabled", func(t *testing.T) {
		t.Setenv(EnvCRMToken, "crm-secret")
		t.Setenv(EnvWhatsAppToken, "wa-secret")
		t.Setenv(EnvInfluxToken, "")
		withInflux := *cfg
		withInflux.InfluxURL = "http://localhost:8086"
		err := withInflux.SealSecrets(secrets.NewVault())
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvInfluxToken)
	})
}
