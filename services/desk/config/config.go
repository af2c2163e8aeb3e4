// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads voicedesk settings from DESK_* environment variables
// and optional .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/journal"
	"github.com/AleutianAI/voicedesk/services/desk/messaging"
	"github.com/AleutianAI/voicedesk/services/desk/secrets"
)

// Environment variables holding credentials. They are sealed into the
// vault by SealSecrets and removed from the process environment.
const (
	EnvCRMToken      = "DESK_CRM_TOKEN"
	EnvWhatsAppToken = "DESK_WHATSAPP_TOKEN"
	EnvInfluxToken   = "DESK_INFLUX_TOKEN"
)

// DefaultGreetingKeywords trigger caller identification on the first turn.
var DefaultGreetingKeywords = []string{"هلا", "سلام عليكم", "السلام عليكم", "مرحبا", "أهلا", "hello", "hi"}

// Config holds all voicedesk settings.
//
// Description:
//
//	Loaded once at startup by Load. Credentials are not part of Config;
//	see SealSecrets.
//
// Thread Safety: Value type. Safe to share after loading.
type Config struct {
	// HTTPAddr is the listen address of the HTTP surface.
	// Env: DESK_HTTP_ADDR (default: ":8090")
	HTTPAddr string `validate:"required"`

	// ShutdownTimeout bounds graceful shutdown.
	// Env: DESK_SHUTDOWN_TIMEOUT (default: 10s)
	ShutdownTimeout time.Duration `validate:"gt=0"`

	// CRMBaseURL is the CRM API root.
	// Env: DESK_CRM_BASE_URL (required)
	CRMBaseURL string `validate:"required,url"`

	// WhatsAppGraphURL is the Graph API root.
	// Env: DESK_WHATSAPP_GRAPH_URL (default: messaging.DefaultGraphURL)
	WhatsAppGraphURL string `validate:"required,url"`

	// WhatsAppPhoneNumberID is the sending business number id.
	// Env: DESK_WHATSAPP_PHONE_NUMBER_ID (required)
	WhatsAppPhoneNumberID string `validate:"required"`

	// WhatsAppRatePerSecond caps outbound messages.
	// Env: DESK_WHATSAPP_RATE_PER_SECOND (default: 10)
	WhatsAppRatePerSecond float64 `validate:"gt=0"`

	// DefaultVehicleImage is sent for CRM vehicles without media.
	// Env: DESK_DEFAULT_VEHICLE_IMAGE (default: CRM default image)
	DefaultVehicleImage string `validate:"omitempty,url"`

	// ToolTimeout is the per-call collaborator deadline.
	// Env: DESK_TOOL_TIMEOUT (default: 8s)
	ToolTimeout time.Duration `validate:"gt=0"`

	// ImageConcurrency bounds parallel image sends.
	// Env: DESK_IMAGE_CONCURRENCY (default: 4)
	ImageConcurrency int `validate:"gte=1,lte=32"`

	// MatchThreshold is the fuzzy catalog acceptance ratio.
	// Env: DESK_MATCH_THRESHOLD (default: 0.6)
	MatchThreshold float64 `validate:"gt=0,lte=1"`

	// CatalogPath overrides the embedded catalog.
	// Env: DESK_CATALOG_PATH (default: "" = embedded)
	CatalogPath string

	// GreetingKeywords trigger identification while the caller is anonymous.
	// Env: DESK_GREETING_KEYWORDS (comma-separated, default: DefaultGreetingKeywords)
	GreetingKeywords []string `validate:"dive,required"`

	// JournalDir is the BadgerDB directory for call journals.
	// Env: DESK_JOURNAL_DIR (default: $HOME/.voicedesk/journal)
	JournalDir string `validate:"required_without=JournalInMemory"`

	// JournalInMemory keeps journals in memory only.
	// Env: DESK_JOURNAL_IN_MEMORY (default: false)
	JournalInMemory bool

	// JournalTTL is how long call journals are kept.
	// Env: DESK_JOURNAL_TTL (default: 720h)
	JournalTTL time.Duration `validate:"gt=0"`

	// InfluxURL enables the analytics sink when set.
	// Env: DESK_INFLUX_URL, DESK_INFLUX_ORG, DESK_INFLUX_BUCKET
	InfluxURL    string `validate:"omitempty,url"`
	InfluxOrg    string `validate:"required_with=InfluxURL"`
	InfluxBucket string `validate:"required_with=InfluxURL"`

	// OTLPEndpoint enables OTLP trace export when set, e.g. "localhost:4317".
	// Env: DESK_OTLP_ENDPOINT, DESK_OTLP_INSECURE (default: false)
	OTLPEndpoint string
	OTLPInsecure bool

	// TraceStdout and MetricStdout print spans and metrics to stdout.
	// Env: DESK_TRACE_STDOUT, DESK_METRIC_STDOUT (default: false)
	TraceStdout  bool
	MetricStdout bool

	// LogLevel is debug, info, warn or error.
	// Env: DESK_LOG_LEVEL (default: "info")
	LogLevel string `validate:"oneof=debug info warn error"`

	// LogFormat is auto, json or text.
	// Env: DESK_LOG_FORMAT (default: "auto")
	LogFormat string `validate:"oneof=auto json text"`
}

// Load reads configuration from the environment.
//
// Description:
//
//	envFiles are loaded first with godotenv; variables already set in the
//	process environment win. With no envFiles, ./.env is loaded if present.
//	The result is validated.
//
// Inputs:
//   - envFiles: Optional .env paths. A named file that does not exist is an error.
//
// Outputs:
//   - *Config: Validated configuration.
//   - error: Non-nil on unreadable env files or validation failure.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("config: loading env files: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("config: loading .env: %w", err)
		}
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads configuration without validating it.
func FromEnv() *Config {
	return &Config{
		HTTPAddr:              envString("DESK_HTTP_ADDR", ":8090"),
		ShutdownTimeout:       envDuration("DESK_SHUTDOWN_TIMEOUT", 10*time.Second),
		CRMBaseURL:            envString("DESK_CRM_BASE_URL", ""),
		WhatsAppGraphURL:      envString("DESK_WHATSAPP_GRAPH_URL", messaging.DefaultGraphURL),
		WhatsAppPhoneNumberID: envString("DESK_WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppRatePerSecond: envFloat("DESK_WHATSAPP_RATE_PER_SECOND", messaging.DefaultRatePerSecond),
		DefaultVehicleImage:   envString("DESK_DEFAULT_VEHICLE_IMAGE", ""),
		ToolTimeout:           envDuration("DESK_TOOL_TIMEOUT", dispatch.DefaultTimeout),
		ImageConcurrency:      envInt("DESK_IMAGE_CONCURRENCY", dispatch.DefaultImageConcurrency),
		MatchThreshold:        envFloat("DESK_MATCH_THRESHOLD", catalog.DefaultMatchThreshold),
		CatalogPath:           envString("DESK_CATALOG_PATH", ""),
		GreetingKeywords:      envList("DESK_GREETING_KEYWORDS", DefaultGreetingKeywords),
		JournalDir:            envString("DESK_JOURNAL_DIR", defaultJournalDir()),
		JournalInMemory:       envBool("DESK_JOURNAL_IN_MEMORY", false),
		JournalTTL:            envDuration("DESK_JOURNAL_TTL", journal.DefaultTTL),
		InfluxURL:             envString("DESK_INFLUX_URL", ""),
		InfluxOrg:             envString("DESK_INFLUX_ORG", ""),
		InfluxBucket:          envString("DESK_INFLUX_BUCKET", ""),
		OTLPEndpoint:          envString("DESK_OTLP_ENDPOINT", ""),
		OTLPInsecure:          envBool("DESK_OTLP_INSECURE", false),
		TraceStdout:           envBool("DESK_TRACE_STDOUT", false),
		MetricStdout:          envBool("DESK_METRIC_STDOUT", false),
		LogLevel:              strings.ToLower(envString("DESK_LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(envString("DESK_LOG_FORMAT", "auto")),
	}
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid settings: %s", strings.Join(msgs, ", "))
}

// SealSecrets moves credentials from the environment into the vault.
//
// Outputs:
//   - error: Non-nil when the CRM or WhatsApp token is missing, or the
//     Influx token is missing while Influx is enabled.
func (c *Config) SealSecrets(v *secrets.Vault) error {
	var missing []string
	if !v.SealEnv(secrets.KeyCRMToken, EnvCRMToken) && !v.Has(secrets.KeyCRMToken) {
		missing = append(missing, EnvCRMToken)
	}
	if !v.SealEnv(secrets.KeyWhatsAppToken, EnvWhatsAppToken) && !v.Has(secrets.KeyWhatsAppToken) {
		missing = append(missing, EnvWhatsAppToken)
	}
	if !v.SealEnv(secrets.KeyInfluxToken, EnvInfluxToken) && !v.Has(secrets.KeyInfluxToken) && c.InfluxURL != "" {
		missing = append(missing, EnvInfluxToken)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

func defaultJournalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + string(os.PathSeparator) + ".voicedesk" + string(os.PathSeparator) + "journal"
}

// envString reads a string environment variable with a default value.
func envString(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// envBool reads a boolean environment variable with a default value.
func envBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// envInt reads an integer environment variable with a default value.
func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// envFloat reads a float64 environment variable with a default value.
func envFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// envDuration reads a time.Duration environment variable ("8s", "1m30s").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList reads a comma-separated environment variable. Returns a copy of
// defaultVal if the variable is unset or has no non-empty items.
func envList(key string, defaultVal []string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultVal...)
	}
	return out
}
