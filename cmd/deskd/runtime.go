// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/AleutianAI/voicedesk/services/desk/agent"
	"github.com/AleutianAI/voicedesk/services/desk/analytics"
	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/config"
	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/journal"
	"github.com/AleutianAI/voicedesk/services/desk/messaging"
	"github.com/AleutianAI/voicedesk/services/desk/secrets"
	"github.com/AleutianAI/voicedesk/services/desk/session"
	badgerstore "github.com/AleutianAI/voicedesk/services/desk/storage/badger"
	"github.com/AleutianAI/voicedesk/services/desk/telemetry"
)

// runtime is a fully wired coordinator plus everything that must be
// released on shutdown.
type runtime struct {
	cfg    *config.Config
	coord  *agent.Coordinator
	logger *slog.Logger

	db        *badgerstore.DB
	sink      analytics.Sink
	telemetry telemetry.ShutdownFunc
}

// collaborators are the outbound systems a runtime talks to. Nil fields are
// built from config.
type collaborators struct {
	crm       dispatch.CRM
	messenger dispatch.Messenger
}

// loadLocalConfig reads config for commands that only need local settings,
// so CRM and WhatsApp settings are not enforced.
func loadLocalConfig() *config.Config {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		cfg = config.FromEnv()
	}
	return cfg
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// newRuntime wires the desk.
//
// Description:
//
//	Order: telemetry, secrets, journal store, analytics, collaborators,
//	dispatcher, coordinator. On error everything opened so far is closed.
//
// Inputs:
//   - ctx: Used while dialing exporters.
//   - cfg: Validated configuration.
//   - logOut: Log destination.
//   - collab: Overrides for CRM and messenger. Secrets are only required
//     for collaborators built here.
func newRuntime(ctx context.Context, cfg *config.Config, logOut io.Writer, collab collaborators) (_ *runtime, err error) {
	logger := telemetry.NewLogger(logOut, telemetry.ParseLevel(cfg.LogLevel), telemetry.LogFormat(cfg.LogFormat))
	slog.SetDefault(logger)

	rt := &runtime{cfg: cfg, logger: logger, sink: analytics.Noop{}}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	rt.telemetry, err = telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "voicedesk",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   cfg.OTLPInsecure,
		TraceStdout:    cfg.TraceStdout,
		MetricStdout:   cfg.MetricStdout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	vault := secrets.NewVault()
	if collab.crm == nil || collab.messenger == nil || cfg.InfluxURL != "" {
		if err := cfg.SealSecrets(vault); err != nil {
			return nil, err
		}
	}

	dbCfg := badgerstore.DefaultConfig()
	dbCfg.Path = cfg.JournalDir
	dbCfg.InMemory = cfg.JournalInMemory
	dbCfg.Logger = logger
	rt.db, err = badgerstore.OpenDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("journal store: %w", err)
	}
	j := journal.New(rt.db, cfg.JournalTTL, logger)

	if cfg.InfluxURL != "" {
		token, err := vault.GetSecret(ctx, secrets.KeyInfluxToken)
		if err != nil {
			return nil, fmt.Errorf("influx token: %w", err)
		}
		influx, err := analytics.NewInflux(analytics.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  token,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logger)
		if err != nil {
			return nil, err
		}
		rt.sink = influx
	}

	if collab.crm == nil {
		collab.crm, err = crm.NewClient(crm.Config{
			BaseURL:             cfg.CRMBaseURL,
			Token:               secrets.Token(vault, secrets.KeyCRMToken),
			DefaultVehicleImage: cfg.DefaultVehicleImage,
		}, logger)
		if err != nil {
			return nil, err
		}
	}
	if collab.messenger == nil {
		collab.messenger, err = messaging.NewWhatsApp(messaging.Config{
			GraphURL:      cfg.WhatsAppGraphURL,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			Token:         secrets.Token(vault, secrets.KeyWhatsAppToken),
			RatePerSecond: cfg.WhatsAppRatePerSecond,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	d, err := dispatch.New(dispatch.Config{
		CRM:              collab.crm,
		Messenger:        collab.messenger,
		Catalog:          cat,
		MatchThreshold:   cfg.MatchThreshold,
		Timeout:          cfg.ToolTimeout,
		ImageConcurrency: cfg.ImageConcurrency,
		Observers:        []dispatch.Observer{j, rt.sink},
	}, logger)
	if err != nil {
		return nil, err
	}

	rt.coord, err = agent.New(agent.Config{
		Store:            session.NewStore(logger),
		Dispatcher:       d,
		Journal:          j,
		Analytics:        rt.sink,
		GreetingKeywords: cfg.GreetingKeywords,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("voicedesk ready",
		slog.Int("catalog_entries", cat.Len()),
		slog.Bool("analytics", cfg.InfluxURL != ""),
		slog.Bool("journal_in_memory", cfg.JournalInMemory),
	)
	return rt, nil
}

// Close releases resources in reverse wiring order. Open calls must
// already be ended.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.sink != nil {
		rt.sink.Close()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal store: %w", err))
		}
	}
	if rt.telemetry != nil {
		if err := rt.telemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	secrets.Purge()
	return errors.Join(errs...)
}
