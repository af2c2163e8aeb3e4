// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps a BadgerDB instance with context-aware transaction
// helpers and periodic value-log GC.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// DefaultGCInterval is how often the value log is garbage collected.
const DefaultGCInterval = 10 * time.Minute

// ErrClosed is returned by transaction helpers after Close.
var ErrClosed = errors.New("badger: db closed")

// Config configures OpenDB.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// ReadOnly opens an existing on-disk store without writing to it. GC
	// is disabled and WithTxn fails.
	ReadOnly bool

	// GCInterval is the value-log GC period. Zero uses DefaultGCInterval;
	// negative disables GC.
	GCInterval time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns an on-disk configuration rooted at
// $HOME/.voicedesk/journal. Callers usually override Path.
func DefaultConfig() Config {
	path := filepath.Join(os.TempDir(), "voicedesk", "journal")
	if home, err := os.UserHomeDir(); err == nil {
		path = filepath.Join(home, ".voicedesk", "journal")
	}
	return Config{Path: path, GCInterval: DefaultGCInterval}
}

// InMemoryConfig returns a configuration for tests and ephemeral runs.
func InMemoryConfig() Config {
	return Config{InMemory: true, GCInterval: -1}
}

// DB is an open BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use. Each helper call runs in its own transaction.
type DB struct {
	db     *dgbadger.DB
	logger *slog.Logger

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	mu     sync.RWMutex
	closed bool
}

// OpenDB opens (creating if needed) a BadgerDB.
//
// # Inputs
//
//   - cfg: Storage configuration.
//
// # Outputs
//
//   - *DB: Open database. Close it when done.
//   - error: Non-nil if the directory cannot be created or Badger fails to open.
func OpenDB(cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts dgbadger.Options
	if cfg.InMemory {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger: path is required for on-disk storage")
		}
		if cfg.ReadOnly {
			if _, err := os.Stat(cfg.Path); err != nil {
				return nil, fmt.Errorf("badger: %w", err)
			}
		} else if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("badger: creating %s: %w", cfg.Path, err)
		}
		opts = dgbadger.DefaultOptions(cfg.Path).WithReadOnly(cfg.ReadOnly)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	bdb, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}

	d := &DB{db: bdb, logger: logger, stop: make(chan struct{})}

	interval := cfg.GCInterval
	if interval == 0 {
		interval = DefaultGCInterval
	}
	if interval > 0 && !cfg.InMemory && !cfg.ReadOnly {
		d.wg.Add(1)
		go d.runGC(interval)
	}
	return d, nil
}

// WithTxn runs fn in a read-write transaction and commits it.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.View(fn)
}

// Close stops GC and closes the database. Safe to call more than once.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.wg.Wait()

		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		d.closeErr = d.db.Close()
	})
	return d.closeErr
}

func (d *DB) runGC(interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			for {
				err := d.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, dgbadger.ErrNoRewrite) {
					d.logger.Debug("badger value log GC", slog.String("error", err.Error()))
				}
				break
			}
		}
	}
}
