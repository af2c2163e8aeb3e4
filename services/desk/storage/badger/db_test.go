// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"testing"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDB_InMemoryRoundTrip(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))

	var got []byte
	require.NoError(t, db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	}))
	assert.Equal(t, []byte("v"), got)
}

func TestOpenDB_OnDisk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	db, err := OpenDB(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenDB_RequiresPath(t *testing.T) {
	_, err := OpenDB(Config{})
	assert.Error(t, err)
}

func TestDB_ClosedAndCanceled(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = db.WithReadTxn(ctx, func(*dgbadger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	err = db.WithTxn(context.Background(), func(*dgbadger.Txn) error { return nil })
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestOpenDB_ReadOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	db, err := OpenDB(cfg)
	require.NoError(t, err)
	require.NoError(t, db.WithTxn(context.Background(), func(txn *dgbadger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, db.Close())

	cfg.ReadOnly = true
	ro, err := OpenDB(cfg)
	require.NoError(t, err)
	defer ro.Close()

	require.NoError(t, ro.WithReadTxn(context.Background(), func(txn *dgbadger.Txn) error {
		_, err := txn.Get([]byte("k"))
		return err
	}))
	assert.Error(t, ro.WithTxn(context.Background(), func(txn *dgbadger.Txn) error {
		return txn.Set([]byte("k2"), []byte("v"))
	}))

	cfg.Path = dir + "-missing"
	_, err = OpenDB(cfg)
	assert.Error(t, err)
}
