// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets keeps collaborator credentials in encrypted memory.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/awnumar/memguard"
)

// Well-known secret keys.
const (
	KeyCRMToken      = "crm_token"
	KeyWhatsAppToken = "whatsapp_token"
	KeyInfluxToken   = "influx_token"
)

// ErrSecretNotFound is returned for keys that were never sealed or were
// sealed empty.
var ErrSecretNotFound = errors.New("secrets: not found")

// Source retrieves a secret by key.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Source interface {
	// GetSecret retrieves a secret by key.
	//
	// Inputs:
	//   - ctx: Context for cancellation.
	//   - key: The secret key name.
	//
	// Outputs:
	//   - string: The secret value.
	//   - error: Non-nil if the secret cannot be retrieved (including ErrSecretNotFound).
	GetSecret(ctx context.Context, key string) (string, error)
}

// TokenSource yields one credential. Collaborator clients take this rather
// than a plain string so the token stays sealed between calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Vault holds secrets in memguard enclaves.
//
// Description:
//
//	Values are encrypted at rest in process memory and decrypted into a
//	locked buffer only for the duration of GetSecret. Call Purge on
//	shutdown to wipe everything.
//
// Thread Safety: Safe for concurrent use via sync.RWMutex.
type Vault struct {
	mu       sync.RWMutex
	enclaves map[string]*memguard.Enclave
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{enclaves: make(map[string]*memguard.Enclave)}
}

// Seal stores value under key. value is wiped by memguard. Empty values
// are ignored and the key stays missing.
func (v *Vault) Seal(key string, value []byte) {
	if len(value) == 0 {
		return
	}
	enclave := memguard.NewEnclave(value)

	v.mu.Lock()
	v.enclaves[key] = enclave
	v.mu.Unlock()
}

// SealEnv seals the value of an environment variable and unsets it.
//
// Outputs:
//   - bool: True if the variable was set and non-empty.
func (v *Vault) SealEnv(key, envVar string) bool {
	value := os.Getenv(envVar)
	if value == "" {
		return false
	}
	v.Seal(key, []byte(value))
	_ = os.Unsetenv(envVar)
	return true
}

// GetSecret decrypts and returns a copy of the secret.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - key: The secret key name.
//
// Outputs:
//   - string: The secret value.
//   - error: ErrSecretNotFound, a context error, or a decryption failure.
func (v *Vault) GetSecret(ctx context.Context, key string) (string, error) {
	if ctx.Err() != nil {
		return "", fmt.Errorf("retrieving secret %q: %w", key, ctx.Err())
	}

	v.mu.RLock()
	enclave, ok := v.enclaves[key]
	v.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("secret %q: %w", key, ErrSecretNotFound)
	}

	buf, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening secret %q: %w", key, err)
	}
	defer buf.Destroy()

	return string(buf.Bytes()), nil
}

// Has reports whether key is sealed.
func (v *Vault) Has(key string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.enclaves[key]
	return ok
}

// Keys lists sealed keys, sorted.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	keys := make([]string, 0, len(v.enclaves))
	for k := range v.enclaves {
		keys = append(keys, k)
	}
	v.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Token returns a TokenSource bound to one key of src.
func Token(src Source, key string) TokenSource {
	return keyedToken{src: src, key: key}
}

type keyedToken struct {
	src Source
	key string
}

func (t keyedToken) Token(ctx context.Context) (string, error) {
	return t.src.GetSecret(ctx, t.key)
}

// Static is a fixed TokenSource, for tests and local runs.
type Static string

// Token returns the static value, or ErrSecretNotFound when empty.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrSecretNotFound
	}
	return string(s), nil
}

// Purge wipes all memguard-managed memory. Call once on shutdown.
func Purge() {
	memguard.Purge()
}

// CatchInterrupt installs memguard's signal handler, which purges secrets
// before the process exits on SIGINT.
func CatchInterrupt() {
	memguard.CatchInterrupt()
}
