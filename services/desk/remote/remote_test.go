// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaller_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "tok", r.Header.Get("x-auth-token"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewCaller("crm", srv.Client(), nil)
	resp, err := c.Do(context.Background(), Request{
		Op:     "create",
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   map[string]string{"a": "b"},
		Header: http.Header{"x-auth-token": []string{"tok"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct{ OK bool }
	require.NoError(t, resp.Decode("crm.create", &out))
	assert.True(t, out.OK)
}

func TestCaller_NonSuccessIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"email exists"}`))
	}))
	defer srv.Close()

	_, err := NewCaller("crm", srv.Client(), nil).Do(context.Background(), Request{Op: "create", Method: http.MethodPost, URL: srv.URL})
	re, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindRejected, re.Kind)
	assert.Equal(t, http.StatusConflict, re.StatusCode)
	assert.Contains(t, re.Body, "email exists")
	assert.Equal(t, "crm.create", re.Op)
}

func TestCaller_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewCaller("crm", srv.Client(), nil).Do(ctx, Request{Op: "list", Method: http.MethodGet, URL: srv.URL})
	re, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, re.Kind)
}

func TestCaller_CancelIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCaller("crm", nil, nil).Do(ctx, Request{Op: "list", Method: http.MethodGet, URL: "http://127.0.0.1:1/clients"})
	re, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindCanceled, re.Kind)
}

func TestCaller_ConnectionRefusedIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewCaller("crm", nil, nil).Do(context.Background(), Request{Op: "list", Method: http.MethodGet, URL: url})
	re, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, re.Kind)
}

func TestResponse_DecodeMalformed(t *testing.T) {
	r := &Response{StatusCode: 200, Body: []byte("<html>")}
	err := r.Decode("crm.list", &struct{}{})
	re, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindRejected, re.Kind)
	assert.Zero(t, re.StatusCode)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("op", nil))
	assert.Equal(t, KindTimeout, Classify("op", fmt.Errorf("wrapped: %w", context.DeadlineExceeded)).Kind)
	assert.Equal(t, KindCanceled, Classify("op", context.Canceled).Kind)
	assert.Equal(t, KindTimeout, Classify("op", timeoutErr{}).Kind)
	assert.Equal(t, KindNetwork, Classify("op", errors.New("dial tcp: refused")).Kind)

	orig := Rejected("op", 500, nil)
	assert.Same(t, orig, Classify("other", fmt.Errorf("x: %w", orig)))
}

func TestRejected_TruncatesBody(t *testing.T) {
	e := Rejected("op", 500, []byte(strings.Repeat("x", 2000)))
	assert.Len(t, e.Body, maxErrorBody+3)
	assert.Contains(t, e.Error(), "status 500")
}
