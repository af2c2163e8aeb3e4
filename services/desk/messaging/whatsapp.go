// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package messaging sends side-channel messages to a caller over the
// WhatsApp Cloud API.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/voicedesk/services/desk/identity"
	"github.com/AleutianAI/voicedesk/services/desk/remote"
	"github.com/AleutianAI/voicedesk/services/desk/secrets"
)

// DefaultGraphURL is the Graph API root the messages endpoint hangs off.
const DefaultGraphURL = "https://graph.facebook.com/v19.0"

// DefaultRatePerSecond bounds sends per process. The Cloud API throttles
// per phone number id, so one limiter per client is enough.
const DefaultRatePerSecond = 10

// Ack is the gateway's delivery acknowledgement.
type Ack struct {
	MessageID string `json:"message_id"`
}

// Config configures a WhatsApp client.
type Config struct {
	// GraphURL defaults to DefaultGraphURL.
	GraphURL string

	// PhoneNumberID is the sending business number id.
	PhoneNumberID string

	Token secrets.TokenSource

	// RatePerSecond and Burst shape outbound sends. Zero uses defaults.
	RatePerSecond float64
	Burst         int

	// HTTPClient may be nil.
	HTTPClient *http.Client
}

// WhatsApp sends image and text messages.
//
// Thread Safety: Safe for concurrent use.
type WhatsApp struct {
	endpoint string
	token    secrets.TokenSource
	limiter  *rate.Limiter
	caller   *remote.Caller
	logger   *slog.Logger
}

// NewWhatsApp creates a WhatsApp client.
//
// Inputs:
//   - cfg: PhoneNumberID and Token are required.
//   - logger: May be nil.
func NewWhatsApp(cfg Config, logger *slog.Logger) (*WhatsApp, error) {
	if cfg.PhoneNumberID == "" {
		return nil, errors.New("messaging: phone number id is required")
	}
	if cfg.Token == nil {
		return nil, errors.New("messaging: token source is required")
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSecond))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{
		endpoint: strings.TrimRight(cfg.GraphURL, "/") + "/" + cfg.PhoneNumberID + "/messages",
		token:    cfg.Token,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		caller:   remote.NewCaller("whatsapp", cfg.HTTPClient, logger),
		logger:   logger,
	}, nil
}

type messageBody struct {
	MessagingProduct string     `json:"messaging_product"`
	RecipientType    string     `json:"recipient_type"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Image            *imageBody `json:"image,omitempty"`
	Text             *textBody  `json:"text,omitempty"`
}

type imageBody struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type sendReply struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendImage sends an image by URL with a caption.
//
// Inputs:
//   - ctx: Carries the per-call deadline.
//   - to: A +965 number.
//   - imageURL: Publicly reachable image.
//   - caption: Single-language caption.
//
// Outputs:
//   - Ack: The gateway message id.
//   - error: A *remote.Error on failure.
func (w *WhatsApp) SendImage(ctx context.Context, to, imageURL, caption string) (Ack, error) {
	return w.send(ctx, "send_image", messageBody{
		To:    to,
		Type:  "image",
		Image: &imageBody{Link: imageURL, Caption: caption},
	})
}

// SendText sends a plain text message. Links get a preview.
func (w *WhatsApp) SendText(ctx context.Context, to, body string) (Ack, error) {
	return w.send(ctx, "send_text", messageBody{
		To:   to,
		Type: "text",
		Text: &textBody{Body: body, PreviewURL: strings.Contains(body, "http")},
	})
}

func (w *WhatsApp) send(ctx context.Context, op string, msg messageBody) (Ack, error) {
	opName := w.caller.Target() + "." + op
	if !identity.Valid(msg.To) {
		return Ack{}, fmt.Errorf("messaging: recipient %s: %w", identity.Mask(msg.To), identity.ErrIdentityNotResolved)
	}

	start := time.Now()
	if err := w.limiter.Wait(ctx); err != nil {
		return Ack{}, remote.Classify(opName, fmt.Errorf("rate limiter: %w", err))
	}
	remote.RecordThrottle(w.caller.Target(), time.Since(start))

	token, err := w.token.Token(ctx)
	if err != nil {
		return Ack{}, remote.Classify(opName, fmt.Errorf("auth token: %w", err))
	}

	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	resp, err := w.caller.Do(ctx, remote.Request{Op: op, Method: http.MethodPost, URL: w.endpoint, Body: msg, Header: header})
	if err != nil {
		return Ack{}, err
	}

	var reply sendReply
	if err := resp.Decode(opName, &reply); err != nil {
		return Ack{}, err
	}
	if len(reply.Messages) == 0 || reply.Messages[0].ID == "" {
		return Ack{}, remote.Malformed(opName, errors.New("reply has no message id"))
	}

	w.logger.Info("messaging: sent",
		slog.String("type", msg.Type),
		slog.String("to", identity.Mask(msg.To)),
		slog.String("message_id", reply.Messages[0].ID),
	)
	return Ack{MessageID: reply.Messages[0].ID}, nil
}
