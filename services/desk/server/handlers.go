// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/voicedesk/services/desk/agent"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/journal"
	"github.com/AleutianAI/voicedesk/services/desk/session"
)

const requestIDHeader = "X-Request-ID"

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StartCallRequest is the body of POST /sessions.
type StartCallRequest struct {
	ParticipantIdentity string `json:"participant_identity" binding:"required"`
}

// UtteranceRequest is the body of POST /sessions/:id/utterances.
type UtteranceRequest struct {
	Text string `json:"text" binding:"required"`
}

// JournalResponse is the body of GET /sessions/:id/journal.
type JournalResponse struct {
	SessionID string          `json:"session_id"`
	Entries   []journal.Entry `json:"entries"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	OpenCalls int    `json:"open_calls"`
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	coord        *agent.Coordinator
	pingInterval time.Duration
	logger       *slog.Logger
}

// NewHandlers creates handlers over a coordinator.
func NewHandlers(coord *agent.Coordinator, pingInterval time.Duration, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{coord: coord, pingInterval: pingInterval, logger: logger}
}

// HandleStartCall handles POST /v1/desk/sessions.
//
// Response:
//
//	201 Created: agent.Turn with the session id and greeting
//	400 Bad Request: Missing participant_identity
func (h *Handlers) HandleStartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	turn := h.coord.StartCall(c.Request.Context(), req.ParticipantIdentity)
	h.requestLogger(c).Info("call started", slog.String("session_id", turn.SessionID))
	c.JSON(http.StatusCreated, turn)
}

// HandleGetSession handles GET /v1/desk/sessions/:id.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	snap, err := h.coord.Session(c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// HandleUtterance handles POST /v1/desk/sessions/:id/utterances.
//
// Response:
//
//	200 OK: agent.Turn; reply is present only when a tool ran
//	400 Bad Request: Missing text
//	404 Not Found: Unknown session
//	410 Gone: Call already ended
func (h *Handlers) HandleUtterance(c *gin.Context) {
	var req UtteranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	turn, err := h.coord.HandleUtterance(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

// HandleInvokeTool handles POST /v1/desk/sessions/:id/tools/:tool.
//
// Description:
//
//	The body is the tool's JSON argument object; an empty body means no
//	arguments. Tool failures are 200 responses whose result carries
//	status "error" and a reason, so the runtime can still speak the reply.
//
// Response:
//
//	200 OK: agent.Turn with result
//	400 Bad Request: Body is not a JSON object
//	404 Not Found: Unknown session
func (h *Handlers) HandleInvokeTool(c *gin.Context) {
	args := map[string]any{}
	if err := c.ShouldBindJSON(&args); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	turn, err := h.coord.InvokeTool(c.Request.Context(), c.Param("id"), c.Param("tool"), args)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

// HandleEndCall handles DELETE /v1/desk/sessions/:id.
func (h *Handlers) HandleEndCall(c *gin.Context) {
	snap, err := h.coord.EndCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	h.requestLogger(c).Info("call ended",
		slog.String("session_id", snap.ID),
		slog.String("last_intent", snap.LastIntent),
	)
	c.JSON(http.StatusOK, snap)
}

// HandleJournal handles GET /v1/desk/sessions/:id/journal. Ended calls
// stay readable until their entries expire.
func (h *Handlers) HandleJournal(c *gin.Context) {
	id := c.Param("id")
	entries, err := h.coord.Transcript(c.Request.Context(), id)
	if err != nil {
		h.requestLogger(c).Error("reading journal failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "journal unavailable", Code: "JOURNAL_ERROR"})
		return
	}
	c.JSON(http.StatusOK, JournalResponse{SessionID: id, Entries: entries})
}

// HandleTools handles GET /v1/desk/tools.
func (h *Handlers) HandleTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": dispatch.Tools()})
}

// HandleHealth handles GET /v1/desk/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", OpenCalls: h.coord.OpenCalls()})
}

func (h *Handlers) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found", Code: "SESSION_NOT_FOUND"})
	case errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusGone, ErrorResponse{Error: "call has ended", Code: "SESSION_CLOSED"})
	default:
		h.requestLogger(c).Error("request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "INTERNAL"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
}

// requestLogger returns a logger tagged with the request id, creating the
// id if the caller sent none.
func (h *Handlers) requestLogger(c *gin.Context) *slog.Logger {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	return h.logger.With(slog.String("request_id", id))
}
