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
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// HandleStream handles GET /v1/desk/sessions/:id/stream.
//
// Description:
//
//	Upgrades to a websocket and pushes every journal entry of the call as
//	a JSON text frame while the call is open. The server closes the socket
//	with 1000 when the call ends. Client frames are read only to observe
//	pongs and disconnects.
//
// Response:
//
//	101 Switching Protocols: Stream of journal.Entry
//	404 Not Found: Unknown session
func (h *Handlers) HandleStream(c *gin.Context) {
	id := c.Param("id")
	events, cancel, err := h.coord.Subscribe(id)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("stream upgrade failed", slog.String("session_id", id), slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	readTimeout := 2 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				h.logger.Debug("stream write failed", slog.String("session_id", id), slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
