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

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the desk endpoints under rg.
//
// Endpoints:
//
//	POST   /desk/sessions                     - Start a call
//	GET    /desk/sessions/:id                 - Session snapshot
//	POST   /desk/sessions/:id/utterances      - Caller turn
//	POST   /desk/sessions/:id/tools/:tool     - Invoke a tool
//	DELETE /desk/sessions/:id                 - End a call
//	GET    /desk/sessions/:id/journal         - Call transcript
//	GET    /desk/sessions/:id/stream          - Live journal (websocket)
//	GET    /desk/tools                        - Tool catalogue
//	GET    /desk/health                       - Health check
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	desk := rg.Group("/desk")
	{
		desk.POST("/sessions", h.HandleStartCall)
		desk.GET("/sessions/:id", h.HandleGetSession)
		desk.POST("/sessions/:id/utterances", h.HandleUtterance)
		desk.POST("/sessions/:id/tools/:tool", h.HandleInvokeTool)
		desk.DELETE("/sessions/:id", h.HandleEndCall)
		desk.GET("/sessions/:id/journal", h.HandleJournal)
		desk.GET("/sessions/:id/stream", h.HandleStream)

		desk.GET("/tools", h.HandleTools)
		desk.GET("/health", h.HandleHealth)
	}
}
