// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/session"
)

// ListSessions returns the ids of all live sessions.
func ListSessions(sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids := sessions.List(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"sessions": ids, "count": len(ids)})
	}
}

// GetSession returns one session's state for debugging and support.
func GetSession(sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		state, ok := sessions.Get(c.Request.Context(), id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// DeleteSession removes a session and its conversation state.
func DeleteSession(sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		if !sessions.Delete(c.Request.Context(), id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.Info("Deleted session", "session_id", id)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}
