// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the orchestrator's HTTP surface: the chat
// turn endpoint, session management, knowledge ingestion, and health.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/agent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/login"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/session"
)

var chatTracer = otel.Tracer("gebeya.orchestrator.handlers")

// DefaultTurnTimeout bounds one turn's wall-clock time.
const DefaultTurnTimeout = 60 * time.Second

// HandleChatMessage processes one conversational turn. Turns before
// authentication are absorbed by the login machine; authenticated turns
// run the full classify-route-respond pipeline under the session lock.
func HandleChatMessage(loop *agent.Loop, sessions session.Store, fsm *login.FSM, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatMessage")
		defer span.End()

		var req datatypes.TurnRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.String("session_id", req.SessionID))

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var resp *datatypes.TurnResponse
		err := sessions.WithLock(ctx, req.SessionID, func(s *datatypes.SessionState) error {
			if len(req.Context) > 0 {
				s.MergeContext(req.Context)
			}

			if s.Stage != datatypes.StageAuthenticated {
				if reply, handled := fsm.HandleTurn(ctx, s, req.Message); handled {
					s.AppendHistory(datatypes.Message{Role: "user", Content: req.Message})
					s.AppendHistory(datatypes.Message{Role: "assistant", Content: reply})
					resp = datatypes.NewTurnResponse(s.SessionID, reply)
					resp.Flow = datatypes.FlowOnboarding
					resp.History = s.History
					return nil
				}
			}

			turn, err := loop.RunTurn(ctx, s, req.Message)
			if err != nil {
				return err
			}
			resp = turn
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case datatypes.IsUnavailable(err):
				slog.Error("Turn failed on collaborator outage", "session_id", req.SessionID, "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"error": "a required service is unavailable, please retry shortly",
				})
			case errors.Is(err, context.DeadlineExceeded):
				slog.Error("Turn timed out", "session_id", req.SessionID, "timeout", timeout.String())
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": "the request took too long, please retry"})
			default:
				slog.Error("Turn failed", "session_id", req.SessionID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
