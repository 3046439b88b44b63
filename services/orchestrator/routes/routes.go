// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/agent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/handlers"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/login"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/middleware"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/session"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

// Deps carries everything the route table wires together.
type Deps struct {
	Loop        *agent.Loop
	Sessions    session.Store
	FSM         *login.FSM
	Weaviate    *weaviate.Client
	Search      *tools.VectorSearchTool
	Limiter     *middleware.RateLimiter
	TurnTimeout time.Duration
}

// SetupRoutes registers the orchestrator's HTTP surface.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(otelgin.Middleware("gebeya-orchestrator"))

	router.GET("/healthz", handlers.Healthz())
	router.GET("/readyz", handlers.Readyz(deps.Weaviate))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if deps.Limiter != nil {
		v1.Use(deps.Limiter.Middleware())
	}
	{
		v1.POST("/chat/message", handlers.HandleChatMessage(deps.Loop, deps.Sessions, deps.FSM, deps.TurnTimeout))

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(deps.Sessions))
			sessions.GET("/:sessionId", handlers.GetSession(deps.Sessions))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(deps.Sessions))
		}

		knowledge := v1.Group("/knowledge")
		{
			knowledge.POST("/documents", handlers.IngestKnowledge(deps.Weaviate))
			knowledge.POST("/search", handlers.SearchKnowledge(deps.Search))
		}
	}
}
