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
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/agent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/flows"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/login"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/middleware"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/session"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticLLM struct{}

func (staticLLM) Complete(context.Context, string, []datatypes.Message, llm.GenerationParams) (string, error) {
	return "Final Answer: ok", nil
}

func (s staticLLM) WithSystemPrompt(string) llm.LLMClient { return s }

type unknownClassifier struct{}

func (unknownClassifier) Name() string        { return "intent_classifier" }
func (unknownClassifier) Description() string { return "Classify the user's utterance." }

func (unknownClassifier) Run(context.Context, any, map[string]any) (any, error) {
	c := datatypes.UnknownClassification("No intent matched with sufficient confidence.")
	return &c, nil
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	market := store.NewMarketplace(db)
	llmClient := staticLLM{}
	router := flows.NewRouter(market, llmClient, nil)
	registry, err := tools.NewRegistry(unknownClassifier{})
	require.NoError(t, err)

	sessions := session.NewStore(session.SystemClock)
	engine := gin.New()
	SetupRoutes(engine, Deps{
		Loop:        agent.NewLoop(registry, router, llmClient, 10, nil),
		Sessions:    sessions,
		FSM:         login.NewFSM(market, nil, nil),
		Search:      tools.NewVectorSearchTool(nil),
		Limiter:     middleware.NewRateLimiter(100, 100),
		TurnTimeout: time.Minute,
	})
	return engine
}

// TestSetupRoutes_Surface verifies each registered endpoint responds
// from the route table.
func TestSetupRoutes_Surface(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/v1/sessions", "", http.StatusOK},
		{http.MethodGet, "/v1/sessions/nope", "", http.StatusNotFound},
		{http.MethodPost, "/v1/chat/message", `{"message": "hi"}`, http.StatusOK},
		{http.MethodPost, "/v1/knowledge/documents", `{"documents": [{"text": "x"}]}`, http.StatusServiceUnavailable},
		{http.MethodPost, "/v1/knowledge/search", `{"query": "x"}`, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		var req *http.Request
		if tc.body != "" {
			req = httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(tc.method, tc.path, nil)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.method, tc.path)
	}
}

// TestSetupRoutes_RateLimitApplies verifies the v1 group is behind the
// limiter while health endpoints are not.
func TestSetupRoutes_RateLimitApplies(t *testing.T) {
	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	market := store.NewMarketplace(db)
	llmClient := staticLLM{}
	registry, err := tools.NewRegistry(unknownClassifier{})
	require.NoError(t, err)

	engine := gin.New()
	SetupRoutes(engine, Deps{
		Loop:        agent.NewLoop(registry, flows.NewRouter(market, llmClient, nil), llmClient, 10, nil),
		Sessions:    session.NewStore(session.SystemClock),
		FSM:         login.NewFSM(market, nil, nil),
		Search:      tools.NewVectorSearchTool(nil),
		Limiter:     middleware.NewRateLimiter(1, 1),
		TurnTimeout: time.Minute,
	})

	first := httptest.NewRecorder()
	engine.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	engine.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	health := httptest.NewRecorder()
	engine.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}
