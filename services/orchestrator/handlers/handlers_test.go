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
	"context"
	"encoding/json"
	"errors"
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
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/session"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedLLM replays fixed completions for the reasoning path.
type scriptedLLM struct {
	responses []string
	calls     int
	err       error
}

func (s *scriptedLLM) Complete(context.Context, string, []datatypes.Message, llm.GenerationParams) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "Final Answer: ok", nil
	}
	if s.calls >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

func (s *scriptedLLM) WithSystemPrompt(string) llm.LLMClient { return s }

// stubClassifier pins classifications without an LLM.
type stubClassifier struct {
	result datatypes.IntentClassification
}

func (s *stubClassifier) Name() string        { return "intent_classifier" }
func (s *stubClassifier) Description() string { return "Classify the user's utterance." }

func (s *stubClassifier) Run(context.Context, any, map[string]any) (any, error) {
	c := s.result
	return &c, nil
}

type testApp struct {
	engine   *gin.Engine
	sessions *session.ShardedStore
	market   *store.Marketplace
}

func newTestApp(t *testing.T, llmClient llm.LLMClient, classification datatypes.IntentClassification) *testApp {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	market := store.NewMarketplace(db)
	router := flows.NewRouter(market, llmClient, nil)
	registry, err := tools.NewRegistry(&stubClassifier{result: classification})
	require.NoError(t, err)

	loop := agent.NewLoop(registry, router, llmClient, 10, nil)
	sessions := session.NewStore(session.SystemClock)
	fsm := login.NewFSM(market, router.SupplierDashboard, nil)

	engine := gin.New()
	engine.POST("/v1/chat/message", HandleChatMessage(loop, sessions, fsm, time.Minute))
	engine.GET("/v1/sessions", ListSessions(sessions))
	engine.GET("/v1/sessions/:sessionId", GetSession(sessions))
	engine.DELETE("/v1/sessions/:sessionId", DeleteSession(sessions))
	engine.GET("/healthz", Healthz())

	return &testApp{engine: engine, sessions: sessions, market: market}
}

func (a *testApp) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testApp) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

// authenticate marks a session as past onboarding.
func (a *testApp) authenticate(t *testing.T, sessionID string) {
	t.Helper()
	err := a.sessions.WithLock(context.Background(), sessionID, func(s *datatypes.SessionState) error {
		s.Stage = datatypes.StageAuthenticated
		return nil
	})
	require.NoError(t, err)
}

// TestHandleChatMessage_RejectsInvalidBody verifies malformed and
// incomplete payloads are rejected with 400.
func TestHandleChatMessage_RejectsInvalidBody(t *testing.T) {
	app := newTestApp(t, &scriptedLLM{}, datatypes.UnknownClassification(""))

	w := app.post(t, "/v1/chat/message", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.post(t, "/v1/chat/message", `{"session_id": "sess-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandleChatMessage_OnboardingIntercept verifies turns before
// authentication go to the login machine, not the classifier.
func TestHandleChatMessage_OnboardingIntercept(t *testing.T) {
	app := newTestApp(t, &scriptedLLM{}, datatypes.UnknownClassification(""))

	w := app.post(t, "/v1/chat/message", `{"message": "hi there"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.FlowOnboarding, resp.Flow)
	assert.Contains(t, resp.Response, "customer")
	assert.Contains(t, resp.Response, "supplier")
	assert.NotEmpty(t, resp.SessionID)
	assert.Empty(t, resp.ToolCalls)
}

// TestHandleChatMessage_AuthenticatedTurn verifies an authenticated
// session runs the full pipeline and returns the classifier trace.
func TestHandleChatMessage_AuthenticatedTurn(t *testing.T) {
	app := newTestApp(t, &scriptedLLM{}, datatypes.UnknownClassification("No intent matched with sufficient confidence."))
	app.authenticate(t, "sess-1")

	w := app.post(t, "/v1/chat/message", `{"session_id": "sess-1", "message": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, datatypes.IntentUnknown, resp.Intent)
	assert.Contains(t, resp.Response, "Welcome to GebeyaKart")
	require.NotEmpty(t, resp.ToolCalls)
	assert.Equal(t, "intent_classifier", resp.ToolCalls[0].Tool)
}

// TestHandleChatMessage_ContextSeeding verifies request context entries
// are merged into the session before the turn runs.
func TestHandleChatMessage_ContextSeeding(t *testing.T) {
	app := newTestApp(t, &scriptedLLM{}, datatypes.UnknownClassification(""))
	app.authenticate(t, "sess-1")

	w := app.post(t, "/v1/chat/message",
		`{"session_id": "sess-1", "message": "hello", "context": {"preferred_language": "Amharic"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	state, ok := app.sessions.Get(context.Background(), "sess-1")
	require.True(t, ok)
	assert.Equal(t, "Amharic", state.Context["preferred_language"])
}

// TestHandleChatMessage_CollaboratorOutage verifies an LLM outage on
// the reasoning path maps to 503.
func TestHandleChatMessage_CollaboratorOutage(t *testing.T) {
	app := newTestApp(t,
		&scriptedLLM{err: errors.New("connection refused")},
		datatypes.IntentClassification{
			Intent: "intent.customer.track_shipment", Flow: datatypes.FlowCustomer, Confidence: 0.9,
		})
	app.authenticate(t, "sess-1")

	w := app.post(t, "/v1/chat/message", `{"session_id": "sess-1", "message": "track my shipment"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestSessions_Lifecycle verifies list, get, and delete against live
// session state.
func TestSessions_Lifecycle(t *testing.T) {
	app := newTestApp(t, &scriptedLLM{}, datatypes.UnknownClassification(""))
	app.authenticate(t, "sess-1")

	w := app.do(t, http.MethodGet, "/v1/sessions")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sess-1")

	w = app.do(t, http.MethodGet, "/v1/sessions/sess-1")
	require.Equal(t, http.StatusOK, w.Code)
	var state datatypes.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, datatypes.StageAuthenticated, state.Stage)

	w = app.do(t, http.MethodDelete, "/v1/sessions/sess-1")
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/v1/sessions/sess-1")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodDelete, "/v1/sessions/sess-1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestKnowledge_UnconfiguredBackend verifies knowledge endpoints answer
// 503 when no vector store is deployed.
func TestKnowledge_UnconfiguredBackend(t *testing.T) {
	engine := gin.New()
	engine.POST("/v1/knowledge/documents", IngestKnowledge(nil))
	engine.POST("/v1/knowledge/search", SearchKnowledge(tools.NewVectorSearchTool(nil)))

	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/documents",
		strings.NewReader(`{"documents": [{"text": "store onions somewhere dark"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/knowledge/search",
		strings.NewReader(`{"query": "how to store onions"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/knowledge/search", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHealthz verifies the liveness endpoint.
func TestHealthz(t *testing.T) {
	app := newTestApp(t, &scriptedLLM{}, datatypes.UnknownClassification(""))
	w := app.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
