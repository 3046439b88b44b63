// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/flows"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/intent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

// scriptedLLM replays a fixed sequence of completions.
type scriptedLLM struct {
	responses []string
	calls     int
	err       error
}

func (s *scriptedLLM) Complete(context.Context, string, []datatypes.Message, llm.GenerationParams) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.calls >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

func (s *scriptedLLM) WithSystemPrompt(string) llm.LLMClient { return s }

// stubClassifier stands in for the real classifier tool so tests can
// pin the classification without an LLM.
type stubClassifier struct {
	result datatypes.IntentClassification
}

func (s *stubClassifier) Name() string        { return "intent_classifier" }
func (s *stubClassifier) Description() string { return "Classify the user's utterance." }

func (s *stubClassifier) Run(context.Context, any, map[string]any) (any, error) {
	c := s.result
	return &c, nil
}

// echoTool returns its input; used to observe reasoning-loop calls.
type echoTool struct {
	calls int
	err   error
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echo the input back." }

func (e *echoTool) Run(_ context.Context, input any, _ map[string]any) (any, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return input, nil
}

func newTestRouter(t *testing.T, llmClient llm.LLMClient) *flows.Router {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return flows.NewRouter(store.NewMarketplace(db), llmClient, nil)
}

func newTestSession() *datatypes.SessionState {
	s := datatypes.NewSessionState("sess-1", time.Now())
	s.Stage = datatypes.StageAuthenticated
	return s
}

// TestParseStep_FinalAnswer verifies final answer extraction, with and
// without a thought line.
func TestParseStep_FinalAnswer(t *testing.T) {
	step, err := ParseStep("Thought: I have what I need\nFinal Answer: Tomatoes are 45 ETB per kg.")
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes are 45 ETB per kg.", step.FinalAnswer)
	assert.Equal(t, "I have what I need", step.Thought)

	step, err = ParseStep("Final Answer: Done.")
	require.NoError(t, err)
	assert.Equal(t, "Done.", step.FinalAnswer)
}

// TestParseStep_Action verifies tool step extraction including fenced
// JSON and quoted tool names.
func TestParseStep_Action(t *testing.T) {
	step, err := ParseStep("Thought: need the catalog\nAction: database_access\nAction Input: {\"entity\": \"products\", \"op\": \"list\"}")
	require.NoError(t, err)
	assert.Empty(t, step.FinalAnswer)
	assert.Equal(t, "database_access", step.Action)
	assert.Equal(t, "products", step.ActionInput["entity"])

	step, err = ParseStep("Action: `vector_search`\nAction Input:\n```json\n{\"query\": \"storing onions\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "vector_search", step.Action)
	assert.Equal(t, "storing onions", step.ActionInput["query"])
}

// TestParseStep_ActionWithoutInput verifies a bare action gets an empty
// input object.
func TestParseStep_ActionWithoutInput(t *testing.T) {
	step, err := ParseStep("Thought: check stock\nAction: database_access")
	require.NoError(t, err)
	assert.Equal(t, "database_access", step.Action)
	assert.NotNil(t, step.ActionInput)
	assert.Empty(t, step.ActionInput)
}

// TestParseStep_Malformed verifies rejection of unusable output.
func TestParseStep_Malformed(t *testing.T) {
	for _, text := range []string{
		"",
		"Sure! Let me help you with that.",
		"Action:",
		"Thought: hmm\nAction: database_access\nAction Input: {\"entity\": ",
	} {
		_, err := ParseStep(text)
		assert.ErrorIs(t, err, ErrMalformedStep, "text: %q", text)
	}
}

// TestLoop_ClassifierIsFirstToolCall verifies the classifier runs as
// the turn's first metered tool call and its result stamps the response.
func TestLoop_ClassifierIsFirstToolCall(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{"unused"}}
	registry, err := tools.NewRegistry(&stubClassifier{result: datatypes.UnknownClassification("No intent matched with sufficient confidence.")})
	require.NoError(t, err)

	loop := NewLoop(registry, newTestRouter(t, llmClient), llmClient, 10, nil)
	session := newTestSession()

	resp, err := loop.RunTurn(context.Background(), session, "hello")
	require.NoError(t, err)
	require.NotEmpty(t, resp.ToolCalls)
	assert.Equal(t, "intent_classifier", resp.ToolCalls[0].Tool)
	assert.Equal(t, datatypes.IntentUnknown, resp.Intent)
	assert.Contains(t, resp.Response, "Welcome to GebeyaKart")
	assert.Equal(t, 1, resp.Trace["iterations"])
}

// TestLoop_DeterministicDispatch verifies a registered intent is routed
// to its flow handler, not the reasoning loop.
func TestLoop_DeterministicDispatch(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{"should not be called"}}
	registry, err := tools.NewRegistry(&stubClassifier{result: datatypes.IntentClassification{
		Intent:      intent.IntentCustomerCheckDeliveries,
		Flow:        datatypes.FlowCustomer,
		Confidence:  0.9,
		FilledSlots: map[string]any{},
	}})
	require.NoError(t, err)

	loop := NewLoop(registry, newTestRouter(t, llmClient), llmClient, 10, nil)
	session := newTestSession()

	resp, err := loop.RunTurn(context.Background(), session, "where are my deliveries?")
	require.NoError(t, err)
	assert.Equal(t, 0, llmClient.calls)
	assert.Equal(t, intent.IntentCustomerCheckDeliveries, resp.Intent)
	assert.Contains(t, resp.Response, "I don't see an account on this session yet")
	assert.Equal(t, datatypes.FlowCustomer, session.Context["current_flow"])
	assert.Equal(t, intent.IntentCustomerCheckDeliveries, session.Context["current_intent"])
	require.Len(t, session.History, 2)
	assert.Equal(t, "user", session.History[0].Role)
	assert.Equal(t, "assistant", session.History[1].Role)
}

// TestLoop_ReactPath verifies the tool-using loop: model step, tool
// call, then final answer, all metered.
func TestLoop_ReactPath(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		"Thought: check the data\nAction: echo\nAction Input: {\"probe\": true}",
		"Thought: I have what I need\nFinal Answer: All set.",
	}}
	echo := &echoTool{}
	registry, err := tools.NewRegistry(
		&stubClassifier{result: datatypes.IntentClassification{
			Intent: "intent.customer.track_shipment", Flow: datatypes.FlowCustomer, Confidence: 0.9,
		}},
		echo,
	)
	require.NoError(t, err)

	loop := NewLoop(registry, newTestRouter(t, llmClient), llmClient, 10, nil)
	resp, err := loop.RunTurn(context.Background(), newTestSession(), "track my shipment")
	require.NoError(t, err)
	assert.Equal(t, "All set.", resp.Response)
	assert.Equal(t, 1, echo.calls)
	// classifier + 2 model calls + 1 tool call
	assert.Equal(t, 4, resp.Trace["iterations"])
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "echo", resp.ToolCalls[1].Tool)
}

// TestLoop_RecoversFromMalformedStep verifies one recovery message is
// issued and the turn still completes.
func TestLoop_RecoversFromMalformedStep(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		"Happy to help with that!",
		"Final Answer: Recovered.",
	}}
	registry, err := tools.NewRegistry(&stubClassifier{result: datatypes.IntentClassification{
		Intent: "intent.customer.track_shipment", Flow: datatypes.FlowCustomer, Confidence: 0.9,
	}})
	require.NoError(t, err)

	loop := NewLoop(registry, newTestRouter(t, llmClient), llmClient, 10, nil)
	resp, err := loop.RunTurn(context.Background(), newTestSession(), "track my shipment")
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", resp.Response)
	assert.Equal(t, 2, llmClient.calls)
}

// TestLoop_BudgetExhaustion verifies the loop terminates with the fixed
// fallback reply instead of spinning.
func TestLoop_BudgetExhaustion(t *testing.T) {
	// The model always asks for another tool call; the budget must stop it.
	llmClient := &scriptedLLM{responses: []string{
		"Thought: more data\nAction: echo\nAction Input: {}",
	}}
	registry, err := tools.NewRegistry(
		&stubClassifier{result: datatypes.IntentClassification{
			Intent: "intent.customer.track_shipment", Flow: datatypes.FlowCustomer, Confidence: 0.9,
		}},
		&echoTool{},
	)
	require.NoError(t, err)

	loop := NewLoop(registry, newTestRouter(t, llmClient), llmClient, 5, nil)
	resp, err := loop.RunTurn(context.Background(), newTestSession(), "track my shipment")
	require.NoError(t, err)
	assert.Equal(t, budgetFallbackReply, resp.Response)
	assert.Equal(t, 5, resp.Trace["iterations"])
}

// TestLoop_UnavailableBubbles verifies collaborator outages surface as
// errors for the HTTP layer instead of degrading silently.
func TestLoop_UnavailableBubbles(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		"Thought: need the knowledge base\nAction: echo\nAction Input: {}",
	}}
	registry, err := tools.NewRegistry(
		&stubClassifier{result: datatypes.IntentClassification{
			Intent: "intent.customer.track_shipment", Flow: datatypes.FlowCustomer, Confidence: 0.9,
		}},
		&echoTool{err: &datatypes.CollaboratorUnavailableError{Service: "weaviate", Message: "connection refused"}},
	)
	require.NoError(t, err)

	loop := NewLoop(registry, newTestRouter(t, llmClient), llmClient, 10, nil)
	_, err = loop.RunTurn(context.Background(), newTestSession(), "track my shipment")
	require.Error(t, err)
	assert.True(t, datatypes.IsUnavailable(err))
}

// TestLoop_ToolErrorBecomesObservation verifies ordinary tool failures
// feed back into the loop rather than ending the turn.
func TestLoop_ToolErrorBecomesObservation(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		"Thought: try the tool\nAction: missing_tool\nAction Input: {}",
		"Final Answer: I couldn't look that up, sorry.",
	}}
	registry, err := tools.NewRegistry(&stubClassifier{result: datatypes.IntentClassification{
		Intent: "intent.customer.track_shipment", Flow: datatypes.FlowCustomer, Confidence: 0.9,
	}})
	require.NoError(t, err)

	loop := NewLoop(registry, newTestRouter(t, llmClient), llmClient, 10, nil)
	resp, err := loop.RunTurn(context.Background(), newTestSession(), "track my shipment")
	require.NoError(t, err)
	assert.Equal(t, "I couldn't look that up, sorry.", resp.Response)
}
