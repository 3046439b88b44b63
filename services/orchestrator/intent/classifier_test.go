// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
)

// fakeLLM returns a canned response and records the prompts it saw.
type fakeLLM struct {
	response     string
	err          error
	systemPrompt string
	lastPrompt   string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string, _ []datatypes.Message, _ llm.GenerationParams) (string, error) {
	f.lastPrompt = prompt
	return f.response, f.err
}

func (f *fakeLLM) WithSystemPrompt(prompt string) llm.LLMClient {
	f.systemPrompt = prompt
	return f
}

// TestRegistry_Consistency verifies that every definition carries a
// valid flow and that the catalog text lists every intent.
func TestRegistry_Consistency(t *testing.T) {
	catalog := CatalogText()
	for _, name := range Names() {
		def, ok := Lookup(name)
		require.True(t, ok)
		assert.True(t, datatypes.ValidFlow(def.Flow), "intent %s has flow %q", name, def.Flow)
		assert.NotEmpty(t, def.Description, "intent %s", name)
		assert.Contains(t, catalog, name)
	}
}

// TestClassifier_ParsesFencedJSON verifies that a chatty, fenced model
// response still yields a classification, with missing slots derived
// from the registry rather than trusted from the model.
func TestClassifier_ParsesFencedJSON(t *testing.T) {
	f := &fakeLLM{response: "Here you go:\n```json\n" +
		`{"intent": "intent.customer.place_order", "flow": "customer", "confidence": 0.92,
		  "filled_slots": {"order_items": [{"product_name": "mango", "quantity": 2, "unit": "kg"}]},
		  "missing_slots": [], "rationale": "Customer wants to buy mangoes."}` +
		"\n```"}
	c := NewClassifier(f, nil)
	require.Contains(t, f.systemPrompt, "intent.customer.place_order")

	result := c.Classify(context.Background(), "I want 2 kg mango", nil, nil)
	assert.Equal(t, IntentCustomerPlaceOrder, result.Intent)
	assert.Equal(t, datatypes.FlowCustomer, result.Flow)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
	assert.Equal(t, []string{"preferred_delivery_date"}, result.MissingSlots)
	assert.Equal(t, []string{ToolDatabaseAccess}, result.SuggestedTools)
	assert.Contains(t, f.lastPrompt, "Current utterance: I want 2 kg mango")
}

// TestClassifier_Degradation verifies that every failure mode collapses
// to intent.unknown with the matching rationale instead of an error.
func TestClassifier_Degradation(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		response  string
		err       error
		rationale string
	}{
		{"empty utterance", "  ", "", nil, "No user utterance provided."},
		{"llm error", "hello", "", errors.New("boom"), "LLM classification error."},
		{"empty response", "hello", "   ", nil, "Empty response from classifier."},
		{"no json", "hello", "I could not classify that.", nil, "Classifier response was not valid JSON."},
		{"malformed json", "hello", `{"intent": "intent.unknown",}`, nil, "Classifier JSON parsing error."},
		{"unregistered intent", "hello", `{"intent": "intent.customer.teleport", "confidence": 0.9}`, nil, "Classifier payload validation error."},
		{"confidence out of range", "hello", `{"intent": "intent.customer.place_order", "confidence": 1.7}`, nil, "Classifier payload validation error."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClassifier(&fakeLLM{response: tc.response, err: tc.err}, nil)
			result := c.Classify(context.Background(), tc.utterance, nil, nil)
			assert.Equal(t, datatypes.IntentUnknown, result.Intent)
			assert.Equal(t, tc.rationale, result.Rationale)
		})
	}
}

// TestClassifier_LowConfidenceIsUnknown verifies the confidence floor.
func TestClassifier_LowConfidenceIsUnknown(t *testing.T) {
	f := &fakeLLM{response: `{"intent": "intent.customer.place_order", "flow": "customer", "confidence": 0.2, "rationale": "Very unsure."}`}
	c := NewClassifier(f, nil)

	result := c.Classify(context.Background(), "hmm maybe produce?", nil, nil)
	assert.Equal(t, datatypes.IntentUnknown, result.Intent)
	assert.Equal(t, "Very unsure.", result.Rationale)
}

// TestClassifier_ConfirmationFallback verifies that a bare "yes" with a
// degraded classifier reroutes to the session's current intent.
func TestClassifier_ConfirmationFallback(t *testing.T) {
	c := NewClassifier(&fakeLLM{err: errors.New("backend down")}, nil)
	sessionCtx := map[string]any{"current_intent": IntentSupplierRegister}

	result := c.Classify(context.Background(), "yes", nil, sessionCtx)
	assert.Equal(t, IntentSupplierRegister, result.Intent)
	assert.Equal(t, datatypes.FlowSupplier, result.Flow)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)

	// Not a confirmation: stays degraded.
	result = c.Classify(context.Background(), "the weather is nice", nil, sessionCtx)
	assert.Equal(t, datatypes.IntentUnknown, result.Intent)

	// No current intent: stays degraded.
	result = c.Classify(context.Background(), "yes", nil, map[string]any{})
	assert.Equal(t, datatypes.IntentUnknown, result.Intent)
}

// TestExtractJSON verifies the balanced-brace scan, including braces
// inside string values.
func TestExtractJSON(t *testing.T) {
	got, ok := extractJSON(`noise {"a": "has } brace", "b": {"c": 1}} trailing`)
	require.True(t, ok)
	assert.Equal(t, `{"a": "has } brace", "b": {"c": 1}}`, got)

	_, ok = extractJSON("no object here")
	assert.False(t, ok)

	_, ok = extractJSON(`{"unterminated": true`)
	assert.False(t, ok)
}

// TestBuildUserPrompt_CapsHistory verifies that only the newest six
// messages are quoted.
func TestBuildUserPrompt_CapsHistory(t *testing.T) {
	var history []datatypes.Message
	for _, content := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"} {
		history = append(history, datatypes.Message{Role: "user", Content: content})
	}
	prompt := buildUserPrompt("next", history, nil)
	assert.NotContains(t, prompt, "m2")
	assert.Contains(t, prompt, "m3")
	assert.Contains(t, prompt, "m8")
	assert.True(t, strings.HasSuffix(prompt, "Respond with JSON only."))
}
