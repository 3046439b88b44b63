// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		baseURL:      baseURL,
		model:        "test-model",
		systemPrompt: "test system prompt",
	}
}

// TestOllamaClient_Complete verifies that the system prompt and history
// are forwarded to /api/chat and the assistant content is returned.
func TestOllamaClient_Complete(t *testing.T) {
	var captured ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		resp := ollamaChatResponse{
			Message: datatypes.Message{Role: "assistant", Content: "hello there"},
			Done:    true,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)
	history := []datatypes.Message{{Role: "user", Content: "hi"}}
	out, err := client.Complete(context.Background(), "say hello", history, GenerationParams{})

	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "test system prompt", captured.Messages[0].Content)
	assert.Equal(t, "say hello", captured.Messages[2].Content)
}

// TestOllamaClient_WithSystemPrompt verifies that the clone carries the
// new prompt while the original client is left untouched.
func TestOllamaClient_WithSystemPrompt(t *testing.T) {
	client := newTestOllamaClient("http://localhost:11434")
	clone := client.WithSystemPrompt("classifier prompt").(*OllamaClient)

	assert.Equal(t, "classifier prompt", clone.systemPrompt)
	assert.Equal(t, "test system prompt", client.systemPrompt)
	assert.Equal(t, client.baseURL, clone.baseURL)
}

// TestOllamaClient_Complete_ServerError verifies that persistent 5xx
// responses surface as a collaborator-unavailable error after retries.
func TestOllamaClient_Complete_ServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL)
	_, err := client.Complete(context.Background(), "prompt", nil, GenerationParams{})

	require.Error(t, err)
	assert.True(t, datatypes.IsUnavailable(err))
	assert.Equal(t, ollamaMaxRetries+1, calls)
}
