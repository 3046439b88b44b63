// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/session"
)

// TestApplyConfigDefaults verifies a zero Config is filled with the
// documented defaults.
func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, 12210, cfg.Port)
	assert.Equal(t, "ollama", cfg.LLMBackend)
	assert.Equal(t, "gebeya-otel-collector:4317", cfg.OTelEndpoint)
	assert.Equal(t, session.DefaultSessionTTL, cfg.SessionTTL)
	assert.Equal(t, 60*time.Second, cfg.TurnTimeout)
	assert.Equal(t, 30, cfg.MaxIterations)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)
}

// TestApplyConfigDefaults_PreservesExplicitValues verifies explicit
// settings survive the defaulting pass.
func TestApplyConfigDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := applyConfigDefaults(Config{
		Port:           8080,
		LLMBackend:     "openai",
		OTelEndpoint:   "collector:4317",
		SessionTTL:     time.Hour,
		TurnTimeout:    10 * time.Second,
		MaxIterations:  5,
		RateLimitRPS:   2,
		RateLimitBurst: 4,
	})

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "openai", cfg.LLMBackend)
	assert.Equal(t, "collector:4317", cfg.OTelEndpoint)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.TurnTimeout)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, 2.0, cfg.RateLimitRPS)
	assert.Equal(t, 4, cfg.RateLimitBurst)
}

// TestNew_InMemorySmoke verifies the full service wires together with
// an in-memory store and that its router answers health checks.
func TestNew_InMemorySmoke(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	svc, err := New(Config{
		GinMode:        gin.TestMode,
		DisableMetrics: true,
	})
	require.NoError(t, err)
	require.NotNil(t, svc.Router())

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestNew_RejectsMisconfiguredLLM verifies startup fails when the
// selected backend cannot be constructed.
func TestNew_RejectsMisconfiguredLLM(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")

	_, err := New(Config{
		GinMode:        gin.TestMode,
		DisableMetrics: true,
	})
	assert.Error(t, err)
}
