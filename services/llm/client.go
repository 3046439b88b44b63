// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the completion clients used by the orchestrator.
//
// Two backends are supported: OpenAI (hosted) and Ollama (local). Both
// implement LLMClient and own their retry policy; callers only see a
// single Complete call bounded by the incoming context.
package llm

import (
	"context"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
)

// GenerationParams carries per-call sampling overrides. Nil fields fall
// back to backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// # Description
//
// Complete sends the prompt, preceded by the optional conversation
// history, and returns the assistant text. WithSystemPrompt returns a
// shallow clone of the client bound to a different system prompt so a
// component (for example the intent classifier) can run under its own
// persona without mutating the shared client.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. WithSystemPrompt
// must never modify the receiver.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, history []datatypes.Message,
		params GenerationParams) (string, error)
	WithSystemPrompt(prompt string) LLMClient
}
