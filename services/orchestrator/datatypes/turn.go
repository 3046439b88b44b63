// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the request, response, and state types shared
// by the orchestrator's components.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxMessageContentBytes caps a single user utterance (16KB).
const MaxMessageContentBytes = 16 * 1024

var turnValidate *validator.Validate

func init() {
	turnValidate = validator.New()
	if err := turnValidate.RegisterValidation("maxbytes", validateMaxBytes); err != nil {
		panic(fmt.Sprintf("failed to register maxbytes validator: %v", err))
	}
}

// validateMaxBytes enforces a byte-length limit on string fields.
// The limit is bytes, not runes, since the cap exists to bound payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// Message is a single role-tagged entry in a conversation history.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant tool"`
	Content string `json:"content" validate:"required"`
}

// TurnRequest is the payload for POST /v1/chat/message.
//
// SessionID is optional; a fresh session is created when it is absent.
// Context entries are merged into the session context before the turn
// runs, which lets callers pre-seed values such as a preferred language.
type TurnRequest struct {
	SessionID string         `json:"session_id" validate:"omitempty,max=128"`
	Message   string         `json:"message" validate:"required,maxbytes"`
	Context   map[string]any `json:"context,omitempty"`
}

// EnsureDefaults fills derivable fields before validation.
func (r *TurnRequest) EnsureDefaults() {
	if r.SessionID == "" {
		r.SessionID = uuid.NewString()
	}
}

// Validate checks the request against its declared constraints.
func (r *TurnRequest) Validate() error {
	if err := turnValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid turn request: %w", err)
	}
	return nil
}

// ToolCallRecord captures one tool invocation inside a turn's trace.
type ToolCallRecord struct {
	Tool        string `json:"tool"`
	Input       any    `json:"input,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// TurnResponse is the externally visible result of one turn.
//
// Response is always non-empty user-appropriate prose, even when the
// turn degraded internally. Intent and Flow are derived from the
// classifier's tool call, not from the final reply text.
type TurnResponse struct {
	ResponseID       string                `json:"response_id"`
	SessionID        string                `json:"session_id"`
	Response         string                `json:"response"`
	Intent           string                `json:"intent"`
	Flow             string                `json:"flow"`
	ClassifierOutput *IntentClassification `json:"classifier_output,omitempty"`
	ToolCalls        []ToolCallRecord      `json:"tool_calls,omitempty"`
	History          []Message             `json:"history,omitempty"`
	Trace            map[string]any        `json:"trace,omitempty"`
	Timestamp        int64                 `json:"timestamp"`
}

// NewTurnResponse stamps identity and timing fields onto a turn result.
func NewTurnResponse(sessionID, response string) *TurnResponse {
	return &TurnResponse{
		ResponseID: uuid.NewString(),
		SessionID:  sessionID,
		Response:   response,
		Intent:     IntentUnknown,
		Flow:       FlowUnknown,
		Timestamp:  time.Now().UnixMilli(),
	}
}
