// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTurnRequest_EnsureDefaults verifies that a missing session id is
// replaced with a generated one and a provided id is preserved.
func TestTurnRequest_EnsureDefaults(t *testing.T) {
	req := TurnRequest{Message: "hello"}
	req.EnsureDefaults()
	assert.NotEmpty(t, req.SessionID)

	req2 := TurnRequest{SessionID: "sess-1", Message: "hello"}
	req2.EnsureDefaults()
	assert.Equal(t, "sess-1", req2.SessionID)
}

// TestTurnRequest_Validate verifies that an empty message and an
// oversized message are both rejected.
func TestTurnRequest_Validate(t *testing.T) {
	req := TurnRequest{SessionID: "sess-1"}
	require.Error(t, req.Validate())

	req = TurnRequest{SessionID: "sess-1", Message: strings.Repeat("x", MaxMessageContentBytes+1)}
	require.Error(t, req.Validate())

	req = TurnRequest{SessionID: "sess-1", Message: "2 kg of tomatoes please"}
	require.NoError(t, req.Validate())
}

// TestSessionState_AppendHistory verifies that history is trimmed to the
// newest MaxHistoryMessages entries.
func TestSessionState_AppendHistory(t *testing.T) {
	s := NewSessionState("sess-1", time.Now())
	for i := 0; i < MaxHistoryMessages+6; i++ {
		s.AppendHistory(Message{Role: "user", Content: "m"})
	}
	assert.Len(t, s.History, MaxHistoryMessages)
}

// TestSessionState_MergeContext verifies that merging augments the
// context without dropping existing keys.
func TestSessionState_MergeContext(t *testing.T) {
	s := NewSessionState("sess-1", time.Now())
	s.Context["supplier_id"] = "sup-1"
	s.MergeContext(map[string]any{"current_intent": "intent.customer.place_order"})

	assert.Equal(t, "sup-1", s.ContextString("supplier_id"))
	assert.Equal(t, "intent.customer.place_order", s.ContextString("current_intent"))
}

// TestDataRequest_Validate verifies entity and operation checks at the
// tool boundary.
func TestDataRequest_Validate(t *testing.T) {
	valid := DataRequest{Entity: EntityProducts, Op: OpList}
	require.NoError(t, valid.Validate())

	tests := []DataRequest{
		{Entity: "widgets", Op: OpList},
		{Entity: EntityUsers, Op: "upsert"},
		{Entity: EntityUsers, Op: OpGet},
		{Entity: EntityUsers, Op: OpCreate},
		{Entity: EntityUsers, Op: OpUpdate, ID: "u1"},
	}
	for _, tc := range tests {
		assert.Error(t, tc.Validate(), "entity=%s op=%s", tc.Entity, tc.Op)
	}
}

// TestUnknownClassification verifies the degraded classification shape.
func TestUnknownClassification(t *testing.T) {
	c := UnknownClassification("LLM classification error.")
	assert.Equal(t, IntentUnknown, c.Intent)
	assert.Equal(t, FlowUnknown, c.Flow)
	assert.Zero(t, c.Confidence)
	assert.NotNil(t, c.FilledSlots)
	assert.Equal(t, "LLM classification error.", c.Rationale)
}
