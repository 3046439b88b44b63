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

import "time"

// Stage is the login/onboarding state of a session. The classifier never
// runs before StageAuthenticated, and StageAuthenticated is sticky.
type Stage string

const (
	StageAwaitRole          Stage = "await_role"
	StageAwaitAccountStatus Stage = "await_account_status"
	StageAwaitName          Stage = "await_name"
	StageAwaitPhone         Stage = "await_phone"
	StageAuthenticated      Stage = "authenticated"
)

// User roles recognized by the onboarding machine.
const (
	RoleCustomer = "customer"
	RoleSupplier = "supplier"
)

// MaxHistoryMessages caps the per-session conversation history.
const MaxHistoryMessages = 20

// SessionState is the single mutable record for one conversation.
//
// It is owned by the session store and must only be mutated under the
// store's per-session lock. Context is an open key/value bag merged into
// every downstream tool call; handlers augment it but never replace it
// wholesale, since a later tool call in the same turn may depend on a
// value set earlier in the turn.
type SessionState struct {
	SessionID    string         `json:"session_id"`
	Stage        Stage          `json:"stage"`
	UserRole     string         `json:"user_role,omitempty"`
	HasAccount   *bool          `json:"has_account,omitempty"`
	Name         string         `json:"name,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	Context      map[string]any `json:"context"`
	History      []Message      `json:"history"`
	SummarySent  bool           `json:"summary_sent"`
	CreatedAt    int64          `json:"created_at"`
	LastActivity int64          `json:"last_activity"`
}

// NewSessionState returns a fresh session at the start of onboarding.
func NewSessionState(sessionID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:    sessionID,
		Stage:        StageAwaitRole,
		Context:      map[string]any{},
		History:      []Message{},
		CreatedAt:    now.UnixMilli(),
		LastActivity: now.UnixMilli(),
	}
}

// Touch records activity for TTL-based eviction.
func (s *SessionState) Touch(now time.Time) {
	s.LastActivity = now.UnixMilli()
}

// AppendHistory appends a message, trimming the history to the newest
// MaxHistoryMessages entries.
func (s *SessionState) AppendHistory(msg Message) {
	s.History = append(s.History, msg)
	if len(s.History) > MaxHistoryMessages {
		s.History = s.History[len(s.History)-MaxHistoryMessages:]
	}
}

// RecentHistory returns at most n of the newest history entries.
func (s *SessionState) RecentHistory(n int) []Message {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// MergeContext copies entries into the session context without dropping
// existing keys.
func (s *SessionState) MergeContext(values map[string]any) {
	if s.Context == nil {
		s.Context = map[string]any{}
	}
	for k, v := range values {
		s.Context[k] = v
	}
}

// ContextString reads a string-valued context entry.
func (s *SessionState) ContextString(key string) string {
	if v, ok := s.Context[key].(string); ok {
		return v
	}
	return ""
}

// PendingProduct returns the in-progress supplier listing record, if any.
// The map is shared, not copied; callers mutate it in place.
func (s *SessionState) PendingProduct() map[string]any {
	if v, ok := s.Context["pending_product"].(map[string]any); ok {
		return v
	}
	return nil
}
