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

// IntentUnknown is the classification used whenever no supported intent
// reasonably matches or the classifier degrades.
const IntentUnknown = "intent.unknown"

// Flow identifiers partition which handler set owns an intent.
const (
	FlowCustomer   = "customer"
	FlowSupplier   = "supplier"
	FlowOnboarding = "onboarding"
	FlowUnknown    = "unknown"
)

// ValidFlow reports whether f is one of the recognized flow values.
func ValidFlow(f string) bool {
	switch f {
	case FlowCustomer, FlowSupplier, FlowOnboarding, FlowUnknown:
		return true
	}
	return false
}

// IntentDefinition describes one supported intent: its owning flow, the
// slots a handler needs before acting, and the tools it usually calls.
// Definitions are immutable and loaded once at startup.
type IntentDefinition struct {
	Flow           string   `json:"flow"`
	Description    string   `json:"description"`
	RequiredSlots  []string `json:"required_slots"`
	OptionalSlots  []string `json:"optional_slots"`
	SuggestedTools []string `json:"suggested_tools"`
}

// IntentClassification is the structured result of classifying one
// utterance. MissingSlots is always a subset of the intent's declared
// required slots.
type IntentClassification struct {
	Intent         string         `json:"intent"`
	Flow           string         `json:"flow"`
	Confidence     float64        `json:"confidence"`
	FilledSlots    map[string]any `json:"filled_slots"`
	MissingSlots   []string       `json:"missing_slots"`
	Rationale      string         `json:"rationale,omitempty"`
	SuggestedTools []string       `json:"suggested_tools,omitempty"`
}

// UnknownClassification builds the degraded classification used for
// every classifier failure mode. The rationale describes what failed.
func UnknownClassification(rationale string) IntentClassification {
	return IntentClassification{
		Intent:       IntentUnknown,
		Flow:         FlowUnknown,
		Confidence:   0.0,
		FilledSlots:  map[string]any{},
		MissingSlots: []string{},
		Rationale:    rationale,
	}
}
