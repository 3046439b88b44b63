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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/observability"
)

var tracer = otel.Tracer("gebeya.orchestrator.intent")

// maxHistoryForPrompt caps how many recent messages are quoted in the
// classifier prompt.
const maxHistoryForPrompt = 6

// classifierPreamble is the static part of the system prompt; the
// intent catalog is appended at construction.
const classifierPreamble = `You are the intent classifier for GebeyaKart, a fresh produce marketplace assistant in Ethiopia.
Classify the user's current utterance into exactly one intent from the catalog below.

Rules:
- If the utterance is a bare confirmation ("okay", "yes", "sure", "go ahead"), infer the intent from the conversation context: a supplier mid-onboarding means intent.supplier.register, a customer mid-onboarding means intent.customer.register, an order awaiting confirmation means intent.customer.place_order, and a proposed flash sale means intent.supplier.accept_flash_sale.
- Extract order items as structured objects. "I want 2 kg mango and 1 kg onions" yields order_items: [{"product_name": "mango", "quantity": 2, "unit": "kg"}, {"product_name": "onion", "quantity": 1, "unit": "kg"}].
- List every required slot you could not fill under missing_slots.
- If no intent fits with confidence of at least 0.4, use intent "intent.unknown" with flow "unknown".

Intent catalog:
%s
Respond with a single JSON object and nothing else, using exactly these keys:
{"intent": "...", "flow": "...", "confidence": 0.0, "filled_slots": {}, "missing_slots": [], "rationale": "under 25 words"}`

// Classifier turns utterances into IntentClassification values. It
// never returns an error: every failure degrades to intent.unknown with
// a rationale describing what went wrong.
type Classifier struct {
	llm    llm.LLMClient
	logger *slog.Logger
}

// NewClassifier builds a classifier around an LLM client. The client is
// cloned with the classifier system prompt, so the caller's client is
// untouched.
func NewClassifier(client llm.LLMClient, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		llm:    client.WithSystemPrompt(fmt.Sprintf(classifierPreamble, CatalogText())),
		logger: logger,
	}
}

// classifierPayload is the JSON shape expected from the model.
type classifierPayload struct {
	Intent       string         `json:"intent"`
	Flow         string         `json:"flow"`
	Confidence   float64        `json:"confidence"`
	FilledSlots  map[string]any `json:"filled_slots"`
	MissingSlots []string       `json:"missing_slots"`
	Rationale    string         `json:"rationale"`
}

// Classify classifies one utterance in the context of recent history
// and the session context map.
func (c *Classifier) Classify(ctx context.Context, utterance string, history []datatypes.Message, sessionContext map[string]any) *datatypes.IntentClassification {
	ctx, span := tracer.Start(ctx, "Classifier.Classify")
	defer span.End()

	result := c.classify(ctx, utterance, history, sessionContext)
	span.SetAttributes(
		attribute.String("intent", result.Intent),
		attribute.Float64("confidence", result.Confidence),
	)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordClassification(result.Flow, result.Intent == datatypes.IntentUnknown)
	}
	return result
}

func (c *Classifier) classify(ctx context.Context, utterance string, history []datatypes.Message, sessionContext map[string]any) *datatypes.IntentClassification {
	if strings.TrimSpace(utterance) == "" {
		u := datatypes.UnknownClassification("No user utterance provided.")
		return &u
	}

	raw, err := c.llm.Complete(ctx, buildUserPrompt(utterance, history, sessionContext), nil, llm.GenerationParams{})
	if err != nil {
		c.logger.Warn("classifier LLM call failed", slog.String("error", err.Error()))
		u := datatypes.UnknownClassification("LLM classification error.")
		return c.confirmFallback(utterance, sessionContext, &u)
	}
	if strings.TrimSpace(raw) == "" {
		u := datatypes.UnknownClassification("Empty response from classifier.")
		return c.confirmFallback(utterance, sessionContext, &u)
	}

	jsonText, ok := extractJSON(raw)
	if !ok {
		u := datatypes.UnknownClassification("Classifier response was not valid JSON.")
		return c.confirmFallback(utterance, sessionContext, &u)
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		u := datatypes.UnknownClassification("Classifier JSON parsing error.")
		return c.confirmFallback(utterance, sessionContext, &u)
	}

	result, ok := resolvePayload(payload)
	if !ok {
		u := datatypes.UnknownClassification("Classifier payload validation error.")
		return c.confirmFallback(utterance, sessionContext, &u)
	}
	if result.Intent == datatypes.IntentUnknown {
		return c.confirmFallback(utterance, sessionContext, result)
	}
	return result
}

// resolvePayload validates the model payload against the registry and
// fills in the derived fields.
func resolvePayload(p classifierPayload) (*datatypes.IntentClassification, bool) {
	if p.Intent == "" || p.Confidence < 0 || p.Confidence > 1 {
		return nil, false
	}
	if p.Intent == datatypes.IntentUnknown || p.Confidence < 0.4 {
		u := datatypes.UnknownClassification(p.Rationale)
		if u.Rationale == "" {
			u.Rationale = "No intent matched with sufficient confidence."
		}
		return &u, true
	}
	def, ok := Lookup(p.Intent)
	if !ok {
		return nil, false
	}

	filled := p.FilledSlots
	if filled == nil {
		filled = map[string]any{}
	}
	flow := p.Flow
	if !datatypes.ValidFlow(flow) {
		flow = def.Flow
	}

	// Missing slots are derived from the registry, not trusted from the
	// model: a required slot is missing unless it has a truthy value.
	var missing []string
	for _, slot := range def.RequiredSlots {
		if !truthy(filled[slot]) {
			missing = append(missing, slot)
		}
	}

	return &datatypes.IntentClassification{
		Intent:         p.Intent,
		Flow:           flow,
		Confidence:     p.Confidence,
		FilledSlots:    filled,
		MissingSlots:   missing,
		Rationale:      p.Rationale,
		SuggestedTools: def.SuggestedTools,
	}, true
}

// confirmFallback reroutes a bare confirmation to the session's current
// intent when the classifier came back unknown. This keeps multi-turn
// slot filling alive when the model degrades.
func (c *Classifier) confirmFallback(utterance string, sessionContext map[string]any, degraded *datatypes.IntentClassification) *datatypes.IntentClassification {
	if !IsConfirmation(utterance) || sessionContext == nil {
		return degraded
	}
	current, _ := sessionContext["current_intent"].(string)
	def, ok := Lookup(current)
	if !ok {
		return degraded
	}
	return &datatypes.IntentClassification{
		Intent:         current,
		Flow:           def.Flow,
		Confidence:     0.5,
		FilledSlots:    map[string]any{},
		MissingSlots:   nil,
		Rationale:      "Bare confirmation resolved from session context.",
		SuggestedTools: def.SuggestedTools,
	}
}

// buildUserPrompt renders the per-turn prompt: recent history, the
// current utterance, and the session context as JSON.
func buildUserPrompt(utterance string, history []datatypes.Message, sessionContext map[string]any) string {
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	start := 0
	if len(history) > maxHistoryForPrompt {
		start = len(history) - maxHistoryForPrompt
	}
	for _, msg := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&b, "Current utterance: %s\n", utterance)

	ctxJSON := "null"
	if len(sessionContext) > 0 {
		if data, err := json.Marshal(sessionContext); err == nil {
			ctxJSON = string(data)
		}
	}
	fmt.Fprintf(&b, "Session context: %s\n", ctxJSON)
	b.WriteString("Respond with JSON only.")
	return b.String()
}

// extractJSON returns the first balanced top-level JSON object in text.
// The scan is string- and escape-aware, so fenced or chatty responses
// around the object are tolerated and braces inside strings never
// unbalance the count.
func extractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// truthy reports whether a slot value counts as filled: non-empty
// strings, any number, booleans, and non-empty collections.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	case bool:
		return true
	case float64:
		return true
	default:
		return true
	}
}
