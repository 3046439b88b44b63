// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools defines the agent's tool surface: typed, auditable
// operations the reasoning loop may invoke. Every tool call flows
// through a Runner so the loop can meter its iteration budget and
// record observability data in one place.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gebeya.orchestrator.tools")

// ErrBudgetExhausted is returned by a Runner when the turn's iteration
// budget is spent. Handlers propagate it unchanged so the loop can
// produce the fixed fallback reply.
var ErrBudgetExhausted = errors.New("turn iteration budget exhausted")

// Tool is one callable capability.
type Tool interface {
	// Name is the stable identifier used in intent definitions and
	// model action steps.
	Name() string

	// Description is the one-line summary shown to the model.
	Description() string

	// Run executes the tool. input is tool-specific (a typed request
	// or a map decoded from model JSON); sessionContext is the live
	// session context map.
	Run(ctx context.Context, input any, sessionContext map[string]any) (any, error)
}

// Runner invokes tools on behalf of flow handlers and the reasoning
// loop. Implementations meter the per-turn iteration budget.
type Runner interface {
	Invoke(ctx context.Context, tool string, input any, sessionContext map[string]any) (any, error)
}

// Registry holds the tool set for a deployment. Built once at startup;
// read-only afterwards.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry from the given tools. Duplicate names
// are an error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r, nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CatalogText renders the tool list for the reasoning prompt.
func (r *Registry) CatalogText() string {
	out := ""
	for _, name := range r.Names() {
		out += fmt.Sprintf("- %s: %s\n", name, r.tools[name].Description())
	}
	return out
}

// decodeInput converts a tool input (typed value or map from model
// JSON) into the tool's request type via a JSON round trip.
func decodeInput(input, out any) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode tool input: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode tool input: %w", err)
	}
	return nil
}

// toRecord flattens a typed store record into a generic map.
func toRecord(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// toRecords flattens a slice of typed records.
func toRecords[T any](items []T) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(items))
	for i := range items {
		rec, err := toRecord(items[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
