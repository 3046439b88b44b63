// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

// Step is one parsed reasoning step from the model. Exactly one of
// FinalAnswer or Action is set.
type Step struct {
	Thought     string
	Action      string
	ActionInput map[string]any
	FinalAnswer string
}

// ErrMalformedStep reports model output that contains neither a final
// answer nor a well-formed action.
var ErrMalformedStep = errors.New("malformed reasoning step")

// ParseStep extracts a reasoning step from raw model output. The
// expected shape is either:
//
//	Thought: <free text>
//	Final Answer: <reply>
//
// or:
//
//	Thought: <free text>
//	Action: <tool name>
//	Action Input: <JSON object>
//
// Markdown fences and surrounding prose are tolerated; a final answer
// wins over an action when both appear.
func ParseStep(text string) (*Step, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMalformedStep
	}

	step := &Step{}
	step.Thought = fieldAfter(text, "Thought:")

	if answer := fieldAfter(text, "Final Answer:"); answer != "" {
		step.FinalAnswer = answer
		return step, nil
	}

	action := fieldAfter(text, "Action:")
	if action == "" {
		return nil, ErrMalformedStep
	}
	// Models occasionally put the input on the action line.
	if idx := strings.IndexAny(action, "\n{"); idx >= 0 {
		action = action[:idx]
	}
	step.Action = strings.Trim(strings.TrimSpace(action), "`\"'")
	if step.Action == "" {
		return nil, ErrMalformedStep
	}

	raw := extractJSON(text[strings.Index(text, "Action:"):])
	if raw == "" {
		// Truncated JSON is malformed; a missing input block is a legal
		// tool call with an empty object.
		if strings.TrimSpace(fieldAfter(text, "Action Input:")) != "" {
			return nil, ErrMalformedStep
		}
		step.ActionInput = map[string]any{}
		return step, nil
	}
	if err := json.Unmarshal([]byte(raw), &step.ActionInput); err != nil {
		return nil, ErrMalformedStep
	}
	return step, nil
}

// fieldAfter returns the text following the first occurrence of marker,
// up to the next recognized marker line, trimmed.
func fieldAfter(text, marker string) string {
	idx := strings.Index(text, marker)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(marker):]
	for _, stop := range []string{"\nThought:", "\nAction:", "\nAction Input:", "\nFinal Answer:", "\nObservation:"} {
		if stopIdx := strings.Index(rest, stop); stopIdx >= 0 {
			rest = rest[:stopIdx]
		}
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "`"))
}

// extractJSON returns the first balanced JSON object in text, honoring
// strings and escapes, or "" when none exists.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
