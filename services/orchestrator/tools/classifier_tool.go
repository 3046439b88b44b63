// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/intent"
)

// ClassifierInput is the request shape for the intent classifier tool.
type ClassifierInput struct {
	Utterance string              `json:"utterance"`
	History   []datatypes.Message `json:"history,omitempty"`
}

// ClassifierTool exposes the intent classifier as the mandatory first
// tool call of every authenticated turn. It never returns an error:
// classifier failures surface as intent.unknown classifications.
type ClassifierTool struct {
	classifier *intent.Classifier
}

// NewClassifierTool wraps a classifier.
func NewClassifierTool(classifier *intent.Classifier) *ClassifierTool {
	return &ClassifierTool{classifier: classifier}
}

func (t *ClassifierTool) Name() string { return "intent_classifier" }

func (t *ClassifierTool) Description() string {
	return "Classify the user's utterance into a marketplace intent with filled and missing slots. Input: {utterance, history}."
}

// Run implements Tool.
func (t *ClassifierTool) Run(ctx context.Context, input any, sessionContext map[string]any) (any, error) {
	var req ClassifierInput
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	return t.classifier.Classify(ctx, req.Utterance, req.History, sessionContext), nil
}
