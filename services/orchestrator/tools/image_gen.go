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
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
)

// ImageGenInput is the request shape for the image generator tool.
type ImageGenInput struct {
	ProductName string `json:"product_name"`
	Style       string `json:"style,omitempty"`
}

// ImageGenTool generates marketing images for supplier products via
// the OpenAI image API. A nil client means image generation is not
// configured for this deployment.
type ImageGenTool struct {
	client *openai.Client
}

// NewImageGenTool wraps an OpenAI client, which may be nil.
func NewImageGenTool(client *openai.Client) *ImageGenTool {
	return &ImageGenTool{client: client}
}

func (t *ImageGenTool) Name() string { return "image_generator" }

func (t *ImageGenTool) Description() string {
	return "Generate a marketing image for a product listing. Input: {product_name, style}."
}

// Run implements Tool.
func (t *ImageGenTool) Run(ctx context.Context, input any, _ map[string]any) (any, error) {
	ctx, span := tracer.Start(ctx, "ImageGenTool.Run")
	defer span.End()

	var req ImageGenInput
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.ProductName == "" {
		return nil, fmt.Errorf("image_generator requires a product_name")
	}
	if t.client == nil {
		return nil, &datatypes.CollaboratorUnavailableError{
			Service: "openai",
			Message: "image generation is not configured",
		}
	}

	style := req.Style
	if style == "" {
		style = "bright market stall photography"
	}
	prompt := fmt.Sprintf(
		"A fresh, appetizing photo of %s for an Ethiopian online produce marketplace, %s, clean background, no text.",
		req.ProductName, style)

	resp, err := t.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, &datatypes.CollaboratorUnavailableError{
			Service: "openai",
			Message: "image generation failed",
			Err:     err,
		}
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image generation returned no images")
	}
	return map[string]any{"image_url": resp.Data[0].URL}, nil
}
