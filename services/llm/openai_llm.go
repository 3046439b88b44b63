// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/sashabaranov/go-openai"
)

const (
	openaiMaxRetries = 2
	openaiRetryDelay = 500 * time.Millisecond
)

type OpenAIClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL") // e.g., "gpt-4o"
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from container secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	systemPrompt := os.Getenv("SYSTEM_ROLE_PROMPT_PERSONA")
	if systemPrompt == "" {
		systemPrompt = "You are GebeyaKart, a helpful assistant for a fresh produce marketplace."
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client:       openai.NewClient(apiKey),
		model:        model,
		systemPrompt: systemPrompt,
	}, nil
}

// WithSystemPrompt returns a copy of the client bound to a different
// system prompt. The receiver is not modified.
func (o *OpenAIClient) WithSystemPrompt(prompt string) LLMClient {
	clone := *o
	clone.systemPrompt = prompt
	return &clone
}

// Complete implements the LLMClient interface.
//
// Transient failures (429, 5xx, transport errors) are retried with
// exponential backoff; a final failure is reported as a collaborator
// outage so the API boundary can answer 503.
func (o *OpenAIClient) Complete(ctx context.Context, prompt string,
	history []datatypes.Message, params GenerationParams) (string, error) {

	slog.Debug("Generating text via OpenAI", "model", o.model)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if o.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt})
	}
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	var lastErr error
	retryDelay := openaiRetryDelay
	for attempt := 0; attempt <= openaiMaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying OpenAI call", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if isRetryableOpenAIError(err) {
				continue
			}
			slog.Error("OpenAI API call failed", "error", err)
			return "", &datatypes.CollaboratorUnavailableError{
				Service: "openai", Message: "OpenAI API call failed", Err: err}
		}
		if len(resp.Choices) == 0 {
			slog.Warn("OpenAI returned no choices or empty content")
			return "", fmt.Errorf("OpenAI returned no choices")
		}
		slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
		return resp.Choices[0].Message.Content, nil
	}

	slog.Error("OpenAI API call failed after retries", "error", lastErr)
	return "", &datatypes.CollaboratorUnavailableError{
		Service: "openai", Message: "OpenAI API call failed after retries", Err: lastErr}
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// Transport-level failures are worth one more try.
	return true
}

var _ LLMClient = (*OpenAIClient)(nil)
