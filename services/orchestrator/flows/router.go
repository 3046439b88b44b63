// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flows implements the deterministic conversation handlers for
// every registered intent. A handler owns one intent end to end:
// prompting for missing slots, invoking tools through the metered
// runner, and phrasing the reply. Handlers return errors only for
// infrastructure failures; missing user input is a reply, not an error.
package flows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/intent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

var tracer = otel.Tracer("gebeya.orchestrator.flows")

// Shared reply strings.
const (
	greetingReply = "Hello! Welcome to GebeyaKart, your fresh produce marketplace. Are you a customer looking to place an order, or a supplier managing inventory?"

	unknownReply = "I'm not sure what you mean. Are you a customer looking to place an order, or a supplier managing inventory?"

	confirmationReply = "Great! Could you please provide more details about what you'd like to do?"

	flowErrorReply = "I encountered an issue processing your request. Please try again."
)

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "selam": true,
	"good morning": true, "good afternoon": true, "good evening": true,
}

// Request carries everything a handler needs for one turn.
type Request struct {
	Session        *datatypes.SessionState
	Utterance      string
	Classification *datatypes.IntentClassification

	// Runner meters tool calls against the turn budget.
	Runner tools.Runner
}

// Slot returns a filled slot as a string, or "" when absent.
func (r *Request) Slot(name string) string {
	v := r.Classification.FilledSlots[name]
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	default:
		return ""
	}
}

// SlotNumber returns a filled slot as a float, or 0 when absent.
func (r *Request) SlotNumber(name string) float64 {
	switch val := r.Classification.FilledSlots[name].(type) {
	case float64:
		return val
	case string:
		var f float64
		fmt.Sscanf(strings.TrimSpace(val), "%f", &f)
		return f
	default:
		return 0
	}
}

// HandlerFunc handles one intent.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

// Router maps intents to handlers. The marketplace store backs the
// compound reads (dashboards, insights) that do not fit the generic
// data tool, and the LLM client backs retrieval-augmented answers.
type Router struct {
	handlers map[string]HandlerFunc
	market   *store.Marketplace
	llm      llm.LLMClient
	logger   *slog.Logger
}

// NewRouter builds the full handler table.
func NewRouter(market *store.Marketplace, llmClient llm.LLMClient, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		handlers: make(map[string]HandlerFunc),
		market:   market,
		llm:      llmClient,
		logger:   logger,
	}
	r.registerCustomerHandlers()
	r.registerSupplierHandlers()
	r.registerOnboardingHandlers()
	return r
}

func (r *Router) register(intentName string, h HandlerFunc) {
	r.handlers[intentName] = h
}

// HasHandler reports whether an intent is routed deterministically.
func (r *Router) HasHandler(intentName string) bool {
	_, ok := r.handlers[intentName]
	return ok
}

// Dispatch routes one classified turn. Unknown intents are answered
// directly; handler errors are logged and rephrased unless they are
// infrastructure unavailability, which bubbles for the HTTP layer.
func (r *Router) Dispatch(ctx context.Context, req *Request) (string, error) {
	ctx, span := tracer.Start(ctx, "Router.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("intent", req.Classification.Intent))

	if req.Classification.Intent == datatypes.IntentUnknown {
		return r.handleUnknown(req), nil
	}

	h, ok := r.handlers[req.Classification.Intent]
	if !ok {
		return "", fmt.Errorf("no handler for intent %q", req.Classification.Intent)
	}
	return h(ctx, req)
}

func (r *Router) handleUnknown(req *Request) string {
	lower := strings.ToLower(strings.TrimSpace(strings.TrimRight(req.Utterance, ".!?")))
	if greetings[lower] {
		return greetingReply
	}
	if intent.IsConfirmation(req.Utterance) && len(req.Session.History) > 0 {
		return confirmationReply
	}
	return unknownReply
}

func (r *Router) registerOnboardingHandlers() {
	// Pre-authentication turns are normally absorbed by the login
	// machine; these cover classifier routing for already-authenticated
	// users restating who they are.
	identity := func(reply string) HandlerFunc {
		return func(_ context.Context, _ *Request) (string, error) {
			return reply, nil
		}
	}
	r.register(intent.IntentUserIsCustomer, identity("You're set up as a customer. What would you like to order?"))
	r.register(intent.IntentUserIsSupplier, identity("You're set up as a supplier. You can add products, update stock, or check your orders."))
	r.register(intent.IntentUserHasAccount, identity("You're already signed in. What would you like to do?"))
	r.register(intent.IntentUserNewUser, identity("Let's get you registered. Are you joining as a customer or a supplier?"))
	r.register(intent.IntentUserVerifyAccount, identity("You're already verified for this session. What would you like to do?"))
}

// requireSlots returns a prompt for the first missing slot, or "" when
// all required slots are filled. Single-slot prompting never has side
// effects.
func requireSlots(req *Request, prompts map[string]string) string {
	for _, slot := range req.Classification.MissingSlots {
		if prompt, ok := prompts[slot]; ok {
			return prompt
		}
	}
	if len(req.Classification.MissingSlots) > 0 {
		return fmt.Sprintf("Could you tell me the %s?",
			strings.ReplaceAll(req.Classification.MissingSlots[0], "_", " "))
	}
	return ""
}

// resolveDate runs the date resolver tool, returning "" when the
// phrase cannot be resolved. Best effort only.
func resolveDate(ctx context.Context, runner tools.Runner, sc map[string]any, phrase string) string {
	if strings.TrimSpace(phrase) == "" {
		return ""
	}
	out, err := runner.Invoke(ctx, "date_resolver", tools.DateResolverInput{Text: phrase}, sc)
	if err != nil {
		return ""
	}
	m, _ := out.(map[string]any)
	date, _ := m["date"].(string)
	return date
}

// invokeData runs the database_access tool and unwraps its response.
func invokeData(ctx context.Context, runner tools.Runner, sc map[string]any, req datatypes.DataRequest) (*datatypes.DataResponse, error) {
	out, err := runner.Invoke(ctx, "database_access", req, sc)
	if err != nil {
		return nil, err
	}
	resp, ok := out.(*datatypes.DataResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected database_access result %T", out)
	}
	return resp, nil
}
