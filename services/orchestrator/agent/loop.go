// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs one conversation turn: classify the utterance,
// route it to a deterministic flow handler, and fall back to a bounded
// tool-using reasoning loop for anything the handlers do not cover.
// Every model call and tool call spends one unit of the turn's
// iteration budget, so a turn always terminates.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/flows"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/observability"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

var tracer = otel.Tracer("gebeya.orchestrator.agent")

// DefaultMaxIterations bounds model and tool calls per turn.
const DefaultMaxIterations = 30

const (
	budgetFallbackReply = "I hit my planning limit while working on that. Could you rephrase or simplify your request?"

	errorFallbackReply = "I encountered an issue processing your request. Please try again."

	// recoveryMessage is appended to the scratchpad after a malformed
	// step. One standardized message, one iteration consumed.
	recoveryMessage = "Observation: Your last response was not in the expected format. Reply with either 'Action: <tool>' and 'Action Input: <JSON>' lines, or a 'Final Answer:' line."
)

const reactSystemPrompt = `You are the reasoning engine for GebeyaKart, a fresh produce marketplace assistant in Ethiopia. You answer one user request by thinking step by step and calling tools when you need data.

Available tools:
%s
Respond in exactly this format:

Thought: what you need to find out next
Action: <tool name>
Action Input: <JSON object>

or, when you can answer the user:

Thought: I have what I need
Final Answer: <the reply to show the user>

Rules:
- Never invent data; use tools to look it up.
- Keep the final answer short, friendly, and in plain language.
- Prices are in ETB and payment is always cash on delivery.`

// Loop drives one turn end to end.
type Loop struct {
	registry      *tools.Registry
	router        *flows.Router
	llm           llm.LLMClient
	maxIterations int
	logger        *slog.Logger
}

// NewLoop builds a turn loop. maxIterations <= 0 selects the default.
func NewLoop(registry *tools.Registry, router *flows.Router, llmClient llm.LLMClient, maxIterations int, logger *slog.Logger) *Loop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		registry:      registry,
		router:        router,
		llm:           llmClient,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// turnRunner meters one turn's iteration budget and records every tool
// call for the response trace.
type turnRunner struct {
	registry  *tools.Registry
	remaining int
	calls     []datatypes.ToolCallRecord
}

// consume spends one iteration; model calls go through here too.
func (r *turnRunner) consume() error {
	if r.remaining <= 0 {
		return tools.ErrBudgetExhausted
	}
	r.remaining--
	return nil
}

func (r *turnRunner) Invoke(ctx context.Context, tool string, input any, sessionContext map[string]any) (any, error) {
	if err := r.consume(); err != nil {
		return nil, err
	}
	t, ok := r.registry.Get(tool)
	if !ok {
		return nil, &datatypes.ToolInvocationError{Tool: tool, Input: input, Err: fmt.Errorf("unknown tool")}
	}

	start := time.Now()
	out, err := t.Run(ctx, input, sessionContext)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordToolCall(tool, time.Since(start).Seconds(), err == nil)
	}

	record := datatypes.ToolCallRecord{Tool: tool, Input: input}
	if err != nil {
		record.Observation = "error: " + err.Error()
	} else {
		record.Observation = renderObservation(out)
	}
	r.calls = append(r.calls, record)

	if err != nil {
		if datatypes.IsUnavailable(err) {
			return nil, err
		}
		return nil, &datatypes.ToolInvocationError{Tool: tool, Input: input, Err: err}
	}
	return out, nil
}

// renderObservation flattens a tool result into a bounded string for
// the trace and the reasoning scratchpad.
func renderObservation(out any) string {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("%v", out)
	}
	const maxObservation = 2000
	s := string(data)
	if len(s) > maxObservation {
		s = s[:maxObservation] + "..."
	}
	return s
}

// RunTurn processes one utterance against a session. The session must
// already be past onboarding and held under the store's per-session
// lock. The returned error is non-nil only for collaborator outages the
// HTTP layer should surface as 503; every other failure degrades into
// the response text.
func (l *Loop) RunTurn(ctx context.Context, session *datatypes.SessionState, utterance string) (*datatypes.TurnResponse, error) {
	ctx, span := tracer.Start(ctx, "Loop.RunTurn")
	defer span.End()

	start := time.Now()
	runner := &turnRunner{registry: l.registry, remaining: l.maxIterations}

	classification := l.classify(ctx, runner, session, utterance)
	span.SetAttributes(
		attribute.String("intent", classification.Intent),
		attribute.String("flow", classification.Flow),
	)

	session.AppendHistory(datatypes.Message{Role: "user", Content: utterance})
	l.updateContext(session, utterance, classification)

	reply, status, err := l.answer(ctx, runner, session, utterance, classification)
	if err != nil {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTurn(classification.Flow, observability.TurnStatusUnavailable, time.Since(start).Seconds())
		}
		return nil, err
	}

	session.AppendHistory(datatypes.Message{Role: "assistant", Content: reply})

	resp := datatypes.NewTurnResponse(session.SessionID, reply)
	resp.Intent = classification.Intent
	resp.Flow = classification.Flow
	resp.ClassifierOutput = classification
	resp.ToolCalls = runner.calls
	resp.History = session.History
	resp.Trace = map[string]any{
		"iterations":     l.maxIterations - runner.remaining,
		"max_iterations": l.maxIterations,
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordTurn(classification.Flow, status, time.Since(start).Seconds())
		m.LoopIterations.Observe(float64(l.maxIterations - runner.remaining))
	}
	return resp, nil
}

// classify runs the classifier tool as the turn's first metered call so
// it is always ToolCalls[0] in the trace.
func (l *Loop) classify(ctx context.Context, runner *turnRunner, session *datatypes.SessionState, utterance string) *datatypes.IntentClassification {
	out, err := runner.Invoke(ctx, "intent_classifier", tools.ClassifierInput{
		Utterance: utterance,
		History:   session.RecentHistory(6),
	}, session.Context)
	if err != nil {
		l.logger.Error("classifier invocation failed", "error", err.Error())
		fallback := datatypes.UnknownClassification("Classifier invocation failed.")
		return &fallback
	}
	classification, ok := out.(*datatypes.IntentClassification)
	if !ok {
		fallback := datatypes.UnknownClassification("Classifier returned an unexpected type.")
		return &fallback
	}
	return classification
}

// updateContext folds the classification into the session context.
// current_intent survives an unknown turn so a bare confirmation can
// still resolve against it.
func (l *Loop) updateContext(session *datatypes.SessionState, utterance string, c *datatypes.IntentClassification) {
	values := map[string]any{
		"current_flow":      c.Flow,
		"last_user_message": utterance,
	}
	if c.Intent != datatypes.IntentUnknown {
		values["current_intent"] = c.Intent
	}
	if len(c.FilledSlots) > 0 {
		values["filled_slots"] = c.FilledSlots
	}
	values["missing_slots"] = c.MissingSlots
	session.MergeContext(values)
}

// answer routes the classified turn. Deterministic handlers own every
// registered intent; the reasoning loop covers the rest.
func (l *Loop) answer(ctx context.Context, runner *turnRunner, session *datatypes.SessionState, utterance string, c *datatypes.IntentClassification) (reply, status string, err error) {
	req := &flows.Request{
		Session:        session,
		Utterance:      utterance,
		Classification: c,
		Runner:         runner,
	}

	if c.Intent == datatypes.IntentUnknown || l.router.HasHandler(c.Intent) {
		reply, err = l.router.Dispatch(ctx, req)
	} else {
		reply, err = l.react(ctx, runner, session, utterance)
	}

	switch {
	case err == nil:
		status = observability.TurnStatusOK
		if c.Intent == datatypes.IntentUnknown {
			status = observability.TurnStatusDegraded
		}
		return reply, status, nil
	case errors.Is(err, tools.ErrBudgetExhausted):
		l.logger.Warn("turn budget exhausted", "session_id", session.SessionID, "intent", c.Intent)
		return budgetFallbackReply, observability.TurnStatusDegraded, nil
	case datatypes.IsUnavailable(err):
		return "", "", err
	default:
		l.logger.Error("turn failed", "session_id", session.SessionID, "intent", c.Intent, "error", err.Error())
		return errorFallbackReply, observability.TurnStatusDegraded, nil
	}
}

// react runs the bounded tool-using loop for utterances no handler
// covers. Each model call and each tool call costs one iteration.
func (l *Loop) react(ctx context.Context, runner *turnRunner, session *datatypes.SessionState, utterance string) (string, error) {
	ctx, span := tracer.Start(ctx, "Loop.react")
	defer span.End()

	system := fmt.Sprintf(reactSystemPrompt, l.registry.CatalogText())
	client := l.llm.WithSystemPrompt(system)

	contextJSON, _ := json.Marshal(session.Context)
	var scratchpad strings.Builder
	fmt.Fprintf(&scratchpad, "User request: %s\nSession context: %s\n", utterance, contextJSON)

	for {
		if err := runner.consume(); err != nil {
			return "", err
		}
		text, err := client.Complete(ctx, scratchpad.String(), session.RecentHistory(6), llm.GenerationParams{})
		if err != nil {
			return "", &datatypes.CollaboratorUnavailableError{Service: "llm", Message: "reasoning model call failed", Err: err}
		}

		step, perr := ParseStep(text)
		if perr != nil {
			scratchpad.WriteString("\n" + recoveryMessage + "\n")
			continue
		}
		if step.FinalAnswer != "" {
			return step.FinalAnswer, nil
		}

		out, err := runner.Invoke(ctx, step.Action, step.ActionInput, session.Context)
		observation := ""
		switch {
		case errors.Is(err, tools.ErrBudgetExhausted):
			return "", err
		case datatypes.IsUnavailable(err):
			return "", err
		case err != nil:
			observation = "error: " + err.Error()
		default:
			observation = renderObservation(out)
		}

		inputJSON, _ := json.Marshal(step.ActionInput)
		fmt.Fprintf(&scratchpad, "\nThought: %s\nAction: %s\nAction Input: %s\nObservation: %s\n",
			step.Thought, step.Action, inputJSON, observation)
	}
}
