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
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
)

// DateResolverInput is the request shape for the date resolver tool.
type DateResolverInput struct {
	Text string `json:"text"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var inDaysRe = regexp.MustCompile(`^in (\d{1,3}) days?$`)

// DateResolverTool converts natural-language dates ("tomorrow", "next
// friday", "in 3 days") to calendar dates. Common phrases resolve
// deterministically; anything else is delegated to the LLM. Now is
// injectable for tests.
type DateResolverTool struct {
	llm llm.LLMClient
	Now func() time.Time
}

// NewDateResolverTool wraps an LLM client for the slow path.
func NewDateResolverTool(client llm.LLMClient) *DateResolverTool {
	return &DateResolverTool{llm: client, Now: time.Now}
}

func (t *DateResolverTool) Name() string { return "date_resolver" }

func (t *DateResolverTool) Description() string {
	return "Resolve a natural-language date phrase to a YYYY-MM-DD calendar date. Input: {text}."
}

// Run implements Tool.
func (t *DateResolverTool) Run(ctx context.Context, input any, _ map[string]any) (any, error) {
	var req DateResolverInput
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	date, err := t.Resolve(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	return map[string]any{"date": date}, nil
}

// Resolve returns the date in store.DateLayout.
func (t *DateResolverTool) Resolve(ctx context.Context, text string) (string, error) {
	phrase := strings.ToLower(strings.TrimSpace(text))
	if phrase == "" {
		return "", fmt.Errorf("empty date phrase")
	}
	now := t.Now()

	if parsed, err := time.Parse(store.DateLayout, phrase); err == nil {
		return parsed.Format(store.DateLayout), nil
	}

	switch phrase {
	case "today", "now", "asap", "as soon as possible":
		return now.Format(store.DateLayout), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(store.DateLayout), nil
	case "day after tomorrow":
		return now.AddDate(0, 0, 2).Format(store.DateLayout), nil
	case "next week":
		return now.AddDate(0, 0, 7).Format(store.DateLayout), nil
	}

	if m := inDaysRe.FindStringSubmatch(phrase); m != nil {
		days, _ := strconv.Atoi(m[1])
		return now.AddDate(0, 0, days).Format(store.DateLayout), nil
	}

	dayName := strings.TrimPrefix(phrase, "next ")
	dayName = strings.TrimPrefix(dayName, "on ")
	if wd, ok := weekdays[dayName]; ok {
		ahead := (int(wd) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return now.AddDate(0, 0, ahead).Format(store.DateLayout), nil
	}

	return t.resolveWithLLM(ctx, phrase, now)
}

func (t *DateResolverTool) resolveWithLLM(ctx context.Context, phrase string, now time.Time) (string, error) {
	if t.llm == nil {
		return "", fmt.Errorf("cannot resolve date phrase %q", phrase)
	}
	prompt := fmt.Sprintf(
		"Today is %s (%s). Convert this phrase to a calendar date: %q. Respond with only the date in YYYY-MM-DD format.",
		now.Format(store.DateLayout), now.Weekday(), phrase)

	raw, err := t.llm.Complete(ctx, prompt, nil, llm.GenerationParams{})
	if err != nil {
		return "", fmt.Errorf("resolve date phrase %q: %w", phrase, err)
	}
	candidate := strings.TrimSpace(raw)
	parsed, err := time.Parse(store.DateLayout, candidate)
	if err != nil {
		return "", fmt.Errorf("date phrase %q resolved to unparseable %q", phrase, candidate)
	}
	return parsed.Format(store.DateLayout), nil
}
