// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package login implements the deterministic pre-authentication state
// machine. Until a session is authenticated, every turn is handled
// here with no LLM involvement: role capture, account status, and
// identity verification against the marketplace store.
package login

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
)

var tracer = otel.Tracer("gebeya.orchestrator.login")

// UserFinder is the slice of the marketplace store the FSM needs.
type UserFinder interface {
	FindUserByIdentity(ctx context.Context, name, phone, role string) (*store.User, error)
}

// DashboardFunc renders the supplier dashboard appended to a successful
// supplier login. Nil disables the dashboard.
type DashboardFunc func(ctx context.Context, supplierID string) string

// Canned prompts for each stage.
const (
	promptRole = "Welcome to GebeyaKart! Are you a customer looking to order fresh produce, or a supplier selling products?"

	promptAccountStatus = "Do you already have an account with us?"

	promptName = "Welcome back! What's the name on your account?"

	promptInvalidPhone = "That doesn't look like a valid phone number. Please share the phone number on your account."

	promptNotFound = "I couldn't find an account matching those details. Do you already have an account with us?"

	promptNewCustomer = "Let's create your account. Please share your name, phone number, and default delivery location."

	promptNewSupplier = "Let's create your supplier account. Please share your business name and phone number."
)

var newAccountKeywords = []string{
	"new", "not yet", "getting started", "don't have", "dont have",
	"first time", "no account", "sign up", "register",
}

var hasAccountKeywords = []string{"have", "existing", "already", "yes"}

// FSM drives the login conversation.
type FSM struct {
	users     UserFinder
	dashboard DashboardFunc
	logger    *slog.Logger
}

// NewFSM builds the login machine.
func NewFSM(users UserFinder, dashboard DashboardFunc, logger *slog.Logger) *FSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSM{users: users, dashboard: dashboard, logger: logger}
}

// HandleTurn processes one utterance for an unauthenticated session.
// It returns handled=false once the session is authenticated, at which
// point the turn belongs to the agent loop.
func (f *FSM) HandleTurn(ctx context.Context, s *datatypes.SessionState, utterance string) (reply string, handled bool) {
	if s.Stage == datatypes.StageAuthenticated {
		return "", false
	}

	ctx, span := tracer.Start(ctx, "FSM.HandleTurn")
	defer span.End()
	span.SetAttributes(attribute.String("stage", string(s.Stage)))

	switch s.Stage {
	case datatypes.StageAwaitRole, "":
		return f.handleRole(s, utterance), true
	case datatypes.StageAwaitAccountStatus:
		return f.handleAccountStatus(s, utterance), true
	case datatypes.StageAwaitName:
		return f.handleName(s, utterance), true
	case datatypes.StageAwaitPhone:
		return f.handlePhone(ctx, s, utterance), true
	default:
		f.logger.Warn("login stage unrecognized, resetting",
			slog.String("session_id", s.SessionID),
			slog.String("stage", string(s.Stage)))
		s.Stage = datatypes.StageAwaitRole
		return promptRole, true
	}
}

func (f *FSM) handleRole(s *datatypes.SessionState, utterance string) string {
	lower := strings.ToLower(utterance)
	switch {
	case strings.Contains(lower, "supplier") || strings.Contains(lower, "sell"):
		s.UserRole = datatypes.RoleSupplier
	case strings.Contains(lower, "customer") || strings.Contains(lower, "buy") || strings.Contains(lower, "order"):
		s.UserRole = datatypes.RoleCustomer
	default:
		s.Stage = datatypes.StageAwaitRole
		return promptRole
	}
	s.Stage = datatypes.StageAwaitAccountStatus
	return promptAccountStatus
}

func (f *FSM) handleAccountStatus(s *datatypes.SessionState, utterance string) string {
	lower := strings.ToLower(utterance)

	// "new" wins over "have": "I don't have one yet" matches both
	// keyword sets.
	for _, kw := range newAccountKeywords {
		if strings.Contains(lower, kw) {
			hasAccount := false
			s.HasAccount = &hasAccount
			s.Stage = datatypes.StageAuthenticated
			s.MergeContext(map[string]any{
				"user": map[string]any{"role": s.UserRole, "status": "new"},
			})
			if s.UserRole == datatypes.RoleSupplier {
				return promptNewSupplier
			}
			return promptNewCustomer
		}
	}
	for _, kw := range hasAccountKeywords {
		if strings.Contains(lower, kw) {
			s.Stage = datatypes.StageAwaitName
			return promptName
		}
	}
	return promptAccountStatus + " (yes or no)"
}

func (f *FSM) handleName(s *datatypes.SessionState, utterance string) string {
	s.Name = strings.TrimSpace(utterance)
	s.Stage = datatypes.StageAwaitPhone
	return fmt.Sprintf("Thanks, %s. What's the phone number on the account?", s.Name)
}

func (f *FSM) handlePhone(ctx context.Context, s *datatypes.SessionState, utterance string) string {
	phone := digitsOf(utterance)
	if len(phone) < 9 {
		return promptInvalidPhone
	}
	s.Phone = phone

	user, err := f.users.FindUserByIdentity(ctx, s.Name, s.Phone, s.UserRole)
	if err != nil {
		f.logger.Info("login identity not verified",
			slog.String("session_id", s.SessionID),
			slog.String("role", s.UserRole))
		s.Stage = datatypes.StageAwaitAccountStatus
		s.Name = ""
		s.Phone = ""
		return promptNotFound
	}

	hasAccount := true
	s.HasAccount = &hasAccount
	s.UserID = user.UserID
	s.Stage = datatypes.StageAuthenticated
	s.MergeContext(map[string]any{
		"user": map[string]any{
			"user_id":          user.UserID,
			"name":             user.Name,
			"role":             user.Role,
			"default_location": user.DefaultLocation,
		},
	})

	reply := fmt.Sprintf("Welcome back, %s!", user.Name)
	if s.UserRole == datatypes.RoleSupplier && f.dashboard != nil {
		if dash := f.dashboard(ctx, user.UserID); dash != "" {
			reply += "\n\n" + dash
		}
	} else if s.UserRole == datatypes.RoleCustomer {
		reply += " What would you like to order today?"
	}
	return reply
}

// digitsOf strips everything but digits, so "+251 91 122 3344" and
// "0911-22-33-44" both normalize cleanly.
func digitsOf(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
