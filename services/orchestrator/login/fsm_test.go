// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package login

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
)

// fakeUsers resolves one known identity.
type fakeUsers struct {
	user *store.User
}

func (f *fakeUsers) FindUserByIdentity(_ context.Context, name, phone, role string) (*store.User, error) {
	if f.user != nil && f.user.Phone == phone && f.user.Role == role {
		return f.user, nil
	}
	return nil, fmt.Errorf("user %q: %w", name, store.ErrNotFound)
}

func newTestSession() *datatypes.SessionState {
	return datatypes.NewSessionState("sess-1", time.Now())
}

// TestFSM_NewCustomerPath verifies the role → new-account path: the
// session authenticates immediately with has_account=false.
func TestFSM_NewCustomerPath(t *testing.T) {
	f := NewFSM(&fakeUsers{}, nil, nil)
	s := newTestSession()

	reply, handled := f.HandleTurn(context.Background(), s, "hi there")
	require.True(t, handled)
	assert.Equal(t, promptRole, reply)

	reply, handled = f.HandleTurn(context.Background(), s, "I'm a customer")
	require.True(t, handled)
	assert.Equal(t, promptAccountStatus, reply)
	assert.Equal(t, datatypes.RoleCustomer, s.UserRole)

	reply, handled = f.HandleTurn(context.Background(), s, "not yet, first time")
	require.True(t, handled)
	assert.Equal(t, promptNewCustomer, reply)
	assert.Equal(t, datatypes.StageAuthenticated, s.Stage)
	require.NotNil(t, s.HasAccount)
	assert.False(t, *s.HasAccount)

	// Authenticated sessions are no longer the FSM's business.
	_, handled = f.HandleTurn(context.Background(), s, "2 kg mango please")
	assert.False(t, handled)
}

// TestFSM_ExistingSupplierLogin verifies the full verification path and
// that the supplier dashboard is appended on success.
func TestFSM_ExistingSupplierLogin(t *testing.T) {
	supplier := &store.User{UserID: "sup-1", Name: "Abebe Kebede", Phone: "251911223344", Role: datatypes.RoleSupplier}
	dashboard := func(_ context.Context, supplierID string) string {
		return "dashboard for " + supplierID
	}
	f := NewFSM(&fakeUsers{user: supplier}, dashboard, nil)
	s := newTestSession()

	_, _ = f.HandleTurn(context.Background(), s, "I sell vegetables")
	assert.Equal(t, datatypes.RoleSupplier, s.UserRole)

	reply, _ := f.HandleTurn(context.Background(), s, "yes I already have an account")
	assert.Equal(t, promptName, reply)

	reply, _ = f.HandleTurn(context.Background(), s, "Abebe Kebede")
	assert.Contains(t, reply, "Abebe Kebede")
	assert.Equal(t, datatypes.StageAwaitPhone, s.Stage)

	reply, _ = f.HandleTurn(context.Background(), s, "+251 91 122 3344")
	assert.Contains(t, reply, "Welcome back, Abebe Kebede!")
	assert.Contains(t, reply, "dashboard for sup-1")
	assert.Equal(t, datatypes.StageAuthenticated, s.Stage)
	assert.Equal(t, "sup-1", s.UserID)
}

// TestFSM_FailedVerificationResets verifies that an unmatched identity
// returns to the account-status stage with name and phone cleared.
func TestFSM_FailedVerificationResets(t *testing.T) {
	f := NewFSM(&fakeUsers{}, nil, nil)
	s := newTestSession()

	_, _ = f.HandleTurn(context.Background(), s, "customer")
	_, _ = f.HandleTurn(context.Background(), s, "I already have one")
	_, _ = f.HandleTurn(context.Background(), s, "Marta")

	reply, _ := f.HandleTurn(context.Background(), s, "0911000000")
	assert.Equal(t, promptNotFound, reply)
	assert.Equal(t, datatypes.StageAwaitAccountStatus, s.Stage)
	assert.Empty(t, s.Name)
	assert.Empty(t, s.Phone)
}

// TestFSM_PhoneValidation verifies that short numbers are rejected
// without a store lookup or stage change.
func TestFSM_PhoneValidation(t *testing.T) {
	f := NewFSM(&fakeUsers{}, nil, nil)
	s := newTestSession()

	_, _ = f.HandleTurn(context.Background(), s, "customer")
	_, _ = f.HandleTurn(context.Background(), s, "yes")
	_, _ = f.HandleTurn(context.Background(), s, "Marta")

	reply, _ := f.HandleTurn(context.Background(), s, "12345")
	assert.Equal(t, promptInvalidPhone, reply)
	assert.Equal(t, datatypes.StageAwaitPhone, s.Stage)
}

// TestFSM_NewBeatsHave verifies that "I don't have one yet" routes to
// registration even though it contains "have".
func TestFSM_NewBeatsHave(t *testing.T) {
	f := NewFSM(&fakeUsers{}, nil, nil)
	s := newTestSession()

	_, _ = f.HandleTurn(context.Background(), s, "supplier")
	reply, _ := f.HandleTurn(context.Background(), s, "I don't have one yet")
	assert.Equal(t, promptNewSupplier, reply)
	require.NotNil(t, s.HasAccount)
	assert.False(t, *s.HasAccount)
}
