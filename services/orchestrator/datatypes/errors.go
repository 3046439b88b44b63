// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
)

// CollaboratorUnavailableError reports that an external collaborator
// (LLM backend, vector store, image service) is unreachable. The API
// boundary maps it to a 503 with retry guidance; a turn already in
// flight degrades to an apologetic reply instead.
type CollaboratorUnavailableError struct {
	Service string
	Message string
	Err     error
}

func (e *CollaboratorUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %s", e.Service, e.Message)
}

func (e *CollaboratorUnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a collaborator outage anywhere
// in its chain.
func IsUnavailable(err error) bool {
	var unavailable *CollaboratorUnavailableError
	return errors.As(err, &unavailable)
}

// ToolInvocationError reports a failed tool call, carrying the failing
// operation and parameters for diagnosis. Handlers catch it and convert
// it to an apologetic reply; it never propagates past the turn.
type ToolInvocationError struct {
	Tool  string
	Input any
	Err   error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %s failed: %v (input: %v)", e.Tool, e.Err, e.Input)
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// IsToolInvocation reports whether err is a tool invocation failure.
func IsToolInvocation(err error) bool {
	var invocation *ToolInvocationError
	return errors.As(err, &invocation)
}
