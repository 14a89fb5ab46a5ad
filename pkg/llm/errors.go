// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import "fmt"

// CapabilityError represents a failed call against an external capability
// (model, search, fetch). It is transient from the session's point of view:
// the owning agent records it and the orchestration layer decides whether the
// session survives.
type CapabilityError struct {
	Capability string // capability that failed, e.g. "llm", "search", "fetch"
	Operation  string // operation that failed, e.g. "chat", "stream"
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Capability, e.Operation, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// NewCapabilityError creates a new CapabilityError.
func NewCapabilityError(capability, operation, message string, err error) *CapabilityError {
	return &CapabilityError{
		Capability: capability,
		Operation:  operation,
		Message:    message,
		Err:        err,
	}
}
