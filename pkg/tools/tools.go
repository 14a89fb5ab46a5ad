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

// Package tools defines the tool contract sub-researchers execute through,
// the registry that dispatches calls, and the built-in research tools:
// web search, page fetch, document reading, CSV analysis, and reflection.
//
// Tool failures are ordinary errors; agents stringify them into the
// conversation ("Error: ...") so the model can route around a broken tool
// instead of the whole run aborting.
package tools

import (
	"context"
	"fmt"
)

// Tool is a capability an agent can invoke by name with JSON arguments.
type Tool interface {
	// Name is the identifier used in tool-call markup.
	Name() string

	// Description tells the model what the tool does and documents the
	// expected arguments. It is rendered into agent prompts.
	Description() string

	// Execute runs the tool. The returned string is fed back to the model
	// verbatim.
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolExecutionError describes a tool failure. Agents surface it to the
// model as a result string rather than aborting the research loop.
type ToolExecutionError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ToolExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Tool, e.Message)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// NewToolExecutionError creates a tool execution error.
func NewToolExecutionError(tool, message string, err error) *ToolExecutionError {
	return &ToolExecutionError{
		Tool:    tool,
		Message: message,
		Err:     err,
	}
}
