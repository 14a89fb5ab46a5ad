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

// Package agents provides the research agents: the ReAct sub-researcher that
// does the actual searching, the supervisor that coordinates sub-researchers
// through the diffusion loop, the analyzer that cross-validates gathered
// facts, and the synthesizer that writes the final report.
package agents

import "context"

// ToolExecutor is the slice of the tool registry agents depend on.
// *tools.Registry satisfies it.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) (string, error)
	ToolNames() []string
	RenderCatalog() string
}

// truncateForLog shortens a string for event payloads and tool results.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
