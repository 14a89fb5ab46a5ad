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

package tools

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ThinkTool provides strategic reflection capability for agents. It is a
// no-op tool that simply acknowledges the reflection; the content is
// already in the conversation for the model to build on.
type ThinkTool struct{}

var _ Tool = (*ThinkTool)(nil)

type thinkArgs struct {
	Reflection string `json:"reflection" jsonschema:"description=Your detailed reflection on findings and next steps" mapstructure:"reflection"`
}

func (t *ThinkTool) Name() string {
	return "think"
}

func (t *ThinkTool) Description() string {
	return `Strategic reflection on research progress. Use after each search to analyze results and plan next steps.
Args: {"reflection": "Your detailed reflection on findings, gaps, and next steps"}`
}

// ArgsSchema publishes the argument schema for prompt catalogs.
func (t *ThinkTool) ArgsSchema() map[string]any {
	return mustSchema[thinkArgs]()
}

func (t *ThinkTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var params thinkArgs
	if err := mapstructure.Decode(args, &params); err != nil || params.Reflection == "" {
		return "Reflection recorded.", nil
	}
	return fmt.Sprintf("Reflection recorded: %s", truncateString(params.Reflection, 100)), nil
}
