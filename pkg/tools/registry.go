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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/argus/pkg/observability"
	"github.com/kadirpekel/argus/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Registry holds the tools available to one agent. Listing is sorted so
// prompts built from the registry are stable across runs.
type Registry struct {
	tools *registry.BaseRegistry[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: registry.NewBaseRegistry[Tool](),
	}
}

// Register adds a tool under its own name.
func (r *Registry) Register(tool Tool) error {
	return r.tools.Register(tool.Name(), tool)
}

// Get returns a registered tool.
func (r *Registry) Get(name string) (Tool, bool) {
	return r.tools.Get(name)
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools.Get(name)
	return ok
}

// ToolNames returns the registered names in sorted order.
func (r *Registry) ToolNames() []string {
	return r.tools.Names()
}

// Execute dispatches a call to the named tool, recording a span and metrics
// around it. Unknown tools and tool failures come back as
// ToolExecutionError.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	tool, ok := r.tools.Get(name)
	if !ok {
		return "", NewToolExecutionError(name, "unknown tool", nil)
	}

	startTime := time.Now()

	tracer := observability.GetTracer("argus.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, name),
		),
	)
	defer span.End()

	result, err := tool.Execute(ctx, args)
	duration := time.Since(startTime)

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordToolExecution(ctx, name, duration, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", NewToolExecutionError(name, "execution failed", err)
	}

	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// SchemaProvider is implemented by tools that publish a JSON schema for
// their arguments. The schema is appended to the tool's catalog entry.
type SchemaProvider interface {
	ArgsSchema() map[string]any
}

// RenderCatalog renders every registered tool's name, description, and
// argument schema as prompt-ready text.
func (r *Registry) RenderCatalog() string {
	var sb strings.Builder

	for _, name := range r.ToolNames() {
		tool, ok := r.tools.Get(name)
		if !ok {
			continue
		}

		sb.WriteString(fmt.Sprintf("## %s\n%s\n", name, tool.Description()))

		if provider, ok := tool.(SchemaProvider); ok {
			if schema := provider.ArgsSchema(); schema != nil {
				if data, err := json.Marshal(schema); err == nil {
					sb.WriteString(fmt.Sprintf("Argument schema: %s\n", data))
				}
			}
		}

		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String())
}
