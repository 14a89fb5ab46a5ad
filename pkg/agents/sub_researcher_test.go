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

package agents

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kadirpekel/argus/pkg/events"
	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/testutils"
	"github.com/kadirpekel/argus/pkg/tools"
)

type stubTool struct {
	name        string
	description string
	result      string
	err         error
	calls       int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.description }
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	s.calls++
	return s.result, s.err
}

func newTestRegistry(t *testing.T, stubs ...*stubTool) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	for _, stub := range stubs {
		if err := registry.Register(stub); err != nil {
			t.Fatal(err)
		}
	}
	return registry
}

// containsMessage reports whether any message in the conversation contains
// the substring.
func containsMessage(messages []llm.Message, substr string) bool {
	for _, m := range messages {
		if strings.Contains(m.Content, substr) {
			return true
		}
	}
	return false
}

func TestSubResearcher_AnswerFirstIteration(t *testing.T) {
	client := testutils.NewScriptedChatClient(
		"<thought>I know this.</thought>\n<answer>Go 1.24 generics improved type inference.</answer>",
		`[{"content": "Type inference improved in 1.24", "confidence": 0.9, "source": "https://go.dev/doc/go1.24"}]`,
	)
	registry := newTestRegistry(t, &stubTool{name: "search", description: "Web search."})

	researcher := NewSubResearcher(client, registry, nil, SubResearcherConfig{WorkerID: "w1", WorkerNum: 1})
	worker, err := researcher.Research(context.Background(), "go 1.24 generics")
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	if worker.Status != research.WorkerComplete {
		t.Errorf("Status = %q, want %q", worker.Status, research.WorkerComplete)
	}
	if worker.Output != "Go 1.24 generics improved type inference." {
		t.Errorf("Output = %q", worker.Output)
	}
	if worker.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", worker.Iterations)
	}
	if len(worker.Facts) != 1 || worker.Facts[0].Source != "https://go.dev/doc/go1.24" {
		t.Errorf("Facts = %+v", worker.Facts)
	}
	if worker.Cost.TotalTokens == 0 {
		t.Error("Cost.TotalTokens = 0")
	}
	if worker.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}
	// One streamed turn plus the fact extraction call.
	if client.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", client.Calls())
	}
}

func TestSubResearcher_SearchThenAnswer(t *testing.T) {
	client := testutils.NewScriptedChatClient(
		"<thought>Need sources.</thought>\n<tool name=\"search\">{\"query\": \"go scheduler preemption\"}</tool>",
		"<answer>The scheduler preempts goroutines at safepoints.</answer>",
		"not json",
	)
	searchTool := &stubTool{
		name:        "search",
		description: "Web search.",
		result:      "1. Scheduling in Go\n   https://go.dev/blog/scheduler\n   How goroutines are scheduled.",
	}
	registry := newTestRegistry(t, searchTool)

	researcher := NewSubResearcher(client, registry, nil, SubResearcherConfig{WorkerID: "w1", WorkerNum: 1})
	worker, err := researcher.Research(context.Background(), "go scheduler")
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	if searchTool.calls != 1 {
		t.Errorf("search tool calls = %d, want 1", searchTool.calls)
	}
	if worker.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", worker.Iterations)
	}
	if len(worker.Sources) != 1 || worker.Sources[0] != "https://go.dev/blog/scheduler" {
		t.Errorf("Sources = %v", worker.Sources)
	}
	if len(worker.RawNotes) != 1 || !strings.Contains(worker.RawNotes[0], "Scheduling in Go") {
		t.Errorf("RawNotes = %v", worker.RawNotes)
	}
	if len(worker.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %+v", worker.ToolCalls)
	}
	if worker.ToolCalls[0].Tool != "search" || !strings.Contains(worker.ToolCalls[0].Args, "go scheduler preemption") {
		t.Errorf("ToolCalls[0] = %+v", worker.ToolCalls[0])
	}
	if worker.Facts != nil {
		t.Errorf("Facts = %+v from unparseable extraction", worker.Facts)
	}

	// The second turn's conversation carries the tool result back.
	if !containsMessage(client.Requests[1], "Tool result for search:") {
		t.Errorf("second request missing tool result:\n%+v", client.Requests[1])
	}
}

func TestSubResearcher_DeduplicatesSources(t *testing.T) {
	client := testutils.NewScriptedChatClient(
		"<tool name=\"search\">{\"query\": \"go scheduler\"}</tool>",
		"<tool name=\"search\">{\"query\": \"go scheduler preemption\"}</tool>",
		"<answer>Preemption happens at safepoints.</answer>",
		"not json",
	)
	// The same URL shows up twice in one result and again in the next search.
	searchTool := &stubTool{
		name:        "search",
		description: "Web search.",
		result: "1. Scheduling in Go\n   https://go.dev/blog/scheduler\n   Overview.\n" +
			"2. Scheduling in Go (mirror)\n   https://go.dev/blog/scheduler\n   Same page.\n" +
			"3. GC guide\n   https://go.dev/doc/gc-guide\n   Memory management.",
	}
	registry := newTestRegistry(t, searchTool)

	researcher := NewSubResearcher(client, registry, nil, SubResearcherConfig{WorkerID: "w1", WorkerNum: 1})
	worker, err := researcher.Research(context.Background(), "go scheduler")
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	if searchTool.calls != 2 {
		t.Errorf("search tool calls = %d, want 2", searchTool.calls)
	}
	want := []string{"https://go.dev/blog/scheduler", "https://go.dev/doc/gc-guide"}
	if len(worker.Sources) != len(want) {
		t.Fatalf("Sources = %v, want %v", worker.Sources, want)
	}
	for i, url := range want {
		if worker.Sources[i] != url {
			t.Errorf("Sources[%d] = %q, want %q", i, worker.Sources[i], url)
		}
	}
}

func TestSubResearcher_ToolFailureFeedsErrorBack(t *testing.T) {
	client := testutils.NewScriptedChatClient(
		"<tool name=\"search\">{\"query\": \"anything\"}</tool>",
		"<answer>done without sources</answer>",
		"[]",
	)
	registry := newTestRegistry(t, &stubTool{
		name: "search",
		err:  fmt.Errorf("network down"),
	})

	researcher := NewSubResearcher(client, registry, nil, SubResearcherConfig{WorkerID: "w1"})
	worker, err := researcher.Research(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	if worker.Status != research.WorkerComplete {
		t.Errorf("Status = %q; a tool failure should not fail the worker", worker.Status)
	}
	if len(worker.RawNotes) != 0 {
		t.Errorf("RawNotes = %v from a failed search", worker.RawNotes)
	}
	if !containsMessage(client.Requests[1], "Error:") {
		t.Errorf("second request missing stringified tool error:\n%+v", client.Requests[1])
	}
	if !containsMessage(client.Requests[1], "network down") {
		t.Errorf("second request missing cause:\n%+v", client.Requests[1])
	}
}

func TestSubResearcher_LLMFailure(t *testing.T) {
	client := testutils.NewScriptedChatClient()
	client.Err = fmt.Errorf("upstream 503")
	registry := newTestRegistry(t)

	researcher := NewSubResearcher(client, registry, nil, SubResearcherConfig{WorkerID: "w1"})
	worker, err := researcher.Research(context.Background(), "anything")
	if err == nil {
		t.Fatal("Research() error = nil")
	}
	if !strings.Contains(err.Error(), "LLM call failed") {
		t.Errorf("error = %v", err)
	}
	if worker.Status != research.WorkerFailed {
		t.Errorf("Status = %q, want %q", worker.Status, research.WorkerFailed)
	}
	if worker.CompletedAt.IsZero() {
		t.Error("CompletedAt not set on failure")
	}
}

func TestSubResearcher_IterationCap(t *testing.T) {
	client := testutils.NewScriptedChatClient("Let me think about this some more.")
	client.RepeatLast = true
	registry := newTestRegistry(t)

	researcher := NewSubResearcher(client, registry, nil, SubResearcherConfig{
		WorkerID:      "w1",
		MaxIterations: 3,
	})
	worker, err := researcher.Research(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	if worker.Status != research.WorkerComplete {
		t.Errorf("Status = %q", worker.Status)
	}
	if worker.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", worker.Iterations)
	}
	if worker.Output != "Research concluded after maximum iterations." {
		t.Errorf("Output = %q", worker.Output)
	}
	// No answer means no fact extraction call.
	if client.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", client.Calls())
	}
}

func TestSubResearcher_TokenBudgetTriggersFinalize(t *testing.T) {
	client := testutils.NewScriptedChatClient(
		"<tool name=\"think\">{\"reflection\": \"still digging through the material here\"}</tool>",
		"<answer>wrapping up</answer>",
		"[]",
	)
	registry := newTestRegistry(t, &stubTool{name: "think", result: "Reflection recorded: noted"})

	researcher := NewSubResearcher(client, registry, nil, SubResearcherConfig{
		WorkerID:    "w1",
		TokenBudget: 1,
	})
	if _, err := researcher.Research(context.Background(), "anything"); err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	if !containsMessage(client.Requests[1], "Token budget nearly exhausted") {
		t.Errorf("second request missing finalize nudge:\n%+v", client.Requests[1])
	}
}

func TestSubResearcher_VisitedURLsSeedQuery(t *testing.T) {
	client := testutils.NewScriptedChatClient("<answer>ok</answer>", "[]")
	registry := newTestRegistry(t)

	researcher := NewSubResearcher(client, registry, nil, SubResearcherConfig{
		WorkerID: "w1",
		Visited:  []string{"https://seen.example/one", "https://seen.example/two"},
	})
	if _, err := researcher.Research(context.Background(), "anything"); err != nil {
		t.Fatalf("Research() error = %v", err)
	}

	first := client.Requests[0]
	if !containsMessage(first, "URLs already covered by other researchers") {
		t.Errorf("query missing visited preamble:\n%+v", first)
	}
	if !containsMessage(first, "https://seen.example/two") {
		t.Errorf("query missing visited URL:\n%+v", first)
	}
}

func TestSubResearcher_PublishesEvents(t *testing.T) {
	bus := events.NewBus(64)
	ch := bus.Subscribe(
		events.EventIterationStarted,
		events.EventToolCall,
		events.EventToolResult,
		events.EventAnswerFound,
	)

	client := testutils.NewScriptedChatClient(
		"<tool name=\"search\">{\"query\": \"q\"}</tool>",
		"<answer>found</answer>",
		"[]",
	)
	registry := newTestRegistry(t, &stubTool{name: "search", result: "https://a.example"})

	researcher := NewSubResearcher(client, registry, bus, SubResearcherConfig{WorkerID: "w1", WorkerNum: 2})
	if _, err := researcher.Research(context.Background(), "anything"); err != nil {
		t.Fatalf("Research() error = %v", err)
	}
	bus.Close()

	counts := make(map[events.EventType]int)
	for e := range ch {
		counts[e.Type]++
		if e.Timestamp.IsZero() {
			t.Error("event missing timestamp")
		}
	}

	if counts[events.EventIterationStarted] != 2 {
		t.Errorf("iteration events = %d, want 2", counts[events.EventIterationStarted])
	}
	if counts[events.EventToolCall] != 1 || counts[events.EventToolResult] != 1 {
		t.Errorf("tool events = %d/%d, want 1/1", counts[events.EventToolCall], counts[events.EventToolResult])
	}
	if counts[events.EventAnswerFound] != 1 {
		t.Errorf("answer events = %d, want 1", counts[events.EventAnswerFound])
	}
}
