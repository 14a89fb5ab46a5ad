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

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/planning"
	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/session"
	"github.com/kadirpekel/argus/pkg/store"
	"github.com/kadirpekel/argus/pkg/testutils"
)

// seedStream runs commands against a fresh aggregate and persists the
// events, emulating a previous process that stopped mid-session.
func seedStream(t *testing.T, eventStore store.EventStore, id string, cmds ...research.Command) {
	t.Helper()
	state := research.NewResearchState(id)
	for i, cmd := range cmds {
		if _, err := state.Execute(cmd); err != nil {
			t.Fatalf("seed command %d (%T): %v", i, cmd, err)
		}
	}
	if err := eventStore.AppendEvents(context.Background(), id, state.GetUncommittedEvents(), 0); err != nil {
		t.Fatalf("seed append: %v", err)
	}
}

func seedPerspective(name, focus string) research.Perspective {
	return research.Perspective{Name: name, Focus: focus, Questions: []string{"How does " + focus + " work?"}}
}

func seedPlanCommand(perspectives ...research.Perspective) research.SetPlanCommand {
	return research.SetPlanCommand{
		Topic:        "Go scheduler",
		Brief:        "Scheduling behavior in the runtime.",
		Perspectives: perspectives,
		DAGStructure: planning.BuildSearchDAG(perspectives).Snapshot(),
		Cost:         session.CostBreakdown{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func TestResumeContinuesFromSearching(t *testing.T) {
	cfg := testutils.TestConfig(t)
	eventStore := store.NewMemoryEventStore()
	const id = "20260101-120000-seed0001"

	seedStream(t, eventStore, id,
		research.StartResearchCommand{
			Query:  "how does the go scheduler work",
			Mode:   research.ModeFast,
			Config: research.ResearchConfig{MaxWorkers: 2},
		},
		seedPlanCommand(
			seedPerspective("Runtime internals", "scheduler run queue internals"),
			seedPerspective("Preemption", "goroutine preemption behavior"),
		),
		research.StartWorkerCommand{WorkerID: "search_0", WorkerNum: 1, Objective: "scheduler run queue internals", Perspective: "Runtime internals"},
		research.CompleteWorkerCommand{
			WorkerID: "search_0",
			Output:   "Run queues are per-P.",
			Facts:    []session.Fact{{Content: "Run queues are per-P", Confidence: 0.9, Source: "https://go.dev/seed"}},
			Sources:  []string{"https://go.dev/seed"},
			Cost:     session.CostBreakdown{TotalTokens: 30},
		},
	)

	client := testutils.NewScriptedChatClient()
	var mu sync.Mutex
	var objectives []string
	base := routePipeline(twoPerspectivePlan)
	client.Respond = func(messages []llm.Message) (string, error) {
		head := messages[0].Content
		if strings.Contains(head, "research planning specialist") {
			return "", fmt.Errorf("planner must not run on resume")
		}
		if strings.Contains(head, "You are a research sub-agent") {
			mu.Lock()
			objectives = append(objectives, messages[len(messages)-1].Content)
			mu.Unlock()
		}
		return base(messages)
	}

	o, err := New(eventStore, nil, cfg, WithClient(client), WithTools(&fakeTools{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state, err := o.Resume(context.Background(), id)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := state.GetStatus(); got != research.StatusComplete {
		t.Fatalf("status = %s, want complete", got)
	}
	if got := state.Workers["search_0"].Output; got != "Run queues are per-P." {
		t.Errorf("completed worker output overwritten: %q", got)
	}
	if got := state.Workers["search_1"].Status; got != research.WorkerComplete {
		t.Errorf("remaining worker status = %s, want complete", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(objectives) == 0 {
		t.Fatal("remaining worker never ran")
	}
	for _, objective := range objectives {
		if strings.Contains(objective, "run queue internals") {
			t.Errorf("already-complete worker re-ran: %q", objective)
		}
	}
}

func TestResumeResetsRunningWorkers(t *testing.T) {
	cfg := testutils.TestConfig(t)
	eventStore := store.NewMemoryEventStore()
	const id = "20260101-120000-seed0002"

	// The seeded session crashed after claiming search_0 but before any
	// completion event.
	seedStream(t, eventStore, id,
		research.StartResearchCommand{
			Query:  "how does the go scheduler work",
			Mode:   research.ModeFast,
			Config: research.ResearchConfig{MaxWorkers: 1},
		},
		seedPlanCommand(seedPerspective("Runtime internals", "scheduler run queue internals")),
		research.StartWorkerCommand{WorkerID: "search_0", WorkerNum: 1, Objective: "scheduler run queue internals", Perspective: "Runtime internals"},
	)

	client := testutils.NewScriptedChatClient()
	client.Respond = routePipeline(onePerspectivePlan)

	o, err := New(eventStore, nil, cfg, WithClient(client), WithTools(&fakeTools{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state, err := o.Resume(context.Background(), id)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := state.GetStatus(); got != research.StatusComplete {
		t.Fatalf("status = %s, want complete", got)
	}
	if got := state.Workers["search_0"].Status; got != research.WorkerComplete {
		t.Errorf("worker status = %s, want complete", got)
	}

	stream, err := eventStore.LoadEvents(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	var claims int
	for _, event := range stream {
		if event.GetType() == research.TypeWorkerStarted {
			claims++
		}
	}
	if claims != 2 {
		t.Errorf("worker.started events = %d, want 2 (original claim plus re-claim)", claims)
	}
}

func TestResumeTerminalStates(t *testing.T) {
	cfg := testutils.TestConfig(t)
	eventStore := store.NewMemoryEventStore()

	seedStream(t, eventStore, "sess-failed",
		research.StartResearchCommand{Query: "q", Mode: research.ModeFast, Config: research.ResearchConfig{}},
		research.FailResearchCommand{Error: "boom", Phase: "planning"},
	)
	seedStream(t, eventStore, "sess-cancelled",
		research.StartResearchCommand{Query: "q", Mode: research.ModeFast, Config: research.ResearchConfig{}},
		research.CancelResearchCommand{Reason: "timeout"},
	)

	client := testutils.NewScriptedChatClient()
	o, err := New(eventStore, nil, cfg, WithClient(client), WithTools(&fakeTools{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state, err := o.Resume(context.Background(), "sess-failed")
	if err == nil || !strings.Contains(err.Error(), "research in terminal state: failed") {
		t.Fatalf("failed session resume error = %v", err)
	}
	if state == nil || state.GetStatus() != research.StatusFailed {
		t.Errorf("failed session state = %+v", state)
	}

	_, err = o.Resume(context.Background(), "sess-cancelled")
	if err == nil || !strings.Contains(err.Error(), "research in terminal state: cancelled") {
		t.Fatalf("cancelled session resume error = %v", err)
	}

	if client.Calls() != 0 {
		t.Errorf("terminal resumes made %d LLM calls", client.Calls())
	}
}

func TestResumeCompletedSession(t *testing.T) {
	cfg := testutils.TestConfig(t)
	eventStore := store.NewMemoryEventStore()
	const id = "20260101-120000-seed0003"

	seedStream(t, eventStore, id,
		research.StartResearchCommand{Query: "q", Mode: research.ModeFast, Config: research.ResearchConfig{MaxWorkers: 1}},
		seedPlanCommand(seedPerspective("Runtime internals", "scheduler run queue internals")),
		research.StartWorkerCommand{WorkerID: "search_0", WorkerNum: 1, Objective: "scheduler run queue internals", Perspective: "Runtime internals"},
		research.CompleteWorkerCommand{WorkerID: "search_0", Output: "done", Cost: session.CostBreakdown{TotalTokens: 20}},
		research.StartAnalysisCommand{TotalFacts: 0},
		research.SetAnalysisCommand{Cost: session.CostBreakdown{TotalTokens: 5}},
		research.StartSynthesisCommand{},
		research.SetReportCommand{Title: "T", Summary: "S", FullContent: "# T\n\nS", Cost: session.CostBreakdown{TotalTokens: 8}},
		research.CompleteResearchCommand{Duration: time.Minute},
	)

	before, err := eventStore.LoadEvents(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}

	client := testutils.NewScriptedChatClient()
	o, err := New(eventStore, nil, cfg, WithClient(client), WithTools(&fakeTools{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state, err := o.Resume(context.Background(), id)
	if err != nil {
		t.Fatalf("Resume of complete session: %v", err)
	}
	if got := state.GetStatus(); got != research.StatusComplete {
		t.Errorf("status = %s, want complete", got)
	}
	if client.Calls() != 0 {
		t.Errorf("complete resume made %d LLM calls", client.Calls())
	}

	after, err := eventStore.LoadEvents(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("resume appended %d events to a complete session", len(after)-len(before))
	}
}

func TestResumeUnknownSession(t *testing.T) {
	cfg := testutils.TestConfig(t)
	o, err := New(store.NewMemoryEventStore(), nil, cfg, WithClient(testutils.NewScriptedChatClient()), WithTools(&fakeTools{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Resume(context.Background(), "nope"); err == nil || !strings.Contains(err.Error(), "session not found") {
		t.Fatalf("error = %v, want session not found", err)
	}
}
