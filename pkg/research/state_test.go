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

package research

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kadirpekel/argus/pkg/session"
)

func planCommand(perspectives int) SetPlanCommand {
	cmd := SetPlanCommand{Topic: "Test Topic", Brief: "A short brief."}
	for i := 0; i < perspectives; i++ {
		name := string(rune('A' + i))
		cmd.Perspectives = append(cmd.Perspectives, Perspective{
			Name:      "Perspective " + name,
			Focus:     "Focus " + name,
			Questions: []string{"What about " + name + "?"},
		})
		cmd.DAGStructure.Nodes = append(cmd.DAGStructure.Nodes, DAGNodeSnapshot{
			ID:       workerID(i),
			TaskType: "search",
			Status:   WorkerPending,
		})
	}
	return cmd
}

func workerID(i int) string {
	return "search_" + string(rune('0'+i))
}

func mustExecute(t *testing.T, s *ResearchState, cmd Command) Event {
	t.Helper()
	event, err := s.Execute(cmd)
	if err != nil {
		t.Fatalf("Execute(%T) failed: %v", cmd, err)
	}
	return event
}

// runFullSession drives a two-worker session from start to completion and
// returns the state with its full event stream.
func runFullSession(t *testing.T) (*ResearchState, []Event) {
	t.Helper()
	s := NewResearchState("session-1")
	var events []Event

	record := func(e Event) { events = append(events, e) }

	record(mustExecute(t, s, StartResearchCommand{
		Query:  "history of Foo Café",
		Mode:   ModeDeep,
		Config: ResearchConfig{MaxWorkers: 2},
	}))
	record(mustExecute(t, s, planCommand(2)))

	for i := 0; i < 2; i++ {
		id := workerID(i)
		record(mustExecute(t, s, StartWorkerCommand{
			WorkerID:  id,
			WorkerNum: i + 1,
			Objective: "Research " + id,
		}))
		record(mustExecute(t, s, CompleteWorkerCommand{
			WorkerID: id,
			Output:   "findings for " + id,
			Facts:    []session.Fact{{Content: "fact " + id, Confidence: 0.9, Source: "https://example.com/" + id}},
			Sources:  []string{"https://example.com/" + id},
			Cost:     session.CostBreakdown{TotalTokens: 100, TotalCost: 0.01},
		}))
	}

	record(mustExecute(t, s, StartAnalysisCommand{TotalFacts: 2}))
	record(mustExecute(t, s, SetAnalysisCommand{
		ValidatedFacts: []session.ValidatedFact{{Fact: session.Fact{Content: "fact", Confidence: 0.9}}},
		Cost:           session.CostBreakdown{TotalTokens: 50, TotalCost: 0.005},
	}))
	record(mustExecute(t, s, StartSynthesisCommand{}))
	record(mustExecute(t, s, SetReportCommand{
		Title:       "Foo Café",
		Summary:     "A summary.",
		FullContent: "# Foo Café\n\nBody [1].",
		Citations:   []session.Citation{{ID: 1, URL: "https://example.com/search_0"}},
		Cost:        session.CostBreakdown{TotalTokens: 200, TotalCost: 0.02},
	}))
	record(mustExecute(t, s, CompleteResearchCommand{Duration: 3 * time.Minute}))

	return s, events
}

func TestExecuteTransitions(t *testing.T) {
	s := NewResearchState("transitions")

	mustExecute(t, s, StartResearchCommand{Query: "q", Mode: ModeDeep})
	if s.Status != StatusPlanning {
		t.Errorf("status after start = %s, want %s", s.Status, StatusPlanning)
	}
	if s.Version != 1 {
		t.Errorf("version after start = %d, want 1", s.Version)
	}
	if got := len(s.GetUncommittedEvents()); got != 1 {
		t.Errorf("uncommitted events = %d, want 1", got)
	}

	mustExecute(t, s, planCommand(1))
	if s.Status != StatusSearching {
		t.Errorf("status after plan = %s, want %s", s.Status, StatusSearching)
	}
	if s.Version != 2 {
		t.Errorf("version after plan = %d, want 2", s.Version)
	}

	w, ok := s.Workers["search_0"]
	if !ok {
		t.Fatal("worker search_0 not initialized by plan")
	}
	if w.Status != WorkerPending || w.WorkerNum != 1 {
		t.Errorf("worker = %+v, want pending num 1", w)
	}

	s.ClearUncommittedEvents()
	if got := len(s.GetUncommittedEvents()); got != 0 {
		t.Errorf("uncommitted events after clear = %d, want 0", got)
	}
}

func TestVersionMonotonicity(t *testing.T) {
	_, events := runFullSession(t)

	for i, e := range events {
		if e.GetVersion() != i+1 {
			t.Errorf("event %d (%s) has version %d, want %d", i, e.GetType(), e.GetVersion(), i+1)
		}
	}
}

func TestEventOrderHappyPath(t *testing.T) {
	_, events := runFullSession(t)

	want := []string{
		TypeResearchStarted,
		TypePlanCreated,
		TypeWorkerStarted, TypeWorkerCompleted,
		TypeWorkerStarted, TypeWorkerCompleted,
		TypeAnalysisStarted,
		TypeAnalysisCompleted,
		TypeSynthesisStarted,
		TypeReportGenerated,
		TypeResearchCompleted,
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.GetType() != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.GetType(), want[i])
		}
	}
}

// domainFields renders the state's snapshot with the construction-time
// created_at removed, leaving only event-derived fields.
func domainFields(t *testing.T, s *ResearchState) map[string]interface{} {
	t.Helper()
	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	delete(m, "created_at")
	return m
}

func TestReplayDeterminism(t *testing.T) {
	original, events := runFullSession(t)

	replayed, err := LoadFromEvents(original.ID, events)
	if err != nil {
		t.Fatalf("LoadFromEvents failed: %v", err)
	}

	if replayed.Status != StatusComplete {
		t.Errorf("replayed status = %s, want %s", replayed.Status, StatusComplete)
	}
	if replayed.Version != original.Version {
		t.Errorf("replayed version = %d, want %d", replayed.Version, original.Version)
	}
	if got := len(replayed.GetUncommittedEvents()); got != 0 {
		t.Errorf("replayed state has %d uncommitted events, want 0", got)
	}

	if !reflect.DeepEqual(domainFields(t, original), domainFields(t, replayed)) {
		t.Error("replayed state differs from original in domain fields")
	}
}

func TestLoadFromEventsRejectsVersionGap(t *testing.T) {
	_, events := runFullSession(t)

	gapped := []Event{events[0], events[2]}
	if _, err := LoadFromEvents("session-1", gapped); err == nil {
		t.Fatal("expected error for gapped event stream")
	}
}

func TestCostAdditivity(t *testing.T) {
	s, events := runFullSession(t)

	var want session.CostBreakdown
	for _, e := range events {
		switch ev := e.(type) {
		case PlanCreatedEvent:
			want.Add(ev.Cost)
		case WorkerCompletedEvent:
			want.Add(ev.Cost)
		case AnalysisCompletedEvent:
			want.Add(ev.Cost)
		case ReportGeneratedEvent:
			want.Add(ev.Cost)
		}
	}

	if s.Cost != want {
		t.Errorf("aggregate cost = %+v, want %+v", s.Cost, want)
	}
	if s.Cost.TotalCost != 0.01+0.01+0.005+0.02 {
		t.Errorf("total cost = %f", s.Cost.TotalCost)
	}
}

func TestProgressBound(t *testing.T) {
	s := NewResearchState("progress")
	check := func(stage string) {
		if s.Progress < 0 || s.Progress > 1 {
			t.Errorf("%s: progress %f out of bounds", stage, s.Progress)
		}
	}

	mustExecute(t, s, StartResearchCommand{Query: "q", Mode: ModeFast})
	check("started")
	mustExecute(t, s, planCommand(2))
	check("planned")
	if s.Progress != 0 {
		t.Errorf("progress after plan = %f, want 0", s.Progress)
	}

	mustExecute(t, s, StartWorkerCommand{WorkerID: "search_0", WorkerNum: 1})
	mustExecute(t, s, CompleteWorkerCommand{WorkerID: "search_0", Output: "ok"})
	check("one complete")
	if s.Progress != 0.5 {
		t.Errorf("progress after 1/2 workers = %f, want 0.5", s.Progress)
	}

	mustExecute(t, s, StartWorkerCommand{WorkerID: "search_1", WorkerNum: 2})
	mustExecute(t, s, FailWorkerCommand{WorkerID: "search_1", Error: "boom"})
	check("one failed")
	// Failed nodes do not count toward progress.
	if s.Progress != 0.5 {
		t.Errorf("progress after failure = %f, want 0.5", s.Progress)
	}

	mustExecute(t, s, StartAnalysisCommand{})
	mustExecute(t, s, SetAnalysisCommand{})
	mustExecute(t, s, StartSynthesisCommand{})
	mustExecute(t, s, SetReportCommand{Title: "t", Summary: "s", FullContent: "c"})
	mustExecute(t, s, CompleteResearchCommand{})
	if s.Progress != 1.0 {
		t.Errorf("progress after completion = %f, want 1.0", s.Progress)
	}
}

func TestWorkerFailureRecorded(t *testing.T) {
	s := NewResearchState("worker-fail")
	mustExecute(t, s, StartResearchCommand{Query: "q", Mode: ModeFast})
	mustExecute(t, s, planCommand(1))
	mustExecute(t, s, StartWorkerCommand{WorkerID: "search_0", WorkerNum: 1})
	mustExecute(t, s, FailWorkerCommand{WorkerID: "search_0", Error: "search API down"})

	w := s.Workers["search_0"]
	if w.Status != WorkerFailed {
		t.Errorf("worker status = %s, want %s", w.Status, WorkerFailed)
	}
	if w.Error == nil || *w.Error != "search API down" {
		t.Errorf("worker error = %v, want recorded message", w.Error)
	}
	if node := s.DAG.Nodes["search_0"]; node.Status != WorkerFailed {
		t.Errorf("DAG node status = %s, want %s", node.Status, WorkerFailed)
	}
	// The session itself continues.
	if s.Status != StatusSearching {
		t.Errorf("session status = %s, want %s", s.Status, StatusSearching)
	}
}

func TestInvalidCommands(t *testing.T) {
	s := NewResearchState("invalid")

	if _, err := s.Execute(StartWorkerCommand{WorkerID: "search_0", WorkerNum: 1}); err == nil {
		t.Error("expected error starting worker before research")
	}

	mustExecute(t, s, StartResearchCommand{Query: "q", Mode: ModeDeep})

	if _, err := s.Execute(StartResearchCommand{Query: "again", Mode: ModeDeep}); err == nil {
		t.Error("expected error starting research twice")
	}
	if _, err := s.Execute(SetReportCommand{Title: "t"}); err == nil {
		t.Error("expected error setting report before synthesis")
	}

	mustExecute(t, s, planCommand(1))

	if _, err := s.Execute(CompleteWorkerCommand{WorkerID: "nonexistent", Output: "x"}); err == nil {
		t.Error("expected error completing unknown worker")
	}
	if _, err := s.Execute(CompleteWorkerCommand{WorkerID: "search_0", Output: "x"}); err == nil {
		t.Error("expected error completing a pending worker")
	}
	if _, err := s.Execute(planCommand(1)); err == nil {
		t.Error("expected error setting plan while searching")
	}

	var verr *ValidationError
	_, err := s.Execute(StartResearchCommand{Query: "again", Mode: ModeDeep})
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if !strings.Contains(verr.Error(), "StartResearch") {
		t.Errorf("error %q does not name the command", verr.Error())
	}

	// Nothing was persisted or applied for rejected commands.
	if s.Version != 2 {
		t.Errorf("version = %d, want 2", s.Version)
	}
}

func TestInvalidModeRejected(t *testing.T) {
	s := NewResearchState("bad-mode")
	if _, err := s.Execute(StartResearchCommand{Query: "q", Mode: "storm"}); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := s.Execute(StartResearchCommand{Query: "", Mode: ModeDeep}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestTerminalStateRejectsCommands(t *testing.T) {
	s, _ := runFullSession(t)

	if _, err := s.Execute(CompleteResearchCommand{}); err == nil {
		t.Error("expected error completing twice")
	}
	if _, err := s.Execute(CancelResearchCommand{Reason: "late"}); err == nil {
		t.Error("expected error cancelling a complete session")
	}
	if _, err := s.Execute(FailResearchCommand{Error: "late"}); err == nil {
		t.Error("expected error failing a complete session")
	}
}

func TestCancelRecordsReason(t *testing.T) {
	s := NewResearchState("cancel")
	mustExecute(t, s, StartResearchCommand{Query: "q", Mode: ModeDeep})
	event := mustExecute(t, s, CancelResearchCommand{Reason: "timeout"})

	cancelled, ok := event.(ResearchCancelledEvent)
	if !ok {
		t.Fatalf("event type = %T, want ResearchCancelledEvent", event)
	}
	if cancelled.Reason != "timeout" {
		t.Errorf("reason = %q, want timeout", cancelled.Reason)
	}
	if s.Status != StatusCancelled {
		t.Errorf("status = %s, want %s", s.Status, StatusCancelled)
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := NewResearchState("snap")
	mustExecute(t, s, StartResearchCommand{Query: "q", Mode: ModeDeep})
	mustExecute(t, s, planCommand(2))
	mustExecute(t, s, StartWorkerCommand{WorkerID: "search_0", WorkerNum: 1})

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored, err := RestoreFromSnapshot(data)
	if err != nil {
		t.Fatalf("RestoreFromSnapshot failed: %v", err)
	}
	if restored.Version != 3 || restored.Status != StatusSearching {
		t.Errorf("restored version=%d status=%s, want 3/searching", restored.Version, restored.Status)
	}
	if restored.Workers["search_0"].Status != WorkerRunning {
		t.Error("restored worker search_0 not running")
	}

	// The restored aggregate keeps accepting events where the stream left off.
	event := mustExecute(t, restored, CompleteWorkerCommand{WorkerID: "search_0", Output: "done"})
	if event.GetVersion() != 4 {
		t.Errorf("post-restore event version = %d, want 4", event.GetVersion())
	}
}

func TestReadyNodesRespectsDependencies(t *testing.T) {
	s := NewResearchState("dag")
	mustExecute(t, s, StartResearchCommand{Query: "q", Mode: ModeFast})

	cmd := planCommand(2)
	cmd.DAGStructure.Nodes[1].Dependencies = []string{"search_0"}
	mustExecute(t, s, cmd)

	ready := s.ReadyNodes()
	if len(ready) != 1 || ready[0].ID != "search_0" {
		t.Fatalf("ready = %+v, want only search_0", ready)
	}

	mustExecute(t, s, StartWorkerCommand{WorkerID: "search_0", WorkerNum: 1})
	if got := s.ReadyNodes(); len(got) != 0 {
		t.Errorf("ready while running = %+v, want none", got)
	}

	mustExecute(t, s, CompleteWorkerCommand{WorkerID: "search_0", Output: "ok"})
	ready = s.ReadyNodes()
	if len(ready) != 1 || ready[0].ID != "search_1" {
		t.Fatalf("ready after dep complete = %+v, want search_1", ready)
	}

	if s.AllNodesDone() {
		t.Error("AllNodesDone true with a pending node")
	}
	mustExecute(t, s, StartWorkerCommand{WorkerID: "search_1", WorkerNum: 2})
	mustExecute(t, s, FailWorkerCommand{WorkerID: "search_1", Error: "x"})
	if !s.AllNodesDone() {
		t.Error("AllNodesDone false with all nodes complete or failed")
	}
}
