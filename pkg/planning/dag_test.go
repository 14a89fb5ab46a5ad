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

package planning

import (
	"errors"
	"strings"
	"testing"

	"github.com/kadirpekel/argus/pkg/research"
)

func buildChainDAG(t *testing.T) *ResearchDAG {
	t.Helper()
	dag := NewResearchDAG()
	nodes := []*DAGNode{
		{ID: "search_0", TaskType: TaskSearch, Description: "first"},
		{ID: "search_1", TaskType: TaskSearch, Description: "second", Dependencies: []string{"search_0"}},
		{ID: "analyze", TaskType: TaskAnalyze, Dependencies: []string{"search_0", "search_1"}},
		{ID: "search_2", TaskType: TaskSearch, Description: "independent"},
	}
	for _, n := range nodes {
		if err := dag.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", n.ID, err)
		}
	}
	return dag
}

func readyIDs(dag *ResearchDAG) []string {
	var ids []string
	for _, n := range dag.GetReadyTasks() {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestReadyTasksRespectDependencies(t *testing.T) {
	dag := buildChainDAG(t)

	got := readyIDs(dag)
	want := []string{"search_0", "search_2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ready = %v, want %v", got, want)
	}

	dag.SetStatus("search_0", StatusRunning)
	if got := readyIDs(dag); strings.Join(got, ",") != "search_2" {
		t.Errorf("ready while search_0 running = %v, want [search_2]", got)
	}

	dag.SetResult("search_0", "found it")
	dag.SetResult("search_2", "done")
	if got := readyIDs(dag); strings.Join(got, ",") != "search_1" {
		t.Errorf("ready after search_0 complete = %v, want [search_1]", got)
	}
}

func TestFailedDependencyBlocksDependents(t *testing.T) {
	dag := buildChainDAG(t)
	dag.SetError("search_0", errors.New("no results"))
	dag.SetResult("search_2", "done")

	for _, id := range readyIDs(dag) {
		if id == "search_1" || id == "analyze" {
			t.Errorf("node %s became ready behind a failed dependency", id)
		}
	}
	if dag.AllComplete() {
		t.Error("AllComplete true with pending dependents")
	}
}

func TestAllCompleteCountsFailures(t *testing.T) {
	dag := NewResearchDAG()
	_ = dag.AddNode(&DAGNode{ID: "search_0", TaskType: TaskSearch})
	_ = dag.AddNode(&DAGNode{ID: "search_1", TaskType: TaskSearch})

	if dag.AllComplete() {
		t.Fatal("AllComplete true with pending nodes")
	}
	dag.SetResult("search_0", nil)
	dag.SetError("search_1", errors.New("boom"))
	if !dag.AllComplete() {
		t.Fatal("AllComplete false with only complete and failed nodes")
	}

	pending, running, complete, failed := dag.Counts()
	if pending != 0 || running != 0 || complete != 1 || failed != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 0/0/1/1", pending, running, complete, failed)
	}
}

func TestSetErrorRecordsError(t *testing.T) {
	dag := buildChainDAG(t)
	cause := errors.New("fetch timed out")
	dag.SetError("search_2", cause)

	node, ok := dag.Node("search_2")
	if !ok {
		t.Fatal("node search_2 missing")
	}
	if node.Status != StatusFailed {
		t.Errorf("status = %s, want failed", node.Status)
	}
	if !errors.Is(node.Err, cause) {
		t.Errorf("node error = %v, want %v", node.Err, cause)
	}
}

func TestAddNodeRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	dag := NewResearchDAG()
	if err := dag.AddNode(&DAGNode{ID: "search_0"}); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := dag.AddNode(&DAGNode{ID: "search_0"}); err == nil {
		t.Error("duplicate id accepted")
	}
	if err := dag.AddNode(&DAGNode{}); err == nil {
		t.Error("empty id accepted")
	}
}

func TestValidateCatchesUnknownDepsAndCycles(t *testing.T) {
	dag := buildChainDAG(t)
	if err := dag.Validate(); err != nil {
		t.Fatalf("valid graph rejected: %v", err)
	}

	broken := NewResearchDAG()
	_ = broken.AddNode(&DAGNode{ID: "a", Dependencies: []string{"ghost"}})
	if err := broken.Validate(); err == nil || !strings.Contains(err.Error(), "unknown node") {
		t.Errorf("unknown dep error = %v", err)
	}

	cyclic := NewResearchDAG()
	_ = cyclic.AddNode(&DAGNode{ID: "a", Dependencies: []string{"b"}})
	_ = cyclic.AddNode(&DAGNode{ID: "b", Dependencies: []string{"a"}})
	if err := cyclic.Validate(); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("cycle error = %v", err)
	}
}

func TestSnapshotStringifiesTypesAndStatuses(t *testing.T) {
	dag := buildChainDAG(t)
	dag.SetStatus("search_0", StatusRunning)
	dag.SetResult("search_2", "done")

	snapshot := dag.Snapshot()
	if len(snapshot.Nodes) != 4 {
		t.Fatalf("snapshot has %d nodes, want 4", len(snapshot.Nodes))
	}

	byID := make(map[string]research.DAGNodeSnapshot)
	for _, n := range snapshot.Nodes {
		byID[n.ID] = n
	}
	if n := byID["search_0"]; n.TaskType != "search" || n.Status != "running" {
		t.Errorf("search_0 snapshot = %+v", n)
	}
	if n := byID["analyze"]; n.TaskType != "analyze" || n.Status != "pending" {
		t.Errorf("analyze snapshot = %+v", n)
	}
	if n := byID["search_2"]; n.Status != "complete" {
		t.Errorf("search_2 snapshot = %+v", n)
	}
	if deps := byID["search_1"].Dependencies; len(deps) != 1 || deps[0] != "search_0" {
		t.Errorf("search_1 dependencies = %v", deps)
	}
}

func TestNodeCopiesAreIsolated(t *testing.T) {
	dag := buildChainDAG(t)
	node, _ := dag.Node("search_0")
	node.Status = StatusFailed

	fresh, _ := dag.Node("search_0")
	if fresh.Status != StatusPending {
		t.Error("mutating a returned node copy changed the graph")
	}
}
