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
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/testutils"
)

const planJSON = `{
  "topic": "Impact of heat pumps on residential grids",
  "brief": "Examine how widespread heat pump adoption changes load curves.",
  "perspectives": [
    {"name": "Grid Engineering", "focus": "Distribution capacity limits", "questions": ["What is peak winter load growth?", "Which feeders saturate first?"]},
    {"name": "Economics", "focus": "Tariff and cost effects", "questions": ["How do time-of-use tariffs shift demand?"]},
    {"name": "Policy", "focus": "Incentive design", "questions": ["Which subsidies correlate with adoption?"]}
  ]
}`

func TestCreatePlanParsesResponse(t *testing.T) {
	client := testutils.NewScriptedChatClient(planJSON)
	planner := NewPlanner(client)

	plan, err := planner.CreatePlan(context.Background(), "heat pumps and the grid")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	if plan.Topic != "Impact of heat pumps on residential grids" {
		t.Errorf("topic = %q", plan.Topic)
	}
	if !strings.Contains(plan.Brief, "load curves") {
		t.Errorf("brief = %q", plan.Brief)
	}
	if len(plan.Perspectives) != 3 {
		t.Fatalf("got %d perspectives, want 3", len(plan.Perspectives))
	}
	if p := plan.Perspectives[0]; p.Name != "Grid Engineering" || len(p.Questions) != 2 {
		t.Errorf("first perspective = %+v", p)
	}
	if plan.Cost.TotalTokens == 0 {
		t.Error("plan cost not recorded")
	}

	nodes := plan.DAG.GetAllNodes()
	if len(nodes) != 3 {
		t.Fatalf("DAG has %d nodes, want 3", len(nodes))
	}
	for i, n := range nodes {
		if n.ID != fmt.Sprintf("search_%d", i) {
			t.Errorf("node %d id = %s", i, n.ID)
		}
		if n.TaskType != TaskSearch || len(n.Dependencies) != 0 {
			t.Errorf("node %s = %+v, want independent search node", n.ID, n)
		}
	}
	if n := nodes[1]; n.Description != "Tariff and cost effects" {
		t.Errorf("node description = %q, want the perspective focus", n.Description)
	}
	if err := plan.DAG.Validate(); err != nil {
		t.Errorf("planned DAG invalid: %v", err)
	}
}

func TestCreatePlanToleratesFencesAndProse(t *testing.T) {
	client := testutils.NewScriptedChatClient(
		"Here is the plan you asked for:\n```json\n" + planJSON + "\n```\nLet me know if it works.")
	planner := NewPlanner(client)

	plan, err := planner.CreatePlan(context.Background(), "heat pumps")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if len(plan.Perspectives) != 3 {
		t.Errorf("got %d perspectives, want 3", len(plan.Perspectives))
	}
}

func TestCreatePlanFallsBackOnGarbage(t *testing.T) {
	client := testutils.NewScriptedChatClient("I cannot produce a plan right now, sorry.")
	planner := NewPlanner(client)

	plan, err := planner.CreatePlan(context.Background(), "quantum batteries")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if len(plan.Perspectives) != 1 {
		t.Fatalf("fallback has %d perspectives, want 1", len(plan.Perspectives))
	}
	if plan.Perspectives[0].Focus != "quantum batteries" {
		t.Errorf("fallback focus = %q, want the query", plan.Perspectives[0].Focus)
	}
	if plan.Topic != "quantum batteries" {
		t.Errorf("fallback topic = %q", plan.Topic)
	}
	if got := len(plan.DAG.GetAllNodes()); got != 1 {
		t.Errorf("fallback DAG has %d nodes, want 1", got)
	}
	if plan.Cost.TotalTokens == 0 {
		t.Error("failed parse still consumed tokens, cost must be recorded")
	}
}

func TestCreatePlanClampsPerspectives(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"topic": "t", "brief": "b", "perspectives": [`)
	for i := 0; i < 8; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"name": "P%d", "focus": "f%d", "questions": ["q%d"]}`, i, i, i)
	}
	sb.WriteString(`]}`)

	planner := NewPlanner(testutils.NewScriptedChatClient(sb.String()))
	plan, err := planner.CreatePlan(context.Background(), "t")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if len(plan.Perspectives) != DefaultMaxPerspectives {
		t.Errorf("got %d perspectives, want %d", len(plan.Perspectives), DefaultMaxPerspectives)
	}
	if got := len(plan.DAG.GetAllNodes()); got != DefaultMaxPerspectives {
		t.Errorf("DAG has %d nodes, want %d", got, DefaultMaxPerspectives)
	}
}

func TestCreatePlanSkipsUnnamedPerspectives(t *testing.T) {
	client := testutils.NewScriptedChatClient(
		`{"topic": "t", "perspectives": [{"name": "", "focus": "dropped"}, {"name": "Kept", "focus": ""}]}`)
	planner := NewPlanner(client)

	plan, err := planner.CreatePlan(context.Background(), "t")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if len(plan.Perspectives) != 1 || plan.Perspectives[0].Name != "Kept" {
		t.Fatalf("perspectives = %+v, want only the named one", plan.Perspectives)
	}
	if plan.Perspectives[0].Focus != "Kept" {
		t.Errorf("empty focus = %q, want the name as fallback", plan.Perspectives[0].Focus)
	}
}

func TestCreatePlanPropagatesTransportError(t *testing.T) {
	client := testutils.NewScriptedChatClient()
	client.Err = errors.New("connection refused")
	planner := NewPlanner(client)

	_, err := planner.CreatePlan(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "plan research") {
		t.Errorf("error = %v, want plan research wrap", err)
	}
}

func TestGetPerspectiveForNode(t *testing.T) {
	perspectives := []research.Perspective{
		{Name: "A", Focus: "fa"},
		{Name: "B", Focus: "fb"},
	}
	plan := &ResearchPlan{Perspectives: perspectives, DAG: BuildSearchDAG(perspectives)}

	if p := plan.GetPerspectiveForNode("search_1"); p == nil || p.Name != "B" {
		t.Errorf("search_1 perspective = %+v, want B", p)
	}
	if p := plan.GetPerspectiveForNode("search_9"); p != nil {
		t.Errorf("out-of-range node returned %+v", p)
	}
	if p := plan.GetPerspectiveForNode("analyze"); p != nil {
		t.Errorf("non-search node returned %+v", p)
	}
}

func TestNodeWorkerNum(t *testing.T) {
	if got := NodeWorkerNum(SearchNodeID(0)); got != 1 {
		t.Errorf("worker num for search_0 = %d, want 1", got)
	}
	if got := NodeWorkerNum(SearchNodeID(4)); got != 5 {
		t.Errorf("worker num for search_4 = %d, want 5", got)
	}
	if got := NodeWorkerNum("synthesize"); got != 0 {
		t.Errorf("worker num for synthesize = %d, want 0", got)
	}
}

func TestCollectQuestions(t *testing.T) {
	perspectives := []research.Perspective{
		{Name: "A", Questions: []string{"what?", "why?"}},
		{Name: "B", Questions: []string{"why?", "  how?  ", ""}},
	}
	got := CollectQuestions(perspectives)
	want := []string{"what?", "why?", "how?"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("questions = %v, want %v", got, want)
	}
}
