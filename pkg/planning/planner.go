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

// Package planning turns a research query into an executable plan: a topic,
// a brief, a set of expert perspectives, and a dependency graph of search
// tasks. Node ids follow the search_<index> scheme the research aggregate
// keys its workers by.
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/session"
)

// DefaultMaxPerspectives caps how many expert angles one plan may carry.
const DefaultMaxPerspectives = 5

// ResearchPlan is the planner's output.
type ResearchPlan struct {
	Topic        string
	Brief        string
	Perspectives []research.Perspective
	DAG          *ResearchDAG
	Cost         session.CostBreakdown
}

// GetPerspectiveForNode resolves the perspective assigned to a search node,
// or nil for non-search nodes and out-of-range indexes.
func (p *ResearchPlan) GetPerspectiveForNode(nodeID string) *research.Perspective {
	idx := NodeWorkerNum(nodeID) - 1
	if idx < 0 || idx >= len(p.Perspectives) {
		return nil
	}
	perspective := p.Perspectives[idx]
	return &perspective
}

// Planner creates research plans with a single LLM call.
type Planner struct {
	client          llm.ChatClient
	maxPerspectives int
}

// NewPlanner creates a planner using the given chat client.
func NewPlanner(client llm.ChatClient) *Planner {
	return &Planner{client: client, maxPerspectives: DefaultMaxPerspectives}
}

// CreatePlan asks the LLM to decompose the query into topic, brief, and
// perspectives, then builds the search DAG from the perspectives. Transport
// errors propagate; an unparseable response degrades to a single-perspective
// plan covering the raw query.
func (p *Planner) CreatePlan(ctx context.Context, query string) (*ResearchPlan, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: planSystemPrompt(time.Now())},
		{Role: llm.RoleUser, Content: query},
	}

	resp, err := p.client.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("plan research: %w", err)
	}
	cost := session.NewCostBreakdown(p.client.GetModel(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)

	parsed, ok := parsePlanResponse(resp.Text())
	if !ok || len(parsed.Perspectives) == 0 {
		slog.Warn("plan response unparseable, falling back to single perspective",
			"query", query)
		plan := fallbackPlan(query)
		plan.Cost = cost
		return plan, nil
	}

	perspectives := make([]research.Perspective, 0, len(parsed.Perspectives))
	for _, pp := range parsed.Perspectives {
		if pp.Name == "" {
			continue
		}
		focus := pp.Focus
		if focus == "" {
			focus = pp.Name
		}
		perspectives = append(perspectives, research.Perspective{
			Name:      pp.Name,
			Focus:     focus,
			Questions: pp.Questions,
		})
	}
	if len(perspectives) == 0 {
		plan := fallbackPlan(query)
		plan.Cost = cost
		return plan, nil
	}
	if len(perspectives) > p.maxPerspectives {
		perspectives = perspectives[:p.maxPerspectives]
	}

	topic := strings.TrimSpace(parsed.Topic)
	if topic == "" {
		topic = query
	}

	return &ResearchPlan{
		Topic:        topic,
		Brief:        strings.TrimSpace(parsed.Brief),
		Perspectives: perspectives,
		DAG:          BuildSearchDAG(perspectives),
		Cost:         cost,
	}, nil
}

// BuildSearchDAG creates one independent search node per perspective, ids
// matching the aggregate's worker keys.
func BuildSearchDAG(perspectives []research.Perspective) *ResearchDAG {
	dag := NewResearchDAG()
	for i, p := range perspectives {
		_ = dag.AddNode(&DAGNode{
			ID:          SearchNodeID(i),
			TaskType:    TaskSearch,
			Description: p.Focus,
		})
	}
	return dag
}

// CollectQuestions flattens every perspective's questions in order, dropping
// duplicates.
func CollectQuestions(perspectives []research.Perspective) []string {
	var questions []string
	seen := make(map[string]bool)
	for _, p := range perspectives {
		for _, q := range p.Questions {
			q = strings.TrimSpace(q)
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			questions = append(questions, q)
		}
	}
	return questions
}

// SearchNodeID returns the node id for the i-th search task.
func SearchNodeID(i int) string {
	return fmt.Sprintf("search_%d", i)
}

// NodeWorkerNum converts a search node id to its 1-based worker number.
// Non-search node ids return 0.
func NodeWorkerNum(nodeID string) int {
	var index int
	if _, err := fmt.Sscanf(nodeID, "search_%d", &index); err == nil {
		return index + 1
	}
	return 0
}

func fallbackPlan(query string) *ResearchPlan {
	perspectives := []research.Perspective{{
		Name:      "General Research",
		Focus:     query,
		Questions: []string{query},
	}}
	return &ResearchPlan{
		Topic:        query,
		Perspectives: perspectives,
		DAG:          BuildSearchDAG(perspectives),
	}
}

func planSystemPrompt(now time.Time) string {
	return fmt.Sprintf(`You are a research planning specialist. Today's date is %s. Decompose the user's query into a focused research plan.

Produce:
1. topic: a precise restatement of what is being researched.
2. brief: one paragraph on scope, what matters, and what a complete answer covers.
3. perspectives: 3-5 distinct expert angles. Each has a short name, a one-sentence focus, and 2-4 concrete questions a researcher with that angle would chase. Perspectives must not overlap.

Respond with a single JSON object and nothing else:
{"topic": "...", "brief": "...", "perspectives": [{"name": "...", "focus": "...", "questions": ["..."]}]}`,
		now.Format("2006-01-02"))
}

type planResponse struct {
	Topic        string `json:"topic"`
	Brief        string `json:"brief"`
	Perspectives []struct {
		Name      string   `json:"name"`
		Focus     string   `json:"focus"`
		Questions []string `json:"questions"`
	} `json:"perspectives"`
}

// parsePlanResponse extracts the JSON plan from a model response, tolerating
// code fences and surrounding prose.
func parsePlanResponse(text string) (planResponse, bool) {
	var parsed planResponse
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return parsed, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return parsed, false
	}
	return parsed, true
}
