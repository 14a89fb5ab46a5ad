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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/session"
)

// Analyzer cross-validates the facts gathered by all workers in a single LLM
// call: which facts corroborate each other, which contradict, and what the
// research still leaves open.
type Analyzer struct {
	client llm.ChatClient
	model  string
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(client llm.ChatClient) *Analyzer {
	return &Analyzer{
		client: client,
		model:  client.GetModel(),
	}
}

// AnalysisResult is the output of cross-validation.
type AnalysisResult struct {
	ValidatedFacts []session.ValidatedFact
	Contradictions []session.Contradiction
	KnowledgeGaps  []session.KnowledgeGap
	Cost           session.CostBreakdown
}

// Analyze cross-validates facts against each other and against the questions
// the research was meant to answer. An unparseable model response degrades to
// an empty result with the cost still recorded; transport errors propagate.
func (a *Analyzer) Analyze(ctx context.Context, query string, facts []session.Fact, expectedCoverage []string) (*AnalysisResult, error) {
	if len(facts) == 0 {
		return &AnalysisResult{}, nil
	}

	resp, err := a.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: analysisPrompt(query, facts, expectedCoverage)},
	})
	if err != nil {
		return nil, fmt.Errorf("analysis LLM call: %w", err)
	}

	result := &AnalysisResult{
		Cost: session.NewCostBreakdown(a.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens),
	}

	parsed, ok := parseAnalysisResponse(resp.Text())
	if !ok {
		slog.Warn("analysis response unparseable, continuing without validation", "query", query)
		return result, nil
	}

	result.ValidatedFacts = parsed.ValidatedFacts
	result.Contradictions = parsed.Contradictions
	result.KnowledgeGaps = parsed.KnowledgeGaps
	return result, nil
}

// CorroboratedFacts returns only the facts backed by two or more distinct
// sources.
func (r *AnalysisResult) CorroboratedFacts() []session.ValidatedFact {
	var corroborated []session.ValidatedFact
	for _, fact := range r.ValidatedFacts {
		if fact.Corroborated() {
			corroborated = append(corroborated, fact)
		}
	}
	return corroborated
}

func analysisPrompt(query string, facts []session.Fact, expectedCoverage []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Cross-validate the research facts below, gathered for the query:
%s

Respond with a single JSON object and nothing else:
{
  "validated_facts": [{"content": "...", "confidence": 0.9, "source": "https://...", "corroborated_by": ["https://...", "https://..."]}],
  "contradictions": [{"claim1": "...", "claim2": "...", "nature": "why they conflict"}],
  "knowledge_gaps": [{"description": "...", "importance": 0.8, "suggested_queries": ["..."]}]
}

Rules:
- Merge facts that state the same claim; corroborated_by lists every distinct source URL that supports the merged claim.
- Adjust confidence up when independent sources agree, down when only one source carries the claim.
- Report contradictions only when two claims cannot both hold, not mere differences in emphasis.
- knowledge_gaps covers the expected questions below that the facts leave unanswered; importance is in [0,1].

Facts:
`, query)

	for i, fact := range facts {
		fmt.Fprintf(&b, "%d. %s (source: %s, confidence: %.2f)\n", i+1, fact.Content, fact.Source, fact.Confidence)
	}

	if len(expectedCoverage) > 0 {
		b.WriteString("\nExpected questions:\n")
		for _, question := range expectedCoverage {
			fmt.Fprintf(&b, "- %s\n", question)
		}
	}

	return b.String()
}

type analysisResponse struct {
	ValidatedFacts []session.ValidatedFact `json:"validated_facts"`
	Contradictions []session.Contradiction `json:"contradictions"`
	KnowledgeGaps  []session.KnowledgeGap  `json:"knowledge_gaps"`
}

// parseAnalysisResponse extracts the JSON object from the response, tolerating
// surrounding prose and markdown fences.
func parseAnalysisResponse(text string) (analysisResponse, bool) {
	var parsed analysisResponse

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
