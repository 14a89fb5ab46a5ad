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

	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/session"
)

// Synthesizer writes the final markdown report from accumulated findings.
type Synthesizer struct {
	client llm.ChatClient
	model  string
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(client llm.ChatClient) *Synthesizer {
	return &Synthesizer{
		client: client,
		model:  client.GetModel(),
	}
}

// Report is the synthesized deliverable.
type Report struct {
	Title       string
	Summary     string
	FullContent string
	Citations   []session.Citation
	Cost        session.CostBreakdown
}

// Synthesize generates the report with one LLM call over the findings and the
// analysis, then slices title, summary, and citations out of the result.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string, findings []string, sources []string, analysis *AnalysisResult) (*Report, error) {
	resp, err := s.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: synthesisPrompt(topic, findings, analysis)},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis LLM call: %w", err)
	}

	content := resp.Text()
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty response from LLM")
	}

	cost := session.NewCostBreakdown(s.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	return ComposeReport(content, topic, sources, cost), nil
}

// ComposeReport assembles a Report from raw markdown: the title comes from
// the first heading, the summary from the first body paragraph, and the
// deduplicated sources become numbered citations appended as a Sources
// section when the content lacks one.
func ComposeReport(content, fallbackTitle string, sources []string, cost session.CostBreakdown) *Report {
	citations := buildCitations(sources)

	full := strings.TrimSpace(content)
	if len(citations) > 0 && !strings.Contains(full, "## Sources") {
		var b strings.Builder
		b.WriteString(full)
		b.WriteString("\n\n## Sources\n\n")
		for _, citation := range citations {
			fmt.Fprintf(&b, "[%d] %s\n", citation.ID, citation.URL)
		}
		full = b.String()
	}

	return &Report{
		Title:       extractTitle(content, fallbackTitle),
		Summary:     extractSummary(content),
		FullContent: full,
		Citations:   citations,
		Cost:        cost,
	}
}

func synthesisPrompt(topic string, findings []string, analysis *AnalysisResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Write a research report on:
%s

Rules:
- Markdown, starting with a single "# " title line.
- The opening paragraph answers the core question; detail follows under headings.
- Keep source URLs inline next to the claims they support.
- Where the analysis lists contradictions, present both sides instead of picking one silently.
- Close with the open questions the research could not settle.

Research findings:

%s
`, topic, strings.Join(findings, "\n\n---\n\n"))

	if analysis == nil {
		return b.String()
	}

	if corroborated := analysis.CorroboratedFacts(); len(corroborated) > 0 {
		b.WriteString("\nFacts corroborated by multiple sources:\n")
		for _, fact := range corroborated {
			fmt.Fprintf(&b, "- %s (%s)\n", fact.Content, fact.Source)
		}
	}
	if len(analysis.Contradictions) > 0 {
		b.WriteString("\nContradictions found:\n")
		for _, c := range analysis.Contradictions {
			fmt.Fprintf(&b, "- %q vs %q: %s\n", c.Claim1, c.Claim2, c.Nature)
		}
	}
	if len(analysis.KnowledgeGaps) > 0 {
		b.WriteString("\nKnowledge gaps:\n")
		for _, gap := range analysis.KnowledgeGaps {
			fmt.Fprintf(&b, "- %s\n", gap.Description)
		}
	}

	return b.String()
}

// extractTitle returns the first markdown heading, falling back when none
// exists.
func extractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
	}
	return fallback
}

// extractSummary returns the first non-heading paragraph.
func extractSummary(content string) string {
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, "#") {
			continue
		}
		return truncateForLog(block, 500)
	}
	return ""
}

// buildCitations numbers the distinct non-empty sources in order.
func buildCitations(sources []string) []session.Citation {
	seen := make(map[string]bool, len(sources))
	var citations []session.Citation
	for _, url := range sources {
		url = strings.TrimSpace(url)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		citations = append(citations, session.Citation{ID: len(citations) + 1, URL: url})
	}
	return citations
}
