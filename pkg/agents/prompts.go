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

import "fmt"

// TransformToResearchBriefPrompt expands a raw user query into a structured
// research brief.
func TransformToResearchBriefPrompt(query, date string) string {
	return fmt.Sprintf(`You are a research strategist. Today's date is %s.

Transform the user's query into a detailed research brief that a team of
researchers can execute without further clarification. The brief must state:
1. The core question, in one sentence.
2. The concrete objectives: what a complete answer has to cover.
3. Key sub-questions, each specific enough to search for.
4. Scope boundaries: what is explicitly out of scope.
5. Quality bar: what kinds of sources and evidence the answer needs.

Resolve vague wording into your best concrete interpretation instead of asking
back. Write the brief in plain prose with short sections, no preamble.

User query:
%s`, date, query)
}

// InitialDraftPrompt produces the first-pass draft from model knowledge only.
// The draft seeds the diffusion loop; gaps it marks become research targets.
func InitialDraftPrompt(brief, date string) string {
	return fmt.Sprintf(`Today's date is %s.

Write a first-pass draft report for the research brief below using only your
own knowledge. Do not invent citations or URLs. Structure the draft with
markdown headings, state clearly what you are confident about, and mark every
claim that needs verification or fresher data with [NEEDS RESEARCH] so that
targeted research can fill it in.

<Research Brief>
%s
</Research Brief>

Return the complete draft in markdown, nothing else.`, date, brief)
}

// LeadResearcherPrompt is the supervisor's system prompt. It describes the
// diffusion loop and the restricted tool set the supervisor may call.
func LeadResearcherPrompt(date string, maxConcurrent, maxIterations int) string {
	return fmt.Sprintf(`You are the lead researcher coordinating a team of research sub-agents. Today's date is %s.

You improve a draft report by test-time diffusion: the draft starts noisy and
incomplete, and each round of research denoises it. Per round you inspect the
draft, identify the weakest or least supported sections, delegate targeted
research, and fold the findings back into the draft.

Call tools using this exact markup, one tag per call:
<tool name="NAME">{"arg": "value"}</tool>

Available tools:

## conduct_research
Delegate a research task to a specialized sub-agent. The sub-agent searches
the web and compiles findings on the topic.
Args: {"research_topic": "Detailed paragraph describing what to research"}

## refine_draft
Rewrite the draft report to incorporate all accumulated research findings.
Call this after research rounds, not before any findings exist.
Args: {}

## think
Strategic reflection on research progress. Use it to analyze results and plan
the next round.
Args: {"reflection": "Your reflection on findings, gaps, and next steps"}

## research_complete
Signal that research is complete. Use only when the findings are
comprehensive. Do not call it because the draft merely looks finished; judge
the findings, not the prose.
Args: {}

Rules:
- You may issue several conduct_research calls in one turn; up to %d run in
  parallel. Make parallel topics non-overlapping.
- You have at most %d iterations in total. Budget them: broad gaps first,
  refinements later.
- Prefer one focused research_topic per genuine gap over many shallow ones.
- After new findings arrive, call refine_draft before delegating more.`, date, maxConcurrent, maxIterations)
}

// RefineDraftPrompt rewrites the draft with accumulated findings folded in.
func RefineDraftPrompt(brief, draft, findings string) string {
	return fmt.Sprintf(`Refine the draft report below by incorporating the research findings.

Keep the draft's structure unless the findings demand a change. Replace
[NEEDS RESEARCH] markers with researched content wherever the findings cover
them. Keep source URLs from the findings inline next to the claims they
support. Remove nothing that is still correct and unreplaced.

<Research Brief>
%s
</Research Brief>

<Current Draft Report>
%s
</Current Draft Report>

<New Findings>
%s
</New Findings>

Return the complete refined draft in markdown, nothing else.`, brief, draft, findings)
}

// FinalReportPrompt produces the fully optimized final report from the brief,
// the deduplicated findings, and the refined draft.
func FinalReportPrompt(brief, findings, draft, date string) string {
	return fmt.Sprintf(`Today's date is %s.

Write the final research report for the brief below, drawing on the refined
draft and the verified research findings.

Insightfulness rules:
- Lead every section with the finding, not the methodology.
- Surface non-obvious connections and tensions between sources; do not just
  enumerate them.
- Quantify wherever the findings allow; vague qualifiers only where the
  evidence is genuinely vague.

Helpfulness rules:
- Answer the brief's core question in the opening paragraph.
- Structure with markdown headings a reader can navigate by.
- Keep inline source URLs next to the claims they support.
- State remaining unknowns honestly in a closing section instead of papering
  over them.

<Research Brief>
%s
</Research Brief>

<Research Findings>
%s
</Research Findings>

<Draft Report>
%s
</Draft Report>

Return the complete report in markdown, nothing else.`, date, brief, findings, draft)
}

// subResearcherSystemPrompt drives the ReAct loop of one sub-researcher.
// The catalog is the rendered tool registry.
func subResearcherSystemPrompt(catalog, date string) string {
	return fmt.Sprintf(`You are a research sub-agent. Today's date is %s.

Work in a loop of thought, action, and observation:
1. Reason about what you know and what is missing inside <thought></thought> tags.
2. Act by calling a tool with <tool name="NAME">{"arg": "value"}</tool> markup.
   You may call several tools in one turn.
3. Observe the tool results and repeat.

When your findings answer the objective, stop calling tools and write your
final compressed research inside <answer></answer> tags. The answer must be
self-contained: every load-bearing fact with the source URL that backs it.

Available tools:

%s`, date, catalog)
}

// extractFactsPrompt pulls discrete claims out of a final answer.
func extractFactsPrompt(answer string) string {
	return fmt.Sprintf(`Extract the discrete factual claims from the research summary below.

Respond with a single JSON array and nothing else:
[{"content": "the claim", "confidence": 0.85, "source": "https://..."}]

Rules:
- One self-contained claim per entry.
- confidence in [0,1] reflects how strongly the summary supports the claim.
- source is the URL backing the claim, or "" when none is given.

Research summary:
%s`, answer)
}
