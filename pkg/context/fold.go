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

package context

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/session"
	"github.com/kadirpekel/argus/pkg/tools"
)

// Folding modes.
type FoldMode string

const (
	FoldNone     FoldMode = "NONE"
	FoldGranular FoldMode = "GRANULAR"
	FoldDeep     FoldMode = "DEEP"
)

// FoldDirective is the outcome of a folding decision.
type FoldDirective struct {
	Mode        FoldMode `json:"mode"`
	TargetLevel int      `json:"target_level"`
	Rationale   string   `json:"rationale"`
}

// ErrInvalidFoldTarget marks a deep fold aimed outside the valid level range.
var ErrInvalidFoldTarget = errors.New("invalid fold target")

// ContextError wraps a context-management failure with the operation that hit it.
type ContextError struct {
	Op  string
	Err error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context %s: %v", e.Op, e.Err)
}

func (e *ContextError) Unwrap() error {
	return e.Err
}

const decideFoldingSystemPrompt = `You manage the memory of a research agent. The agent's context is near its token budget and history must be folded into summaries.

Three folding modes exist:
- NONE: context is still manageable, do nothing.
- GRANULAR: compress the verbatim working memory into the finest summary level (L0). Use when recent turns are bulky but the summary levels are still small.
- DEEP: consolidate summary levels 0..target_level into level target_level+1. Use when the lower summary levels themselves have grown large.

Respond with a single JSON object and nothing else:
{"mode": "NONE|GRANULAR|DEEP", "target_level": <level number, DEEP only>, "rationale": "<one sentence>"}`

// DecideFolding asks the LLM which folding mode fits the current state. Any
// failure to obtain or parse a decision degrades to GRANULAR, which is always
// safe.
func (m *Manager) DecideFolding(ctx context.Context) FoldDirective {
	m.mu.Lock()
	client := m.client
	stateDesc := m.describeState()
	m.mu.Unlock()

	if client == nil {
		return FoldDirective{Mode: FoldGranular, Rationale: "no decision client configured"}
	}

	resp, err := client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: decideFoldingSystemPrompt},
		{Role: llm.RoleUser, Content: stateDesc},
	})
	if err != nil {
		return FoldDirective{Mode: FoldGranular, Rationale: fmt.Sprintf("decision failed (%v), defaulting to granular", err)}
	}
	m.addFoldCost(client.GetModel(), resp)

	text := resp.Text()
	raw, ok := firstJSONObject(text)
	if !ok {
		return FoldDirective{Mode: FoldGranular, Rationale: "no JSON decision in response, defaulting to granular"}
	}
	var directive FoldDirective
	if err := json.Unmarshal([]byte(raw), &directive); err != nil {
		return FoldDirective{Mode: FoldGranular, Rationale: "unparseable decision, defaulting to granular"}
	}
	switch directive.Mode {
	case FoldNone, FoldGranular, FoldDeep:
		return directive
	default:
		return FoldDirective{Mode: FoldGranular, Rationale: fmt.Sprintf("unknown mode %q, defaulting to granular", directive.Mode)}
	}
}

// describeState renders the usage snapshot the decision prompt works from.
// Callers hold the lock.
func (m *Manager) describeState() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Token usage: %d of %d (threshold %.0f%%)\n",
		m.currentTokens, m.config.MaxTokens, m.config.FoldThreshold*100)
	fmt.Fprintf(&b, "Working memory: %d turns\n", len(m.workingMemory))
	for i, level := range m.levels {
		fmt.Fprintf(&b, "Summary L%d: %d tokens, %d turns covered\n", i, level.Tokens, len(level.CoveredTurns))
	}
	fmt.Fprintf(&b, "Valid DEEP targets: 0..%d\n", len(m.levels)-2)
	return b.String()
}

// Fold executes a folding directive. The manager lock is held across the
// summary LLM call so no interaction lands mid-fold.
func (m *Manager) Fold(ctx context.Context, directive FoldDirective) error {
	switch directive.Mode {
	case FoldNone:
		return nil
	case FoldGranular:
		m.mu.Lock()
		defer m.mu.Unlock()
		m.granularFold(ctx)
		return nil
	case FoldDeep:
		m.mu.Lock()
		defer m.mu.Unlock()
		if directive.TargetLevel < 0 || directive.TargetLevel > len(m.levels)-2 {
			return &ContextError{Op: "deep fold", Err: fmt.Errorf("%w: level %d outside 0..%d",
				ErrInvalidFoldTarget, directive.TargetLevel, len(m.levels)-2)}
		}
		m.deepFold(ctx, directive.TargetLevel)
		return nil
	default:
		return &ContextError{Op: "fold", Err: fmt.Errorf("unknown fold mode %q", directive.Mode)}
	}
}

// MaybeFold runs the full check-decide-fold cycle an agent performs between
// iterations. A deep fold rejected for its target downgrades to granular.
// Returns whether a fold ran.
func (m *Manager) MaybeFold(ctx context.Context) (bool, error) {
	if !m.ShouldFold() {
		return false, nil
	}
	directive := m.DecideFolding(ctx)
	if directive.Mode == FoldNone {
		return false, nil
	}
	err := m.Fold(ctx, directive)
	if err != nil && errors.Is(err, ErrInvalidFoldTarget) {
		err = m.Fold(ctx, FoldDirective{Mode: FoldGranular, Rationale: "downgraded from invalid deep fold"})
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// granularFold compresses the whole working memory into level 0.
// Callers hold the lock.
func (m *Manager) granularFold(ctx context.Context) {
	if len(m.workingMemory) == 0 {
		return
	}

	transcript := m.renderWorkingMemory()
	summary, ok := m.summarize(ctx, condensePrompt(transcript))
	if !ok {
		// Lossy but bounded: keep a raw prefix rather than nothing.
		summary = truncate(transcript, 1000)
	}

	level := &m.levels[0]
	if level.Text == "" {
		level.Text = summary
	} else {
		level.Text += "\n\n" + summary
	}
	for _, interaction := range m.workingMemory {
		level.CoveredTurns[interaction.Turn] = true
	}
	level.Tokens = llm.EstimateTokens(level.Text)
	level.UpdatedAt = time.Now()

	m.workingMemory = nil
	m.recomputeTokens()
}

// deepFold consolidates levels 0..target into level target+1.
// Callers hold the lock; target is already validated.
func (m *Manager) deepFold(ctx context.Context, target int) {
	var parts []string
	for i := 0; i <= target; i++ {
		if m.levels[i].Text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## Level %d\n%s", i, m.levels[i].Text))
	}
	if len(parts) == 0 {
		return
	}

	combined := strings.Join(parts, "\n\n")
	summary, ok := m.summarize(ctx, consolidatePrompt(combined))
	if !ok {
		summary = truncate(combined, 1000)
	}

	dest := &m.levels[target+1]
	if dest.Text == "" {
		dest.Text = summary
	} else {
		dest.Text += "\n\n" + summary
	}
	for i := 0; i <= target; i++ {
		for turn := range m.levels[i].CoveredTurns {
			dest.CoveredTurns[turn] = true
		}
		m.levels[i].Text = ""
		m.levels[i].Tokens = 0
		m.levels[i].CoveredTurns = make(map[int]bool)
		m.levels[i].UpdatedAt = time.Now()
	}
	dest.Tokens = llm.EstimateTokens(dest.Text)
	dest.UpdatedAt = time.Now()

	m.recomputeTokens()
}

// renderWorkingMemory flattens working memory for compression, with think-tool
// markup stripped so reflections are not summarized as findings.
// Callers hold the lock.
func (m *Manager) renderWorkingMemory() string {
	var b strings.Builder
	for _, interaction := range m.workingMemory {
		content := tools.FilterThinkToolCalls(interaction.Content)
		fmt.Fprintf(&b, "[turn %d] %s: %s\n", interaction.Turn, interaction.Role, content)
	}
	return b.String()
}

// summarize runs one folding LLM call, recording its cost. Callers hold the
// lock; the call deliberately happens under it.
func (m *Manager) summarize(ctx context.Context, prompt string) (string, bool) {
	if m.client == nil {
		return "", false
	}
	resp, err := m.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", false
	}
	m.foldCost.Add(session.NewCostBreakdown(m.client.GetModel(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens))
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", false
	}
	return text, true
}

// addFoldCost records the cost of a decision call made outside the lock.
func (m *Manager) addFoldCost(model string, resp *llm.ChatResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foldCost.Add(session.NewCostBreakdown(model,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens))
}

func condensePrompt(transcript string) string {
	return fmt.Sprintf(`Condense this research conversation into a dense summary. Preserve every concrete finding, source URL, number, and decision. Drop pleasantries, retries, and dead ends. Write plain prose, no preamble.

Conversation:
%s`, transcript)
}

func consolidatePrompt(summaries string) string {
	return fmt.Sprintf(`Merge these layered research summaries into one consolidated summary. Keep all distinct findings and source URLs, collapse repetition, and prefer the most recent phrasing where layers disagree. Write plain prose, no preamble.

%s`, summaries)
}

// firstJSONObject extracts the first balanced {...} from text, respecting
// string literals and escapes.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
