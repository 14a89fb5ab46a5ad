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
	"strings"
	"testing"

	"github.com/kadirpekel/argus/pkg/llm"
)

// coveredUnion collects every turn accounted for by a summary level or still
// present in working memory.
func coveredUnion(m *Manager) map[int]bool {
	all := make(map[int]bool)
	for _, level := range m.Levels() {
		for turn := range level.CoveredTurns {
			all[turn] = true
		}
	}
	for _, interaction := range m.WorkingMemory() {
		all[interaction.Turn] = true
	}
	return all
}

func assertFullCoverage(t *testing.T, m *Manager) {
	t.Helper()
	covered := coveredUnion(m)
	for turn := 1; turn <= m.TurnCount(); turn++ {
		if !covered[turn] {
			t.Errorf("turn %d not covered by any level or working memory", turn)
		}
	}
	if len(covered) != m.TurnCount() {
		t.Errorf("coverage has %d turns, want %d", len(covered), m.TurnCount())
	}
}

func TestAddInteractionCapsWorkingMemory(t *testing.T) {
	m := NewManager(Config{MaxTokens: 100000, WorkingMemSize: 3}, nil)

	for i := 0; i < 5; i++ {
		m.AddInteraction(llm.RoleUser, "message")
	}

	if got := m.WorkingMemoryLen(); got != 3 {
		t.Fatalf("working memory len = %d, want 3", got)
	}
	wm := m.WorkingMemory()
	if wm[0].Turn != 3 || wm[2].Turn != 5 {
		t.Errorf("working memory turns = %d..%d, want 3..5", wm[0].Turn, wm[2].Turn)
	}

	// Evicted turns are absorbed into L0, not lost.
	levels := m.Levels()
	if levels[0].Text == "" {
		t.Error("L0 empty after eviction")
	}
	if !levels[0].CoveredTurns[1] || !levels[0].CoveredTurns[2] {
		t.Errorf("L0 covered turns = %v, want 1 and 2", levels[0].CoveredTurns)
	}
	assertFullCoverage(t, m)
}

func TestAddInteractionEstimatesTokens(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	m.AddInteraction(llm.RoleUser, strings.Repeat("a", 400))

	if got := m.CurrentTokens(); got != 100 {
		t.Errorf("current tokens = %d, want 100", got)
	}
	if m.TurnCount() != 1 {
		t.Errorf("turn count = %d, want 1", m.TurnCount())
	}
}

func TestShouldFold(t *testing.T) {
	m := NewManager(Config{MaxTokens: 100, WorkingMemSize: 50, FoldThreshold: 0.75}, nil)

	m.AddInteraction(llm.RoleUser, strings.Repeat("a", 200)) // 50 tokens
	if m.ShouldFold() {
		t.Error("ShouldFold true at 50% usage")
	}

	m.AddInteraction(llm.RoleAssistant, strings.Repeat("b", 100)) // 25 more
	if !m.ShouldFold() {
		t.Error("ShouldFold false at exactly the threshold")
	}
}

func TestBuildMessagesOrder(t *testing.T) {
	ctx := context.Background()
	client := newFoldClient(map[string]string{
		"Condense": "condensed summary",
		"Merge":    "consolidated summary",
	})
	m := NewManager(Config{MaxTokens: 1000, WorkingMemSize: 10, SummaryLevels: 3}, client)

	// First era: two turns folded into L0, then consolidated up to L1.
	m.AddInteraction(llm.RoleUser, "early question")
	m.AddInteraction(llm.RoleAssistant, "early answer")
	if err := m.Fold(ctx, FoldDirective{Mode: FoldGranular}); err != nil {
		t.Fatalf("granular fold failed: %v", err)
	}
	if err := m.Fold(ctx, FoldDirective{Mode: FoldDeep, TargetLevel: 0}); err != nil {
		t.Fatalf("deep fold failed: %v", err)
	}

	// Second era: fresh L0 content plus live working memory.
	m.AddInteraction(llm.RoleUser, "mid question")
	if err := m.Fold(ctx, FoldDirective{Mode: FoldGranular}); err != nil {
		t.Fatalf("second granular fold failed: %v", err)
	}
	m.RecordToolCall("search", "results at https://example.com")
	m.AddInteraction(llm.RoleUser, "recent question")
	m.AddInteraction(llm.RoleAssistant, "recent answer")

	messages := m.BuildMessages("SYSTEM PROMPT", "current query")

	want := []struct {
		role   string
		prefix string
	}{
		{llm.RoleSystem, "SYSTEM PROMPT"},
		{llm.RoleSystem, "[Research Context L1]"},
		{llm.RoleSystem, "[Research Context L0]"},
		{llm.RoleSystem, "[Tool History]"},
		{llm.RoleUser, "recent question"},
		{llm.RoleAssistant, "recent answer"},
		{llm.RoleUser, "current query"},
	}
	if len(messages) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(messages), len(want), messages)
	}
	for i, w := range want {
		if messages[i].Role != w.role {
			t.Errorf("message %d role = %s, want %s", i, messages[i].Role, w.role)
		}
		if !strings.HasPrefix(messages[i].Content, w.prefix) {
			t.Errorf("message %d = %q, want prefix %q", i, messages[i].Content, w.prefix)
		}
	}
	if !strings.Contains(messages[3].Content, "search: 1 calls") {
		t.Errorf("tool history = %q, missing search record", messages[3].Content)
	}
}

func TestRecordToolCall(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	m.RecordToolCall("search", "first result")
	m.RecordToolCall("search", strings.Repeat("x", 500))
	m.RecordToolCall("fetch", "page text")
	m.AddKeyFinding("finding one")
	m.AddKeyFinding("finding one")
	m.AddKeyFinding("finding two")

	messages := m.BuildMessages("sys", "query")
	var toolHistory string
	for _, msg := range messages {
		if strings.HasPrefix(msg.Content, "[Tool History]") {
			toolHistory = msg.Content
		}
	}
	if toolHistory == "" {
		t.Fatal("no tool history message")
	}
	if !strings.Contains(toolHistory, "search: 2 calls") {
		t.Errorf("tool history = %q, want search call count 2", toolHistory)
	}
	if !strings.Contains(toolHistory, "fetch: 1 calls") {
		t.Errorf("tool history = %q, want fetch record", toolHistory)
	}
	if strings.Count(toolHistory, "finding one") != 1 {
		t.Errorf("tool history = %q, want deduplicated findings", toolHistory)
	}
	if !strings.Contains(toolHistory, "finding two") {
		t.Errorf("tool history = %q, missing second finding", toolHistory)
	}
	// Long results are kept as prefixes only.
	if strings.Contains(toolHistory, strings.Repeat("x", 300)) {
		t.Error("tool history kept full long result")
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{}, nil)
	if m.config.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default", m.config.MaxTokens)
	}
	if m.config.FoldThreshold != DefaultFoldThreshold {
		t.Errorf("FoldThreshold = %f, want default", m.config.FoldThreshold)
	}
	if len(m.levels) != DefaultSummaryLevels {
		t.Errorf("levels = %d, want %d", len(m.levels), DefaultSummaryLevels)
	}
}
