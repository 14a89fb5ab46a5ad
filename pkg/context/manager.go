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

// Package context maintains an agent's conversation state: a bounded working
// memory of recent turns, a hierarchy of folded summaries, and a compact tool
// history. When the token budget tightens the manager folds history into
// summaries, deciding between folding modes with an LLM call.
package context

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/session"
)

const (
	DefaultMaxTokens      = 120000
	DefaultWorkingMemSize = 50
	DefaultFoldThreshold  = 0.75
	DefaultSummaryLevels  = 3

	toolResultPrefixLen = 200
)

// Config controls the manager's budgets.
type Config struct {
	// MaxTokens is the context budget folds defend.
	MaxTokens int

	// WorkingMemSize caps the number of turns kept verbatim.
	WorkingMemSize int

	// FoldThreshold is the fraction of MaxTokens at which folding triggers.
	FoldThreshold float64

	// SummaryLevels is the number of summary tiers (level 0 is finest).
	SummaryLevels int
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      DefaultMaxTokens,
		WorkingMemSize: DefaultWorkingMemSize,
		FoldThreshold:  DefaultFoldThreshold,
		SummaryLevels:  DefaultSummaryLevels,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.WorkingMemSize <= 0 {
		c.WorkingMemSize = DefaultWorkingMemSize
	}
	if c.FoldThreshold <= 0 || c.FoldThreshold > 1 {
		c.FoldThreshold = DefaultFoldThreshold
	}
	if c.SummaryLevels < 2 {
		c.SummaryLevels = DefaultSummaryLevels
	}
	return c
}

// Interaction is one turn held verbatim in working memory.
type Interaction struct {
	Role      string
	Content   string
	Tokens    int
	Turn      int
	Timestamp time.Time
}

// SummaryLevel is one tier of folded history. Level 0 is the finest; higher
// levels hold consolidations of the levels below.
type SummaryLevel struct {
	Text         string
	Tokens       int
	CoveredTurns map[int]bool
	UpdatedAt    time.Time
}

// ToolRecord is the per-tool slice of tool memory.
type ToolRecord struct {
	Calls      int
	LastResult string
}

// Manager owns one agent's context. All methods are safe for concurrent use,
// though in practice only the owning agent writes. Fold holds the lock across
// its LLM call so no interaction lands mid-fold.
type Manager struct {
	mu sync.Mutex

	config Config
	client llm.ChatClient

	workingMemory []Interaction
	levels        []SummaryLevel
	toolMemory    map[string]*ToolRecord
	toolOrder     []string
	keyFindings   []string
	findingSeen   map[string]bool

	turnCounter   int
	currentTokens int
	foldCost      session.CostBreakdown
}

// NewManager creates a context manager. The client is used for folding
// decisions and summary generation; it may be nil, in which case folds fall
// back to truncation and decisions default to granular.
func NewManager(cfg Config, client llm.ChatClient) *Manager {
	cfg = cfg.withDefaults()
	levels := make([]SummaryLevel, cfg.SummaryLevels)
	for i := range levels {
		levels[i].CoveredTurns = make(map[int]bool)
	}
	return &Manager{
		config:      cfg,
		client:      client,
		levels:      levels,
		toolMemory:  make(map[string]*ToolRecord),
		findingSeen: make(map[string]bool),
	}
}

// AddInteraction appends a turn to working memory, evicting the oldest turns
// beyond capacity. Evicted turns are absorbed into level 0 so no turn ever
// leaves the context untracked.
func (m *Manager) AddInteraction(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turnCounter++
	interaction := Interaction{
		Role:      role,
		Content:   content,
		Tokens:    llm.EstimateTokens(content),
		Turn:      m.turnCounter,
		Timestamp: time.Now(),
	}
	m.workingMemory = append(m.workingMemory, interaction)
	m.currentTokens += interaction.Tokens

	for len(m.workingMemory) > m.config.WorkingMemSize {
		evicted := m.workingMemory[0]
		m.workingMemory = m.workingMemory[1:]
		m.absorbEvicted(evicted)
	}
}

// absorbEvicted folds a turn evicted from working memory into level 0 as a
// raw line, keeping turn coverage intact. Callers hold the lock.
func (m *Manager) absorbEvicted(evicted Interaction) {
	line := fmt.Sprintf("[turn %d, %s] %s", evicted.Turn, evicted.Role, truncate(evicted.Content, toolResultPrefixLen))
	level := &m.levels[0]
	if level.Text == "" {
		level.Text = line
	} else {
		level.Text += "\n" + line
	}
	level.CoveredTurns[evicted.Turn] = true
	level.Tokens = llm.EstimateTokens(level.Text)
	level.UpdatedAt = time.Now()
	m.recomputeTokens()
}

// RecordToolCall updates tool memory with one execution result.
func (m *Manager) RecordToolCall(tool, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.toolMemory[tool]
	if !ok {
		record = &ToolRecord{}
		m.toolMemory[tool] = record
		m.toolOrder = append(m.toolOrder, tool)
	}
	record.Calls++
	record.LastResult = truncate(result, toolResultPrefixLen)
	m.recomputeTokens()
}

// AddKeyFinding records a finding once; duplicates are ignored.
func (m *Manager) AddKeyFinding(finding string) {
	finding = strings.TrimSpace(finding)
	if finding == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findingSeen[finding] {
		return
	}
	m.findingSeen[finding] = true
	m.keyFindings = append(m.keyFindings, finding)
	m.recomputeTokens()
}

// BuildMessages assembles the conversation for the next LLM call. Summaries
// go coarsest first so provider-side head trimming eats the broadest context
// last, then tool history, then working memory verbatim, then the query.
func (m *Manager) BuildMessages(systemPrompt, userQuery string) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}

	for i := len(m.levels) - 1; i >= 0; i-- {
		if m.levels[i].Text == "" {
			continue
		}
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf("[Research Context L%d]\n%s", i, m.levels[i].Text),
		})
	}

	if toolHistory := m.formatToolMemory(); toolHistory != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "[Tool History]\n" + toolHistory,
		})
	}

	for _, interaction := range m.workingMemory {
		messages = append(messages, llm.Message{Role: interaction.Role, Content: interaction.Content})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userQuery})
	return messages
}

// formatToolMemory renders tool usage in first-use order. Callers hold the lock.
func (m *Manager) formatToolMemory() string {
	if len(m.toolOrder) == 0 && len(m.keyFindings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, tool := range m.toolOrder {
		record := m.toolMemory[tool]
		fmt.Fprintf(&b, "- %s: %d calls, last: %s\n", tool, record.Calls, record.LastResult)
	}
	if len(m.keyFindings) > 0 {
		b.WriteString("Key findings:\n")
		for _, finding := range m.keyFindings {
			fmt.Fprintf(&b, "- %s\n", finding)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ShouldFold reports whether the context crossed the fold threshold.
func (m *Manager) ShouldFold() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.currentTokens) >= m.config.FoldThreshold*float64(m.config.MaxTokens)
}

// CurrentTokens returns the manager's running token estimate.
func (m *Manager) CurrentTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTokens
}

// TurnCount returns how many turns were ever appended.
func (m *Manager) TurnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnCounter
}

// WorkingMemoryLen returns the number of turns currently held verbatim.
func (m *Manager) WorkingMemoryLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workingMemory)
}

// WorkingMemory returns a copy of the verbatim turns.
func (m *Manager) WorkingMemory() []Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Interaction{}, m.workingMemory...)
}

// Levels returns a copy of the summary levels.
func (m *Manager) Levels() []SummaryLevel {
	m.mu.Lock()
	defer m.mu.Unlock()

	levels := make([]SummaryLevel, len(m.levels))
	for i, level := range m.levels {
		covered := make(map[int]bool, len(level.CoveredTurns))
		for turn := range level.CoveredTurns {
			covered[turn] = true
		}
		levels[i] = SummaryLevel{
			Text:         level.Text,
			Tokens:       level.Tokens,
			CoveredTurns: covered,
			UpdatedAt:    level.UpdatedAt,
		}
	}
	return levels
}

// FoldCost returns the accumulated cost of folding LLM calls.
func (m *Manager) FoldCost() session.CostBreakdown {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.foldCost
}

// recomputeTokens rebuilds the running estimate from every tracked piece.
// Callers hold the lock.
func (m *Manager) recomputeTokens() {
	total := 0
	for _, interaction := range m.workingMemory {
		total += interaction.Tokens
	}
	for _, level := range m.levels {
		total += level.Tokens
	}
	if toolHistory := m.formatToolMemory(); toolHistory != "" {
		total += llm.EstimateTokens(toolHistory)
	}
	m.currentTokens = total
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
