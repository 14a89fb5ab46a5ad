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
	"strings"

	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/session"
)

// SupervisorState accumulates everything the diffusion loop produces: the
// conversation with the lead-researcher model, compressed and raw notes from
// sub-researchers, the evolving draft, and the set of URLs already visited.
// The supervisor mutates it sequentially; it is not safe for concurrent use.
type SupervisorState struct {
	// ResearchBrief is the expanded brief the loop works against.
	ResearchBrief string

	// Messages is the supervisor conversation after the initial context.
	Messages []llm.Message

	// Notes holds compressed findings, one entry per completed delegation.
	Notes []string

	// RawNotes holds unprocessed tool results backing the notes.
	RawNotes []string

	// DraftReport is the current draft, replaced wholesale on refinement.
	DraftReport string

	// VisitedURLs lists distinct URLs touched by any sub-researcher, in
	// first-seen order. Later sub-researchers receive it to avoid rework.
	VisitedURLs []string

	// SubInsights records one structured insight per delegation.
	SubInsights []session.SubInsight

	// Iterations counts diffusion iterations started.
	Iterations int

	seenURLs map[string]bool
}

// NewSupervisorState creates the state for one diffusion run.
func NewSupervisorState(brief string) *SupervisorState {
	return &SupervisorState{
		ResearchBrief: brief,
		seenURLs:      make(map[string]bool),
	}
}

// UpdateDraft replaces the draft report.
func (s *SupervisorState) UpdateDraft(draft string) {
	s.DraftReport = draft
}

// AddMessage appends a turn to the supervisor conversation.
func (s *SupervisorState) AddMessage(msg llm.Message) {
	s.Messages = append(s.Messages, msg)
}

// AddNote records one compressed research finding. Empty notes are dropped.
func (s *SupervisorState) AddNote(note string) {
	if strings.TrimSpace(note) == "" {
		return
	}
	s.Notes = append(s.Notes, note)
}

// AddRawNote records one raw tool result.
func (s *SupervisorState) AddRawNote(note string) {
	if strings.TrimSpace(note) == "" {
		return
	}
	s.RawNotes = append(s.RawNotes, note)
}

// AddVisitedURLs merges URLs into the visited set, keeping first-seen order.
func (s *SupervisorState) AddVisitedURLs(urls []string) {
	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" || s.seenURLs[url] {
			continue
		}
		s.seenURLs[url] = true
		s.VisitedURLs = append(s.VisitedURLs, url)
	}
}

// AddSubInsight records a structured insight from one delegation.
func (s *SupervisorState) AddSubInsight(insight session.SubInsight) {
	s.SubInsights = append(s.SubInsights, insight)
}

// IncrementIteration advances the diffusion iteration counter.
func (s *SupervisorState) IncrementIteration() {
	s.Iterations++
}
