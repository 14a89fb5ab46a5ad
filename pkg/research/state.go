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

package research

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/argus/pkg/session"
)

// Session statuses. Terminal statuses are complete, failed, and cancelled.
const (
	StatusPending      = "pending"
	StatusPlanning     = "planning"
	StatusSearching    = "searching"
	StatusAnalyzing    = "analyzing"
	StatusSynthesizing = "synthesizing"
	StatusComplete     = "complete"
	StatusFailed       = "failed"
	StatusCancelled    = "cancelled"
)

// Worker and DAG node statuses.
const (
	WorkerPending  = "pending"
	WorkerRunning  = "running"
	WorkerComplete = "complete"
	WorkerFailed   = "failed"
)

// Research modes.
const (
	ModeFast = "fast"
	ModeDeep = "deep"
)

// ResearchState is the aggregate root for a research session. All state
// changes happen through Execute, which validates the command, emits the
// event, and applies it. The exported fields double as the snapshot schema.
type ResearchState struct {
	mu sync.RWMutex

	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	Query  string         `json:"query"`
	Mode   string         `json:"mode"`
	Config ResearchConfig `json:"config"`

	Status   string  `json:"status"`
	Progress float64 `json:"progress"`

	Plan     *PlanState              `json:"plan,omitempty"`
	DAG      *DAGState               `json:"dag,omitempty"`
	Workers  map[string]*WorkerState `json:"workers"`
	Analysis *AnalysisState          `json:"analysis,omitempty"`
	Report   *ReportState            `json:"report,omitempty"`

	Cost session.CostBreakdown `json:"cost"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	uncommittedEvents []Event
}

// PlanState holds the research plan.
type PlanState struct {
	Topic        string        `json:"topic"`
	Brief        string        `json:"brief,omitempty"`
	Perspectives []Perspective `json:"perspectives"`
}

// DAGState holds the execution graph.
type DAGState struct {
	Nodes map[string]*DAGNode `json:"nodes"`
}

// DAGNode is one task in the execution graph.
type DAGNode struct {
	ID           string   `json:"id"`
	TaskType     string   `json:"task_type"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Status       string   `json:"status"`
}

// WorkerState tracks one sub-researcher's execution.
type WorkerState struct {
	ID          string                `json:"id"`
	WorkerNum   int                   `json:"worker_num"`
	Objective   string                `json:"objective"`
	Perspective string                `json:"perspective,omitempty"`
	Status      string                `json:"status"`
	Output      string                `json:"output,omitempty"`
	Facts       []session.Fact        `json:"facts,omitempty"`
	Sources     []string              `json:"sources,omitempty"`
	Cost        session.CostBreakdown `json:"cost"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Error       *string               `json:"error,omitempty"`
}

// AnalysisState holds the cross-validation results.
type AnalysisState struct {
	ValidatedFacts []session.ValidatedFact `json:"validated_facts,omitempty"`
	Contradictions []session.Contradiction `json:"contradictions,omitempty"`
	KnowledgeGaps  []session.KnowledgeGap  `json:"knowledge_gaps,omitempty"`
	Cost           session.CostBreakdown   `json:"cost"`
}

// ReportState holds the final report.
type ReportState struct {
	Title       string                `json:"title"`
	Summary     string                `json:"summary"`
	FullContent string                `json:"full_content"`
	Citations   []session.Citation    `json:"citations,omitempty"`
	Cost        session.CostBreakdown `json:"cost"`
}

// NewResearchState creates a new empty aggregate in status pending.
func NewResearchState(id string) *ResearchState {
	return &ResearchState{
		ID:        id,
		Version:   0,
		CreatedAt: time.Now(),
		Status:    StatusPending,
		Workers:   make(map[string]*WorkerState),
	}
}

// LoadFromEvents reconstructs an aggregate by replaying its full event
// stream. Versions must be gap-free ascending from 1.
func LoadFromEvents(id string, events []Event) (*ResearchState, error) {
	state := NewResearchState(id)
	for i, event := range events {
		if want := i + 1; event.GetVersion() != want {
			return nil, fmt.Errorf("event %d has version %d, want %d", i, event.GetVersion(), want)
		}
		state.apply(event)
	}
	state.uncommittedEvents = nil
	return state, nil
}

// Execute validates the command against the current state, builds the next
// event at version current+1, applies it, and records it as uncommitted.
func (s *ResearchState) Execute(cmd Command) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cmd.Validate(s); err != nil {
		return nil, err
	}

	base := BaseEvent{
		ID:          uuid.NewString(),
		AggregateID: s.ID,
		Version:     s.Version + 1,
		Timestamp:   time.Now(),
		Type:        cmd.eventType(),
	}
	event := cmd.event(s, base)
	s.apply(event)
	s.uncommittedEvents = append(s.uncommittedEvents, event)
	return event, nil
}

// Apply replays an already-validated event onto the state. Used for replay
// and for events originating elsewhere; Execute applies its own events.
func (s *ResearchState) Apply(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(event)
}

func (s *ResearchState) apply(event Event) {
	switch e := event.(type) {
	case ResearchStartedEvent:
		s.Query = e.Query
		s.Mode = e.Mode
		s.Config = e.Config
		s.Status = StatusPlanning
		ts := e.Timestamp
		s.StartedAt = &ts

	case PlanCreatedEvent:
		s.Plan = &PlanState{Topic: e.Topic, Brief: e.Brief, Perspectives: e.Perspectives}
		s.DAG = reconstructDAG(e.DAGStructure)
		s.initializeWorkers(e.Perspectives)
		s.Status = StatusSearching
		s.Cost.Add(e.Cost)

	case WorkerStartedEvent:
		if w, ok := s.Workers[e.WorkerID]; ok {
			w.Status = WorkerRunning
			if e.Objective != "" {
				w.Objective = e.Objective
			}
			ts := e.Timestamp
			w.StartedAt = &ts
		}
		s.setNodeStatus(e.WorkerID, WorkerRunning)

	case WorkerCompletedEvent:
		if w, ok := s.Workers[e.WorkerID]; ok {
			w.Status = WorkerComplete
			w.Output = e.Output
			w.Facts = e.Facts
			w.Sources = e.Sources
			w.Cost = e.Cost
			ts := e.Timestamp
			w.CompletedAt = &ts
		}
		s.setNodeStatus(e.WorkerID, WorkerComplete)
		s.Cost.Add(e.Cost)
		s.updateProgress()

	case WorkerFailedEvent:
		if w, ok := s.Workers[e.WorkerID]; ok {
			w.Status = WorkerFailed
			msg := e.Error
			w.Error = &msg
			ts := e.Timestamp
			w.CompletedAt = &ts
		}
		s.setNodeStatus(e.WorkerID, WorkerFailed)
		s.updateProgress()

	case AnalysisStartedEvent:
		s.Status = StatusAnalyzing

	case AnalysisCompletedEvent:
		s.Analysis = &AnalysisState{
			ValidatedFacts: e.ValidatedFacts,
			Contradictions: e.Contradictions,
			KnowledgeGaps:  e.KnowledgeGaps,
			Cost:           e.Cost,
		}
		s.Cost.Add(e.Cost)

	case SynthesisStartedEvent:
		s.Status = StatusSynthesizing

	case ReportGeneratedEvent:
		s.Report = &ReportState{
			Title:       e.Title,
			Summary:     e.Summary,
			FullContent: e.FullContent,
			Citations:   e.Citations,
			Cost:        e.Cost,
		}
		s.Cost.Add(e.Cost)

	case ResearchCompletedEvent:
		s.Status = StatusComplete
		s.Progress = 1.0
		ts := e.Timestamp
		s.CompletedAt = &ts

	case ResearchFailedEvent:
		s.Status = StatusFailed
		ts := e.Timestamp
		s.CompletedAt = &ts

	case ResearchCancelledEvent:
		s.Status = StatusCancelled
		ts := e.Timestamp
		s.CompletedAt = &ts

	case SnapshotTakenEvent:
		// Marker only, no state change.
	}

	if v := event.GetVersion(); v > 0 {
		s.Version = v
	}
}

// GetUncommittedEvents returns a copy of the events not yet persisted.
func (s *ResearchState) GetUncommittedEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.uncommittedEvents...)
}

// ClearUncommittedEvents marks all pending events as persisted.
func (s *ResearchState) ClearUncommittedEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uncommittedEvents = nil
}

// GetVersion returns the current aggregate version.
func (s *ResearchState) GetVersion() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Version
}

// GetStatus returns the current session status.
func (s *ResearchState) GetStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Snapshot serializes the aggregate state for fast future loads.
func (s *ResearchState) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s)
}

// RestoreFromSnapshot rebuilds an aggregate from snapshot data. Events after
// the snapshot version are applied on top by the caller.
func RestoreFromSnapshot(data []byte) (*ResearchState, error) {
	state := &ResearchState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	if state.Workers == nil {
		state.Workers = make(map[string]*WorkerState)
	}
	return state, nil
}

// terminal reports whether the session reached a final status.
// Callers hold the lock.
func (s *ResearchState) terminal() bool {
	switch s.Status {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// countSources sums sources across all workers. Callers hold the lock.
func (s *ResearchState) countSources() int {
	count := 0
	for _, w := range s.Workers {
		count += len(w.Sources)
	}
	return count
}

// updateProgress recomputes overall progress as the completed share of DAG
// nodes. Callers hold the lock.
func (s *ResearchState) updateProgress() {
	if s.DAG == nil {
		return
	}
	total := len(s.DAG.Nodes)
	completed := 0
	for _, node := range s.DAG.Nodes {
		if node.Status == WorkerComplete {
			completed++
		}
	}
	if total > 0 {
		s.Progress = float64(completed) / float64(total)
	}
}

func (s *ResearchState) setNodeStatus(nodeID, status string) {
	if s.DAG == nil {
		return
	}
	if node, ok := s.DAG.Nodes[nodeID]; ok {
		node.Status = status
	}
}

// reconstructDAG builds the live DAG state from its persisted snapshot.
func reconstructDAG(snapshot DAGSnapshot) *DAGState {
	dag := &DAGState{Nodes: make(map[string]*DAGNode, len(snapshot.Nodes))}
	for _, n := range snapshot.Nodes {
		dag.Nodes[n.ID] = &DAGNode{
			ID:           n.ID,
			TaskType:     n.TaskType,
			Description:  n.Description,
			Dependencies: n.Dependencies,
			Status:       n.Status,
		}
	}
	return dag
}

// initializeWorkers creates one pending worker per perspective, keyed by the
// matching search node id. Callers hold the lock.
func (s *ResearchState) initializeWorkers(perspectives []Perspective) {
	for i, p := range perspectives {
		workerID := fmt.Sprintf("search_%d", i)
		s.Workers[workerID] = &WorkerState{
			ID:          workerID,
			WorkerNum:   i + 1,
			Objective:   p.Focus,
			Perspective: p.Name,
			Status:      WorkerPending,
			Facts:       []session.Fact{},
			Sources:     []string{},
		}
	}
}

// ReadyNodes returns copies of the pending nodes whose dependencies are all
// complete.
func (s *ResearchState) ReadyNodes() []DAGNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.DAG == nil {
		return nil
	}
	var ready []DAGNode
	for _, node := range s.DAG.Nodes {
		if node.Status != WorkerPending {
			continue
		}
		depsComplete := true
		for _, depID := range node.Dependencies {
			dep, ok := s.DAG.Nodes[depID]
			if !ok || dep.Status != WorkerComplete {
				depsComplete = false
				break
			}
		}
		if depsComplete {
			ready = append(ready, *node)
		}
	}
	// Length-first ordering keeps numeric suffixes in sequence
	// (search_2 before search_10).
	sort.Slice(ready, func(i, j int) bool {
		if len(ready[i].ID) != len(ready[j].ID) {
			return len(ready[i].ID) < len(ready[j].ID)
		}
		return ready[i].ID < ready[j].ID
	})
	return ready
}

// AllNodesDone reports whether every DAG node is complete or failed.
func (s *ResearchState) AllNodesDone() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.DAG == nil {
		return true
	}
	for _, node := range s.DAG.Nodes {
		if node.Status != WorkerComplete && node.Status != WorkerFailed {
			return false
		}
	}
	return true
}
