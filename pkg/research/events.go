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

// Package research is the event-sourced domain of a research session: the
// ResearchState aggregate, the commands that drive it, and the events that
// are its only durable record. State never changes except through Execute,
// and any state is reconstructable by replaying its events in order.
package research

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kadirpekel/argus/pkg/session"
)

// Event types as persisted in the store. The string is the schema of record;
// renaming one breaks replay of existing sessions.
const (
	TypeResearchStarted   = "research.started"
	TypePlanCreated       = "plan.created"
	TypeWorkerStarted     = "worker.started"
	TypeWorkerCompleted   = "worker.completed"
	TypeWorkerFailed      = "worker.failed"
	TypeAnalysisStarted   = "analysis.started"
	TypeAnalysisCompleted = "analysis.completed"
	TypeSynthesisStarted  = "synthesis.started"
	TypeReportGenerated   = "report.generated"
	TypeResearchCompleted = "research.completed"
	TypeResearchFailed    = "research.failed"
	TypeResearchCancelled = "research.cancelled"
	TypeSnapshotTaken     = "snapshot.taken"
)

// Event is the persistence contract every domain event satisfies through its
// embedded BaseEvent.
type Event interface {
	GetID() string
	GetAggregateID() string
	GetVersion() int
	GetType() string
	GetTimestamp() time.Time
}

// BaseEvent carries the envelope fields shared by all domain events.
type BaseEvent struct {
	ID          string    `json:"id"`
	AggregateID string    `json:"aggregate_id"`
	Version     int       `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
}

func (e BaseEvent) GetID() string           { return e.ID }
func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetVersion() int         { return e.Version }
func (e BaseEvent) GetType() string         { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// ResearchConfig is the per-session execution configuration captured at start.
type ResearchConfig struct {
	MaxWorkers int           `json:"max_workers"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// Perspective is the persisted form of one planned research angle.
type Perspective struct {
	Name      string   `json:"name"`
	Focus     string   `json:"focus"`
	Questions []string `json:"questions,omitempty"`
}

// DAGSnapshot is the persisted form of the execution graph.
type DAGSnapshot struct {
	Nodes []DAGNodeSnapshot `json:"nodes"`
}

// DAGNodeSnapshot is one task node of the persisted graph.
type DAGNodeSnapshot struct {
	ID           string   `json:"id"`
	TaskType     string   `json:"task_type"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Status       string   `json:"status"`
}

// ResearchStartedEvent opens a session.
type ResearchStartedEvent struct {
	BaseEvent
	Query  string         `json:"query"`
	Mode   string         `json:"mode"`
	Config ResearchConfig `json:"config"`
}

// PlanCreatedEvent records the research plan and execution graph.
type PlanCreatedEvent struct {
	BaseEvent
	Topic        string                `json:"topic"`
	Brief        string                `json:"brief,omitempty"`
	Perspectives []Perspective         `json:"perspectives"`
	DAGStructure DAGSnapshot           `json:"dag_structure"`
	Cost         session.CostBreakdown `json:"cost"`
}

// WorkerStartedEvent records a sub-researcher claiming its task node.
type WorkerStartedEvent struct {
	BaseEvent
	WorkerID    string `json:"worker_id"`
	WorkerNum   int    `json:"worker_num"`
	Objective   string `json:"objective"`
	Perspective string `json:"perspective,omitempty"`
}

// WorkerCompletedEvent records a finished sub-researcher with its findings.
type WorkerCompletedEvent struct {
	BaseEvent
	WorkerID string                `json:"worker_id"`
	Output   string                `json:"output"`
	Facts    []session.Fact        `json:"facts,omitempty"`
	Sources  []string              `json:"sources,omitempty"`
	Cost     session.CostBreakdown `json:"cost"`
}

// WorkerFailedEvent records a sub-researcher failure. The session continues.
type WorkerFailedEvent struct {
	BaseEvent
	WorkerID string `json:"worker_id"`
	Error    string `json:"error"`
}

// AnalysisStartedEvent marks the transition into cross-validation.
type AnalysisStartedEvent struct {
	BaseEvent
	TotalFacts int `json:"total_facts"`
}

// AnalysisCompletedEvent records validated facts, contradictions, and gaps.
type AnalysisCompletedEvent struct {
	BaseEvent
	ValidatedFacts []session.ValidatedFact `json:"validated_facts,omitempty"`
	Contradictions []session.Contradiction `json:"contradictions,omitempty"`
	KnowledgeGaps  []session.KnowledgeGap  `json:"knowledge_gaps,omitempty"`
	Cost           session.CostBreakdown   `json:"cost"`
}

// SynthesisStartedEvent marks the transition into report writing.
type SynthesisStartedEvent struct {
	BaseEvent
}

// ReportGeneratedEvent records the final report.
type ReportGeneratedEvent struct {
	BaseEvent
	Title       string                `json:"title"`
	Summary     string                `json:"summary"`
	FullContent string                `json:"full_content"`
	Citations   []session.Citation    `json:"citations,omitempty"`
	Cost        session.CostBreakdown `json:"cost"`
}

// ResearchCompletedEvent closes a successful session.
type ResearchCompletedEvent struct {
	BaseEvent
	Duration    time.Duration `json:"duration"`
	SourceCount int           `json:"source_count"`
}

// ResearchFailedEvent closes a session after an unrecoverable phase error.
type ResearchFailedEvent struct {
	BaseEvent
	Error       string `json:"error"`
	FailedPhase string `json:"failed_phase,omitempty"`
}

// ResearchCancelledEvent closes a session on cancellation or timeout.
type ResearchCancelledEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// SnapshotTakenEvent marks that a state snapshot was written at this version.
// It carries no state change; replay treats it as a no-op.
type SnapshotTakenEvent struct {
	BaseEvent
	SnapshotVersion int `json:"snapshot_version"`
}

// DecodeEvent unmarshals a stored event by its type discriminator.
func DecodeEvent(eventType string, data []byte) (Event, error) {
	var (
		event Event
		err   error
	)
	switch eventType {
	case TypeResearchStarted:
		var e ResearchStartedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypePlanCreated:
		var e PlanCreatedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeWorkerStarted:
		var e WorkerStartedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeWorkerCompleted:
		var e WorkerCompletedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeWorkerFailed:
		var e WorkerFailedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeAnalysisStarted:
		var e AnalysisStartedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeAnalysisCompleted:
		var e AnalysisCompletedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeSynthesisStarted:
		var e SynthesisStartedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeReportGenerated:
		var e ReportGeneratedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeResearchCompleted:
		var e ResearchCompletedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeResearchFailed:
		var e ResearchFailedEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeResearchCancelled:
		var e ResearchCancelledEvent
		err = json.Unmarshal(data, &e)
		event = e
	case TypeSnapshotTaken:
		var e SnapshotTakenEvent
		err = json.Unmarshal(data, &e)
		event = e
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", eventType, err)
	}
	return event, nil
}
