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
	"fmt"
	"time"

	"github.com/kadirpekel/argus/pkg/session"
)

// ValidationError reports a command rejected by the aggregate's state machine.
// It is returned synchronously from Execute; nothing is persisted.
type ValidationError struct {
	Command string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Command, e.Message)
}

// NewValidationError creates a ValidationError for a command.
func NewValidationError(command, message string) *ValidationError {
	return &ValidationError{Command: command, Message: message}
}

// Command is a requested state change. Validate is called by Execute with the
// aggregate lock held; event builds the resulting domain event. The command
// set is closed: only this package can implement the interface.
type Command interface {
	Validate(s *ResearchState) error
	eventType() string
	event(s *ResearchState, base BaseEvent) Event
}

// StartResearchCommand opens a new session.
type StartResearchCommand struct {
	Query  string
	Mode   string
	Config ResearchConfig
}

func (c StartResearchCommand) Validate(s *ResearchState) error {
	if s.Status != StatusPending {
		return NewValidationError("StartResearch", fmt.Sprintf("research already started (status %s)", s.Status))
	}
	if c.Query == "" {
		return NewValidationError("StartResearch", "query must not be empty")
	}
	if c.Mode != ModeFast && c.Mode != ModeDeep {
		return NewValidationError("StartResearch", fmt.Sprintf("unknown mode %q", c.Mode))
	}
	return nil
}

func (c StartResearchCommand) eventType() string { return TypeResearchStarted }

func (c StartResearchCommand) event(_ *ResearchState, base BaseEvent) Event {
	return ResearchStartedEvent{BaseEvent: base, Query: c.Query, Mode: c.Mode, Config: c.Config}
}

// SetPlanCommand records the plan produced by the planner.
type SetPlanCommand struct {
	Topic        string
	Brief        string
	Perspectives []Perspective
	DAGStructure DAGSnapshot
	Cost         session.CostBreakdown
}

func (c SetPlanCommand) Validate(s *ResearchState) error {
	if s.Status != StatusPending && s.Status != StatusPlanning {
		return NewValidationError("SetPlan", fmt.Sprintf("cannot set plan in status %s", s.Status))
	}
	if len(c.Perspectives) == 0 {
		return NewValidationError("SetPlan", "plan needs at least one perspective")
	}
	return nil
}

func (c SetPlanCommand) eventType() string { return TypePlanCreated }

func (c SetPlanCommand) event(_ *ResearchState, base BaseEvent) Event {
	return PlanCreatedEvent{
		BaseEvent:    base,
		Topic:        c.Topic,
		Brief:        c.Brief,
		Perspectives: c.Perspectives,
		DAGStructure: c.DAGStructure,
		Cost:         c.Cost,
	}
}

// StartWorkerCommand marks a planned worker as running.
type StartWorkerCommand struct {
	WorkerID    string
	WorkerNum   int
	Objective   string
	Perspective string
}

func (c StartWorkerCommand) Validate(s *ResearchState) error {
	if s.Status != StatusSearching {
		return NewValidationError("StartWorker", fmt.Sprintf("cannot start worker in status %s", s.Status))
	}
	w, ok := s.Workers[c.WorkerID]
	if !ok {
		return NewValidationError("StartWorker", fmt.Sprintf("unknown worker %s", c.WorkerID))
	}
	if w.Status != WorkerPending {
		return NewValidationError("StartWorker", fmt.Sprintf("worker %s is %s, not pending", c.WorkerID, w.Status))
	}
	return nil
}

func (c StartWorkerCommand) eventType() string { return TypeWorkerStarted }

func (c StartWorkerCommand) event(_ *ResearchState, base BaseEvent) Event {
	return WorkerStartedEvent{
		BaseEvent:   base,
		WorkerID:    c.WorkerID,
		WorkerNum:   c.WorkerNum,
		Objective:   c.Objective,
		Perspective: c.Perspective,
	}
}

// CompleteWorkerCommand records a worker's findings.
type CompleteWorkerCommand struct {
	WorkerID string
	Output   string
	Facts    []session.Fact
	Sources  []string
	Cost     session.CostBreakdown
}

func (c CompleteWorkerCommand) Validate(s *ResearchState) error {
	w, ok := s.Workers[c.WorkerID]
	if !ok {
		return NewValidationError("CompleteWorker", fmt.Sprintf("unknown worker %s", c.WorkerID))
	}
	if w.Status != WorkerRunning {
		return NewValidationError("CompleteWorker", fmt.Sprintf("worker %s is %s, not running", c.WorkerID, w.Status))
	}
	return nil
}

func (c CompleteWorkerCommand) eventType() string { return TypeWorkerCompleted }

func (c CompleteWorkerCommand) event(_ *ResearchState, base BaseEvent) Event {
	return WorkerCompletedEvent{
		BaseEvent: base,
		WorkerID:  c.WorkerID,
		Output:    c.Output,
		Facts:     c.Facts,
		Sources:   c.Sources,
		Cost:      c.Cost,
	}
}

// FailWorkerCommand records a worker failure. The session keeps going.
type FailWorkerCommand struct {
	WorkerID string
	Error    string
}

func (c FailWorkerCommand) Validate(s *ResearchState) error {
	w, ok := s.Workers[c.WorkerID]
	if !ok {
		return NewValidationError("FailWorker", fmt.Sprintf("unknown worker %s", c.WorkerID))
	}
	if w.Status != WorkerRunning {
		return NewValidationError("FailWorker", fmt.Sprintf("worker %s is %s, not running", c.WorkerID, w.Status))
	}
	return nil
}

func (c FailWorkerCommand) eventType() string { return TypeWorkerFailed }

func (c FailWorkerCommand) event(_ *ResearchState, base BaseEvent) Event {
	return WorkerFailedEvent{BaseEvent: base, WorkerID: c.WorkerID, Error: c.Error}
}

// StartAnalysisCommand moves the session into the analysis phase.
type StartAnalysisCommand struct {
	TotalFacts int
}

func (c StartAnalysisCommand) Validate(s *ResearchState) error {
	if s.Status != StatusSearching {
		return NewValidationError("StartAnalysis", fmt.Sprintf("cannot start analysis in status %s", s.Status))
	}
	return nil
}

func (c StartAnalysisCommand) eventType() string { return TypeAnalysisStarted }

func (c StartAnalysisCommand) event(_ *ResearchState, base BaseEvent) Event {
	return AnalysisStartedEvent{BaseEvent: base, TotalFacts: c.TotalFacts}
}

// SetAnalysisCommand records the analysis results.
type SetAnalysisCommand struct {
	ValidatedFacts []session.ValidatedFact
	Contradictions []session.Contradiction
	KnowledgeGaps  []session.KnowledgeGap
	Cost           session.CostBreakdown
}

func (c SetAnalysisCommand) Validate(s *ResearchState) error {
	if s.Status != StatusAnalyzing {
		return NewValidationError("SetAnalysis", fmt.Sprintf("cannot set analysis in status %s", s.Status))
	}
	return nil
}

func (c SetAnalysisCommand) eventType() string { return TypeAnalysisCompleted }

func (c SetAnalysisCommand) event(_ *ResearchState, base BaseEvent) Event {
	return AnalysisCompletedEvent{
		BaseEvent:      base,
		ValidatedFacts: c.ValidatedFacts,
		Contradictions: c.Contradictions,
		KnowledgeGaps:  c.KnowledgeGaps,
		Cost:           c.Cost,
	}
}

// StartSynthesisCommand moves the session into report writing.
type StartSynthesisCommand struct{}

func (c StartSynthesisCommand) Validate(s *ResearchState) error {
	if s.Status != StatusAnalyzing {
		return NewValidationError("StartSynthesis", fmt.Sprintf("cannot start synthesis in status %s", s.Status))
	}
	return nil
}

func (c StartSynthesisCommand) eventType() string { return TypeSynthesisStarted }

func (c StartSynthesisCommand) event(_ *ResearchState, base BaseEvent) Event {
	return SynthesisStartedEvent{BaseEvent: base}
}

// SetReportCommand records the final report.
type SetReportCommand struct {
	Title       string
	Summary     string
	FullContent string
	Citations   []session.Citation
	Cost        session.CostBreakdown
}

func (c SetReportCommand) Validate(s *ResearchState) error {
	if s.Status != StatusSynthesizing {
		return NewValidationError("SetReport", fmt.Sprintf("cannot set report in status %s", s.Status))
	}
	return nil
}

func (c SetReportCommand) eventType() string { return TypeReportGenerated }

func (c SetReportCommand) event(_ *ResearchState, base BaseEvent) Event {
	return ReportGeneratedEvent{
		BaseEvent:   base,
		Title:       c.Title,
		Summary:     c.Summary,
		FullContent: c.FullContent,
		Citations:   c.Citations,
		Cost:        c.Cost,
	}
}

// CompleteResearchCommand closes a successful session.
type CompleteResearchCommand struct {
	Duration time.Duration
}

func (c CompleteResearchCommand) Validate(s *ResearchState) error {
	if s.terminal() {
		return NewValidationError("CompleteResearch", fmt.Sprintf("research already in terminal status %s", s.Status))
	}
	return nil
}

func (c CompleteResearchCommand) eventType() string { return TypeResearchCompleted }

func (c CompleteResearchCommand) event(s *ResearchState, base BaseEvent) Event {
	return ResearchCompletedEvent{BaseEvent: base, Duration: c.Duration, SourceCount: s.countSources()}
}

// FailResearchCommand closes a session after an unrecoverable phase error.
type FailResearchCommand struct {
	Error string
	Phase string
}

func (c FailResearchCommand) Validate(s *ResearchState) error {
	if s.terminal() {
		return NewValidationError("FailResearch", fmt.Sprintf("research already in terminal status %s", s.Status))
	}
	return nil
}

func (c FailResearchCommand) eventType() string { return TypeResearchFailed }

func (c FailResearchCommand) event(_ *ResearchState, base BaseEvent) Event {
	return ResearchFailedEvent{BaseEvent: base, Error: c.Error, FailedPhase: c.Phase}
}

// CancelResearchCommand closes a session on cancellation or timeout.
type CancelResearchCommand struct {
	Reason string
}

func (c CancelResearchCommand) Validate(s *ResearchState) error {
	if s.terminal() {
		return NewValidationError("CancelResearch", fmt.Sprintf("research already in terminal status %s", s.Status))
	}
	return nil
}

func (c CancelResearchCommand) eventType() string { return TypeResearchCancelled }

func (c CancelResearchCommand) event(_ *ResearchState, base BaseEvent) Event {
	return ResearchCancelledEvent{BaseEvent: base, Reason: c.Reason}
}

// TakeSnapshotCommand marks a snapshot point. Valid in any status.
type TakeSnapshotCommand struct{}

func (c TakeSnapshotCommand) Validate(_ *ResearchState) error { return nil }

func (c TakeSnapshotCommand) eventType() string { return TypeSnapshotTaken }

func (c TakeSnapshotCommand) event(s *ResearchState, base BaseEvent) Event {
	return SnapshotTakenEvent{BaseEvent: base, SnapshotVersion: s.Version + 1}
}
