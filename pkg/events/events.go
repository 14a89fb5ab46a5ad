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

// Package events provides the in-process progress bus that connects the
// research pipeline to its observers (REPL display, log sinks, tests).
// Bus events are ephemeral UI signals; the durable record of a session is
// the event store, not this bus.
package events

import "time"

// EventType identifies the kind of progress event.
type EventType string

// Pipeline lifecycle events, published by the orchestrator.
const (
	EventResearchStarted   EventType = "research_started"
	EventQueryAnalyzed     EventType = "query_analyzed"
	EventPlanCreated       EventType = "plan_created"
	EventWorkerStarted     EventType = "worker_started"
	EventWorkerProgress    EventType = "worker_progress"
	EventWorkerComplete    EventType = "worker_complete"
	EventWorkerFailed      EventType = "worker_failed"
	EventAnalysisStarted   EventType = "analysis_started"
	EventAnalysisProgress  EventType = "analysis_progress"
	EventAnalysisComplete  EventType = "analysis_complete"
	EventSynthesisStarted  EventType = "synthesis_started"
	EventSynthesisComplete EventType = "synthesis_complete"
	EventResearchComplete  EventType = "research_complete"
	EventCostUpdated       EventType = "cost_updated"
)

// Sub-researcher loop events, published per iteration.
const (
	EventIterationStarted EventType = "iteration_started"
	EventLLMChunk         EventType = "llm_chunk"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventAnswerFound      EventType = "answer_found"
)

// Supervisor diffusion events, published in deep mode.
const (
	EventDiffusionStarted        EventType = "diffusion_started"
	EventDiffusionIterationStart EventType = "diffusion_iteration_start"
	EventDiffusionComplete       EventType = "diffusion_complete"
	EventResearchDelegated       EventType = "research_delegated"
	EventDraftRefined            EventType = "draft_refined"
	EventFinalReportStarted      EventType = "final_report_started"
	EventFinalReportComplete     EventType = "final_report_complete"
)

// Event is the envelope published on the Bus. Data holds one of the typed
// payloads below, or an ad-hoc map for events that carry only display hints.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// ResearchStartedData announces a new session. SessionID is what resume
// takes, so displays should surface it early.
type ResearchStartedData struct {
	SessionID string
	Query     string
	Mode      string
}

// PerspectiveData mirrors a planned research perspective for display.
type PerspectiveData struct {
	Name      string
	Focus     string
	Questions []string
}

// DAGNodeData mirrors one task node of the research plan for display.
type DAGNodeData struct {
	ID           string
	TaskType     string
	Description  string
	Dependencies []string
	Status       string
}

// PlanCreatedData carries the finished plan.
type PlanCreatedData struct {
	WorkerCount  int
	Complexity   float64
	Topic        string
	Perspectives []PerspectiveData
	DAGNodes     []DAGNodeData
}

// WorkerProgressData reports a sub-researcher's lifecycle transitions.
type WorkerProgressData struct {
	WorkerID  string
	WorkerNum int
	Objective string
	Status    string
	Message   string
}

// CostUpdateData reports accumulated token usage and cost for a scope
// ("iteration", "phase", "total").
type CostUpdateData struct {
	Scope        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	InputCost    float64
	OutputCost   float64
	TotalCost    float64
}

// LLMChunkData streams model output live. A final chunk with Done set and an
// empty Chunk marks the end of one streamed response.
type LLMChunkData struct {
	WorkerID  string
	WorkerNum int
	Chunk     string
	Done      bool
}

// ToolCallData announces a tool invocation before it runs.
type ToolCallData struct {
	WorkerID  string
	WorkerNum int
	Tool      string
	Args      map[string]interface{}
}

// ToolResultData reports a finished tool invocation with a short preview of
// its output.
type ToolResultData struct {
	WorkerID string
	Tool     string
	Success  bool
	Preview  string
}

// DiffusionStartedData announces the start of a supervisor diffusion run.
type DiffusionStartedData struct {
	Topic         string
	MaxIterations int
}

// DiffusionIterationData reports one supervisor iteration.
type DiffusionIterationData struct {
	Iteration     int
	MaxIterations int
	NotesCount    int
	DraftProgress float64
	Phase         string
	Message       string
}

// SubResearcherData reports a delegation to a sub-researcher.
type SubResearcherData struct {
	Topic         string
	ResearcherNum int
	Iteration     int
	MaxIterations int
	Status        string
	SourcesFound  int
}

// DraftRefinedData reports a draft refinement step.
type DraftRefinedData struct {
	Iteration       int
	SectionsUpdated int
	NewSources      int
	Progress        float64
}
