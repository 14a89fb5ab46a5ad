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

package session

import "time"

// Fact is a single claim extracted by a sub-researcher.
type Fact struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ToolCall records one tool invocation made during a research loop.
type ToolCall struct {
	Tool      string        `json:"tool"`
	Args      string        `json:"args,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// WorkerContext is the full result of one sub-researcher run. The supervisor
// (or the DAG executor) creates a sub-researcher, drives it to completion, and
// keeps only this value; the sub-researcher itself holds no back-references.
type WorkerContext struct {
	ID          string        `json:"id"`
	Objective   string        `json:"objective"`
	Status      string        `json:"status"`
	Output      string        `json:"output"`
	Facts       []Fact        `json:"facts,omitempty"`
	Sources     []string      `json:"sources,omitempty"`
	RawNotes    []string      `json:"raw_notes,omitempty"`
	ToolCalls   []ToolCall    `json:"tool_calls,omitempty"`
	Iterations  int           `json:"iterations"`
	Cost        CostBreakdown `json:"cost"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
}

// SubInsight is a structured finding the supervisor records per delegation.
type SubInsight struct {
	ID            string    `json:"id"`
	Topic         string    `json:"topic"`
	Finding       string    `json:"finding"`
	Implication   string    `json:"implication,omitempty"`
	SourceURL     string    `json:"source_url,omitempty"`
	Confidence    float64   `json:"confidence"`
	Iteration     int       `json:"iteration"`
	ResearcherNum int       `json:"researcher_num"`
	Timestamp     time.Time `json:"timestamp"`
}
