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

// Package cli renders research progress and reports for the terminal and
// hosts the interactive shell. The renderer consumes bus events; the durable
// session record always comes from the event store.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/kadirpekel/argus/pkg/events"
	"github.com/kadirpekel/argus/pkg/research"
)

// Renderer turns bus events into terminal output. Verbose mode additionally
// streams model chunks and tool activity; the default shows lifecycle
// transitions only.
type Renderer struct {
	out     io.Writer
	verbose bool

	header *color.Color
	ok     *color.Color
	warn   *color.Color
	fail   *color.Color
	dim    *color.Color

	mu        sync.Mutex
	streaming bool
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer, verbose bool) *Renderer {
	return &Renderer{
		out:     out,
		verbose: verbose,
		header:  color.New(color.FgCyan, color.Bold),
		ok:      color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed),
		dim:     color.New(color.Faint),
	}
}

// Watch renders every event from the channel until it closes.
func (r *Renderer) Watch(ch <-chan events.Event) {
	for event := range ch {
		r.Render(event)
	}
}

// Render writes one event's representation.
func (r *Renderer) Render(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Type != events.EventLLMChunk {
		r.endStream()
	}

	switch event.Type {
	case events.EventResearchStarted:
		if d, ok := event.Data.(events.ResearchStartedData); ok {
			r.header.Fprintf(r.out, "Research started (%s mode)\n", d.Mode)
			fmt.Fprintf(r.out, "  Session: %s\n", d.SessionID)
			fmt.Fprintf(r.out, "  Query:   %s\n", d.Query)
		}

	case events.EventPlanCreated:
		if d, ok := event.Data.(events.PlanCreatedData); ok {
			r.header.Fprintf(r.out, "Plan: %s\n", d.Topic)
			for i, p := range d.Perspectives {
				fmt.Fprintf(r.out, "  %d. %s", i+1, p.Name)
				if p.Focus != "" && p.Focus != p.Name {
					r.dim.Fprintf(r.out, " (%s)", p.Focus)
				}
				fmt.Fprintln(r.out)
			}
		}

	case events.EventWorkerStarted:
		if d, ok := event.Data.(events.WorkerProgressData); ok {
			fmt.Fprintf(r.out, "%s worker %d: %s\n", r.warn.Sprint("●"), d.WorkerNum, d.Objective)
		}

	case events.EventWorkerComplete:
		if d, ok := event.Data.(events.WorkerProgressData); ok {
			fmt.Fprintf(r.out, "%s %s done\n", r.ok.Sprint("✔"), d.WorkerID)
		}

	case events.EventWorkerFailed:
		if d, ok := event.Data.(events.WorkerProgressData); ok {
			fmt.Fprintf(r.out, "%s %s failed: %s\n", r.fail.Sprint("✘"), d.WorkerID, d.Message)
		}

	case events.EventAnalysisStarted:
		r.header.Fprintf(r.out, "Analyzing %v facts\n", mapValue(event.Data, "total_facts"))

	case events.EventAnalysisProgress:
		if r.verbose {
			r.dim.Fprintf(r.out, "  %v\n", mapValue(event.Data, "message"))
		}

	case events.EventAnalysisComplete:
		fmt.Fprintf(r.out, "%s analysis: %v contradictions, %v gaps\n",
			r.ok.Sprint("✔"), mapValue(event.Data, "contradictions"), mapValue(event.Data, "gaps"))

	case events.EventSynthesisStarted:
		r.header.Fprintln(r.out, "Writing report")

	case events.EventSynthesisComplete:
		fmt.Fprintf(r.out, "%s report generated\n", r.ok.Sprint("✔"))

	case events.EventResearchComplete:
		duration, _ := mapValue(event.Data, "duration").(time.Duration)
		r.ok.Fprintf(r.out, "Research complete in %s (%v sources)\n",
			duration.Round(time.Second), mapValue(event.Data, "source_count"))

	case events.EventCostUpdated:
		if d, ok := event.Data.(events.CostUpdateData); ok && r.verbose {
			r.dim.Fprintf(r.out, "  cost[%s]: %d tokens, $%.4f\n", d.Scope, d.TotalTokens, d.TotalCost)
		}

	case events.EventDiffusionStarted:
		if d, ok := event.Data.(events.DiffusionStartedData); ok {
			r.header.Fprintf(r.out, "Diffusion: %s (up to %d iterations)\n", d.Topic, d.MaxIterations)
		}

	case events.EventDiffusionIterationStart:
		if d, ok := event.Data.(events.DiffusionIterationData); ok {
			fmt.Fprintf(r.out, "%s iteration %d/%d: %s (%d notes)\n",
				r.warn.Sprint("●"), d.Iteration, d.MaxIterations, d.Phase, d.NotesCount)
		}

	case events.EventDiffusionComplete:
		if d, ok := event.Data.(events.DiffusionIterationData); ok {
			fmt.Fprintf(r.out, "%s %s\n", r.ok.Sprint("✔"), d.Message)
		}

	case events.EventResearchDelegated:
		if d, ok := event.Data.(events.SubResearcherData); ok {
			fmt.Fprintf(r.out, "  → researcher %d: %s\n", d.ResearcherNum, d.Topic)
		}

	case events.EventDraftRefined:
		if d, ok := event.Data.(events.DraftRefinedData); ok && r.verbose {
			r.dim.Fprintf(r.out, "  draft refined: %d sections, %d new sources\n", d.SectionsUpdated, d.NewSources)
		}

	case events.EventFinalReportStarted:
		r.header.Fprintf(r.out, "%v\n", mapValue(event.Data, "message"))

	case events.EventFinalReportComplete:
		fmt.Fprintf(r.out, "%s final report ready\n", r.ok.Sprint("✔"))

	case events.EventIterationStarted:
		if r.verbose {
			r.dim.Fprintf(r.out, "  [worker %v] iteration %v\n",
				mapValue(event.Data, "worker_num"), mapValue(event.Data, "iteration"))
		}

	case events.EventLLMChunk:
		if d, ok := event.Data.(events.LLMChunkData); ok && r.verbose {
			if d.Done {
				r.endStream()
			} else {
				fmt.Fprint(r.out, d.Chunk)
				r.streaming = true
			}
		}

	case events.EventToolCall:
		if d, ok := event.Data.(events.ToolCallData); ok && r.verbose {
			r.dim.Fprintf(r.out, "  [worker %d] → %s %s\n", d.WorkerNum, d.Tool, compactArgs(d.Args))
		}

	case events.EventToolResult:
		if d, ok := event.Data.(events.ToolResultData); ok && r.verbose {
			mark := r.ok.Sprint("✔")
			if !d.Success {
				mark = r.fail.Sprint("✘")
			}
			r.dim.Fprintf(r.out, "  %s %s: %s\n", mark, d.Tool, firstLine(d.Preview))
		}

	case events.EventAnswerFound:
		if r.verbose {
			r.dim.Fprintln(r.out, "  answer found")
		}
	}
}

// endStream terminates an open chunk stream with a newline. Caller holds the
// mutex.
func (r *Renderer) endStream() {
	if r.streaming {
		fmt.Fprintln(r.out)
		r.streaming = false
	}
}

// DisplayReport prints the session's report in full, ruled off from the
// progress stream.
func (r *Renderer) DisplayReport(state *research.ResearchState) {
	if state == nil || state.Report == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endStream()

	rule := strings.Repeat("─", terminalWidth())
	r.dim.Fprintln(r.out, rule)
	fmt.Fprintln(r.out, strings.TrimSpace(state.Report.FullContent))
	r.dim.Fprintln(r.out, rule)
	r.dim.Fprintf(r.out, "%d tokens, $%.4f\n", state.Cost.TotalTokens, state.Cost.TotalCost)
}

// DisplaySessionList prints one line per stored session.
func (r *Renderer) DisplaySessionList(sessions []*research.ResearchState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(sessions) == 0 {
		r.dim.Fprintln(r.out, "no stored sessions")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(r.out, "%s  %-12s %s\n", s.ID, r.statusColor(s.GetStatus()).Sprint(s.GetStatus()), truncate(s.Query, 60))
	}
}

// DisplaySessionDetail prints a session's metadata, plan, and workers. With
// full set the report body follows.
func (r *Renderer) DisplaySessionDetail(state *research.ResearchState, full bool) {
	r.mu.Lock()
	r.header.Fprintf(r.out, "Session %s\n", state.ID)
	fmt.Fprintf(r.out, "  Status:   %s\n", r.statusColor(state.GetStatus()).Sprint(state.GetStatus()))
	fmt.Fprintf(r.out, "  Mode:     %s\n", state.Mode)
	fmt.Fprintf(r.out, "  Query:    %s\n", state.Query)
	fmt.Fprintf(r.out, "  Progress: %.0f%%\n", state.Progress*100)
	fmt.Fprintf(r.out, "  Version:  %d\n", state.GetVersion())
	if state.CompletedAt != nil {
		fmt.Fprintf(r.out, "  Finished: %s\n", state.CompletedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(r.out, "  Cost:     $%.4f (%d tokens)\n", state.Cost.TotalCost, state.Cost.TotalTokens)

	if state.Plan != nil {
		fmt.Fprintf(r.out, "  Topic:    %s\n", state.Plan.Topic)
	}
	if len(state.Workers) > 0 {
		fmt.Fprintln(r.out, "  Workers:")
		for _, id := range workerOrder(state) {
			w := state.Workers[id]
			fmt.Fprintf(r.out, "    %-10s %-9s %s\n", id, r.statusColor(w.Status).Sprint(w.Status), truncate(w.Objective, 50))
		}
	}
	if state.Report != nil {
		fmt.Fprintf(r.out, "  Report:   %s\n", state.Report.Title)
		if state.Report.Summary != "" {
			fmt.Fprintf(r.out, "            %s\n", truncate(state.Report.Summary, 100))
		}
	}
	r.mu.Unlock()

	if full {
		r.DisplayReport(state)
	}
}

// statusColor maps session and worker statuses alike; the two families share
// their terminal values.
func (r *Renderer) statusColor(status string) *color.Color {
	switch status {
	case research.StatusComplete:
		return r.ok
	case research.StatusFailed, research.StatusCancelled:
		return r.fail
	case research.StatusPending:
		return r.dim
	default:
		return r.warn
	}
}

// workerOrder returns worker ids in ordinal order, then any stragglers.
func workerOrder(state *research.ResearchState) []string {
	ids := make([]string, 0, len(state.Workers))
	seen := make(map[string]bool, len(state.Workers))
	for i := 0; len(ids) < len(state.Workers) && i < len(state.Workers)*2; i++ {
		id := fmt.Sprintf("search_%d", i)
		if _, ok := state.Workers[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	for id := range state.Workers {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		if w > 120 {
			return 120
		}
		return w
	}
	return 80
}

// mapValue reads one key out of an ad-hoc map payload.
func mapValue(data interface{}, key string) interface{} {
	if m, ok := data.(map[string]interface{}); ok {
		return m[key]
	}
	return ""
}

func compactArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, truncate(fmt.Sprint(v), 40)))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
