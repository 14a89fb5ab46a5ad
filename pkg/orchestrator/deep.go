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

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/argus/pkg/agents"
	"github.com/kadirpekel/argus/pkg/events"
	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/planning"
	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/session"
	"github.com/kadirpekel/argus/pkg/tools"
)

// deepResult carries the in-process artifacts of a deep search into the
// synthesis phase. They are not event-sourced: a session resumed past the
// search phase synthesizes from the durable worker records instead.
type deepResult struct {
	brief      string
	supervisor *agents.SupervisorResult
	overhead   session.CostBreakdown
}

// executeSearchDeep runs the diffusion pipeline: a research brief, an
// initial draft from model knowledge, then the supervisor loop whose
// delegations work through the planned search nodes. The artifacts stay on
// the run for the synthesis phase.
func (r *run) executeSearchDeep(ctx context.Context) error {
	date := time.Now().Format("2006-01-02")

	r.emitPhaseProgress("brief", "Generating research brief from query...")
	brief, briefCost, err := r.generate(ctx, agents.TransformToResearchBriefPrompt(r.state.Query, date))
	if err != nil {
		return wrapPhase(ctx, "generate research brief", err)
	}
	r.emitPhaseProgress("brief", "Research brief generated")

	r.emitPhaseProgress("draft", "Generating initial draft from model knowledge...")
	draft, draftCost, err := r.generate(ctx, agents.InitialDraftPrompt(brief, date))
	if err != nil {
		return wrapPhase(ctx, "generate initial draft", err)
	}
	r.emitPhaseProgress("draft", "Initial draft generated")

	r.emitPhaseProgress("diffuse", "Starting diffusion-based refinement...")
	r.emitDiffusionStarted(planTopic(r.state))

	supervisor := agents.NewSupervisor(r.o.client, r.o.bus, agents.SupervisorConfig{
		MaxIterations:     r.o.cfg.Research.MaxSupervisorIterations,
		MaxConcurrentSubs: r.o.cfg.Research.MaxParallelSubResearchers,
	})
	result, err := supervisor.Coordinate(ctx, brief, draft, r.delegate)
	if err != nil {
		return wrapPhase(ctx, "supervisor coordination", err)
	}
	r.emitDiffusionComplete(result.IterationsUsed, len(result.Notes))
	slog.Info("diffusion finished",
		"session", r.sessionID,
		"iterations", result.IterationsUsed,
		"notes", len(result.Notes),
		"stop", result.StopReason)

	// Claimed worker spend is already recorded in the stream; the overhead
	// keeps only what no worker event carries.
	overhead := briefCost
	overhead.Add(draftCost)
	overhead.Add(costMinus(result.Cost, r.claimedCost))
	r.deep = &deepResult{brief: brief, supervisor: result, overhead: overhead}
	return nil
}

// delegate satisfies agents.SubResearcherCallback. Each delegation claims
// the next pending search node so its start, result, and cost become part of
// the durable record. Once every node is taken the delegation still runs,
// its findings surfacing through the supervisor's notes only.
func (r *run) delegate(ctx context.Context, topic string, researcherNum, iteration int, visited []string) (session.WorkerContext, error) {
	node, claimed := r.claimNode(ctx, topic)

	workerID := node.ID
	workerNum := planning.NodeWorkerNum(node.ID)
	if !claimed {
		workerID = fmt.Sprintf("sub_%d", researcherNum)
		workerNum = researcherNum
	}

	result := r.runWorker(ctx, workerID, workerNum, topic, visited)
	if !claimed {
		return result.worker, result.err
	}

	if err := r.recordWorker(ctx, node.ID, result); err != nil {
		// A persistence hiccup must not sink the delegation; pending
		// events ride along with the next persist.
		slog.Warn("failed to record delegation outcome",
			"session", r.sessionID, "worker", node.ID, "error", err)
	}
	if result.err == nil {
		r.addClaimedCost(result.worker.Cost)
	}
	return result.worker, result.err
}

// claimNode reserves the next pending search node for a delegation, emitting
// a worker.started with the delegated topic as the objective. Claims are
// serialized so concurrent delegations take distinct nodes.
func (r *run) claimNode(ctx context.Context, topic string) (research.DAGNode, bool) {
	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	r.mu.Lock()
	ready := r.state.ReadyNodes()
	var perspective string
	if len(ready) > 0 {
		perspective = perspectiveName(r.state, ready[0].ID)
	}
	r.mu.Unlock()

	if len(ready) == 0 {
		return research.DAGNode{}, false
	}

	node := ready[0]
	err := r.execute(ctx, research.StartWorkerCommand{
		WorkerID:    node.ID,
		WorkerNum:   planning.NodeWorkerNum(node.ID),
		Objective:   topic,
		Perspective: perspective,
	})
	if err != nil {
		slog.Warn("failed to claim search node",
			"session", r.sessionID, "node", node.ID, "error", err)
		return research.DAGNode{}, false
	}
	return node, true
}

func (r *run) addClaimedCost(cost session.CostBreakdown) {
	r.claimMu.Lock()
	r.claimedCost.Add(cost)
	r.claimMu.Unlock()
}

// buildFinalReport produces the deep-mode report: the final-report prompt
// over the brief, the deduplicated findings, and the refined draft. Its cost
// carries everything the worker events did not already record.
func (r *run) buildFinalReport(ctx context.Context) (*agents.Report, error) {
	r.emitFinalReportStarted()

	sup := r.deep.supervisor
	findings := strings.Join(deduplicateFindings(sup.Notes), "\n\n---\n\n")
	date := time.Now().Format("2006-01-02")

	content, cost, err := r.generate(ctx, agents.FinalReportPrompt(r.deep.brief, findings, sup.DraftReport, date))
	if err != nil {
		return nil, wrapPhase(ctx, "final report generation", err)
	}
	r.emitFinalReportComplete()

	total := r.deep.overhead
	total.Add(cost)
	return agents.ComposeReport(content, planTopic(r.state), sup.VisitedURLs, total), nil
}

// generate runs one single-prompt LLM call and returns the trimmed text with
// its cost.
func (r *run) generate(ctx context.Context, prompt string) (string, session.CostBreakdown, error) {
	resp, err := r.o.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", session.CostBreakdown{}, err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", session.CostBreakdown{}, fmt.Errorf("empty response from LLM")
	}
	cost := session.NewCostBreakdown(r.o.client.GetModel(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	return text, cost, nil
}

// deduplicateFindings drops notes whose every URL already appeared in an
// earlier note. Notes without URLs always survive.
func deduplicateFindings(notes []string) []string {
	seen := make(map[string]bool)
	var kept []string
	for _, note := range notes {
		urls := tools.ExtractURLs(note)
		fresh := len(urls) == 0
		for _, u := range urls {
			if !seen[u] {
				fresh = true
				break
			}
		}
		if !fresh {
			continue
		}
		for _, u := range urls {
			seen[u] = true
		}
		kept = append(kept, note)
	}
	return kept
}

// costMinus subtracts b from a field-wise, flooring at zero against rounding
// drift.
func costMinus(a, b session.CostBreakdown) session.CostBreakdown {
	return session.CostBreakdown{
		InputTokens:  max(a.InputTokens-b.InputTokens, 0),
		OutputTokens: max(a.OutputTokens-b.OutputTokens, 0),
		TotalTokens:  max(a.TotalTokens-b.TotalTokens, 0),
		InputCost:    max(a.InputCost-b.InputCost, 0),
		OutputCost:   max(a.OutputCost-b.OutputCost, 0),
		TotalCost:    max(a.TotalCost-b.TotalCost, 0),
	}
}

func (r *run) emitPhaseProgress(phase, message string) {
	if r.o.bus == nil {
		return
	}
	r.o.publish(events.EventAnalysisProgress, map[string]interface{}{
		"phase":   phase,
		"message": message,
	})
}

func (r *run) emitDiffusionStarted(topic string) {
	if r.o.bus == nil {
		return
	}
	r.o.publish(events.EventDiffusionStarted, events.DiffusionStartedData{
		Topic:         topic,
		MaxIterations: r.o.cfg.Research.MaxSupervisorIterations,
	})
}

func (r *run) emitDiffusionComplete(iterations, notes int) {
	if r.o.bus == nil {
		return
	}
	r.o.publish(events.EventDiffusionComplete, events.DiffusionIterationData{
		Iteration:     iterations,
		MaxIterations: r.o.cfg.Research.MaxSupervisorIterations,
		NotesCount:    notes,
		DraftProgress: 1.0,
		Phase:         "complete",
		Message:       fmt.Sprintf("Diffusion complete after %d iterations with %d notes", iterations, notes),
	})
}

func (r *run) emitFinalReportStarted() {
	if r.o.bus == nil {
		return
	}
	r.o.publish(events.EventFinalReportStarted, map[string]interface{}{
		"message": "Generating final report from refined draft and findings...",
	})
}

func (r *run) emitFinalReportComplete() {
	if r.o.bus == nil {
		return
	}
	r.o.publish(events.EventFinalReportComplete, nil)
}
