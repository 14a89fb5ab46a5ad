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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/argus/pkg/events"
	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/session"
	"github.com/kadirpekel/argus/pkg/tools"
)

// Reasons the diffusion loop stops, in tie-break order: an explicit
// research_complete call wins over the iteration cap, which wins over the
// model going quiet.
const (
	StopResearchComplete = "research_complete"
	StopIterationCap     = "iteration cap"
	StopNoNewFindings    = "no new findings"
)

// Supervisor coordinates deep research using the diffusion algorithm: the
// draft report starts noisy and each iteration denoises it by delegating
// research and folding the findings back in.
type Supervisor struct {
	client        llm.ChatClient
	bus           *events.Bus
	maxIterations int
	maxConcurrent int
	model         string
}

// SupervisorConfig bounds the diffusion loop.
type SupervisorConfig struct {
	// MaxIterations caps diffusion iterations.
	MaxIterations int

	// MaxConcurrentSubs caps parallel sub-researchers in one turn.
	MaxConcurrentSubs int
}

// DefaultSupervisorConfig returns the standard bounds.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MaxIterations:     15,
		MaxConcurrentSubs: 3,
	}
}

// NewSupervisor creates a supervisor. The bus may be nil.
func NewSupervisor(client llm.ChatClient, bus *events.Bus, cfg SupervisorConfig) *Supervisor {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 15
	}
	if cfg.MaxConcurrentSubs == 0 {
		cfg.MaxConcurrentSubs = 3
	}

	return &Supervisor{
		client:        client,
		bus:           bus,
		maxIterations: cfg.MaxIterations,
		maxConcurrent: cfg.MaxConcurrentSubs,
		model:         client.GetModel(),
	}
}

// SupervisorResult is the output of one diffusion run.
type SupervisorResult struct {
	// Notes contains compressed findings from sub-researchers.
	Notes []string

	// RawNotes contains raw tool results before compression.
	RawNotes []string

	// DraftReport is the iteratively refined draft.
	DraftReport string

	// VisitedURLs lists every distinct URL the run touched.
	VisitedURLs []string

	// SubInsights holds one structured insight per delegation.
	SubInsights []session.SubInsight

	// IterationsUsed is the number of diffusion iterations completed.
	IterationsUsed int

	// StopReason records why the loop ended.
	StopReason string

	// Cost tracks token usage across the run, sub-researchers included.
	Cost session.CostBreakdown
}

// SubResearcherCallback executes one delegated research task. The visited
// slice carries URLs earlier researchers already covered.
type SubResearcherCallback func(ctx context.Context, topic string, researcherNum, diffusionIteration int, visited []string) (session.WorkerContext, error)

// Coordinate runs the diffusion loop until the model signals completion, goes
// quiet, or the iteration cap is hit.
func (s *Supervisor) Coordinate(
	ctx context.Context,
	researchBrief string,
	initialDraft string,
	subResearcher SubResearcherCallback,
) (*SupervisorResult, error) {
	state := NewSupervisorState(researchBrief)
	state.UpdateDraft(initialDraft)

	var totalCost session.CostBreakdown
	var researcherNum int

	date := time.Now().Format("2006-01-02")
	systemPrompt := LeadResearcherPrompt(date, s.maxConcurrent, s.maxIterations)

	stopReason := StopIterationCap
	for state.Iterations < s.maxIterations {
		state.IncrementIteration()
		s.emitIterationEvent(state, "research")

		messages := s.buildMessages(systemPrompt, state)

		resp, err := s.client.Chat(ctx, messages)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("supervisor LLM call iteration %d: %w", state.Iterations, err)
		}

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("empty response from LLM at iteration %d", state.Iterations)
		}

		totalCost.Add(session.NewCostBreakdown(s.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens))

		content := resp.Choices[0].Message.Content
		state.AddMessage(llm.Message{Role: llm.RoleAssistant, Content: content})

		toolCalls := tools.ParseToolCalls(content)

		if hasResearchComplete(toolCalls) {
			stopReason = StopResearchComplete
			break
		}

		// A turn without tool calls means the model has nothing left to ask for.
		if len(toolCalls) == 0 {
			stopReason = StopNoNewFindings
			break
		}

		// conduct_research calls run in parallel; everything else sequentially.
		var conductResearchCalls []tools.ToolCall
		var otherCalls []tools.ToolCall
		for _, tc := range toolCalls {
			if tc.Tool == "conduct_research" {
				conductResearchCalls = append(conductResearchCalls, tc)
			} else {
				otherCalls = append(otherCalls, tc)
			}
		}

		var toolResults []string
		for _, tc := range otherCalls {
			result, err := s.executeToolCall(ctx, tc, state, &totalCost)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				result = fmt.Sprintf("Error executing %s: %v", tc.Tool, err)
			}
			toolResults = append(toolResults, fmt.Sprintf("Result of %s: %s", tc.Tool, result))
		}

		if len(conductResearchCalls) > 0 {
			researchResults, err := s.executeParallelResearch(ctx, conductResearchCalls, state, subResearcher, &researcherNum, &totalCost)
			if err != nil {
				return nil, err
			}
			toolResults = append(toolResults, researchResults...)
		}

		if len(toolResults) > 0 {
			state.AddMessage(llm.Message{
				Role:    llm.RoleUser,
				Content: strings.Join(toolResults, "\n\n---\n\n"),
			})
		}
	}

	return &SupervisorResult{
		Notes:          state.Notes,
		RawNotes:       state.RawNotes,
		DraftReport:    state.DraftReport,
		VisitedURLs:    state.VisitedURLs,
		SubInsights:    state.SubInsights,
		IterationsUsed: state.Iterations,
		StopReason:     stopReason,
		Cost:           totalCost,
	}, nil
}

// buildMessages assembles the supervisor conversation: system prompt, the
// current research context, then the accumulated exchange.
func (s *Supervisor) buildMessages(systemPrompt string, state *SupervisorState) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
	}

	userContext := fmt.Sprintf(`<Research Brief>
%s
</Research Brief>

<Current Draft Report>
%s
</Current Draft Report>

<Accumulated Research Notes>
%d notes collected from sub-researchers
</Accumulated Research Notes>

Analyze the current state and decide next action. Use the diffusion algorithm:
1. Identify gaps in the draft report
2. Use conduct_research to fill gaps (can call multiple times for parallel research)
3. Use refine_draft to incorporate new findings
4. Use research_complete when findings are comprehensive`, state.ResearchBrief, state.DraftReport, len(state.Notes))

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userContext})
	messages = append(messages, state.Messages...)

	return messages
}

// executeToolCall dispatches one non-research tool call.
func (s *Supervisor) executeToolCall(
	ctx context.Context,
	tc tools.ToolCall,
	state *SupervisorState,
	totalCost *session.CostBreakdown,
) (string, error) {
	switch tc.Tool {
	case "refine_draft":
		return s.executeRefineDraft(ctx, state, totalCost)

	case "think":
		reflection, _ := tc.Args["reflection"].(string)
		return fmt.Sprintf("Reflection recorded: %s", truncateForLog(reflection, 100)), nil

	case "research_complete":
		return "Research marked as complete. Proceeding to final report generation.", nil

	default:
		return fmt.Sprintf("Unknown tool: %s", tc.Tool), nil
	}
}

// executeParallelResearch runs conduct_research calls concurrently, capped at
// maxConcurrent by a semaphore. Results are applied to state sequentially in
// call order.
func (s *Supervisor) executeParallelResearch(
	ctx context.Context,
	calls []tools.ToolCall,
	state *SupervisorState,
	subResearcher SubResearcherCallback,
	researcherNum *int,
	totalCost *session.CostBreakdown,
) ([]string, error) {
	type researchResult struct {
		index     int
		num       int
		topic     string
		worker    *session.WorkerContext
		resultStr string
		err       error
	}

	results := make(chan researchResult, len(calls))
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	// Assign researcher numbers up front so numbering follows call order.
	researcherNums := make([]int, len(calls))
	for i := range calls {
		*researcherNum++
		researcherNums[i] = *researcherNum
	}

	// Snapshot state reads before spawning; goroutines must not touch state.
	iteration := state.Iterations
	visited := append([]string(nil), state.VisitedURLs...)

	for i, tc := range calls {
		wg.Add(1)

		go func(idx int, toolCall tools.ToolCall, resNum int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results <- researchResult{index: idx, err: ctx.Err()}
				return
			}

			topic, ok := toolCall.Args["research_topic"].(string)
			if !ok || topic == "" {
				results <- researchResult{
					index:     idx,
					resultStr: "Error: conduct_research requires a 'research_topic' argument",
				}
				return
			}

			s.emitDelegationEvent(topic, resNum, iteration)

			worker, err := subResearcher(ctx, topic, resNum, iteration, visited)
			if err != nil {
				results <- researchResult{index: idx, topic: topic, err: err}
				return
			}

			resultStr := fmt.Sprintf("Sub-researcher %d completed research on: %s\n\nFindings:\n%s",
				resNum, truncateForLog(topic, 50), truncateForLog(worker.Output, 500))

			results <- researchResult{
				index:     idx,
				num:       resNum,
				topic:     topic,
				worker:    &worker,
				resultStr: resultStr,
			}
		}(i, tc, researcherNums[i])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	orderedResults := make([]researchResult, len(calls))
	for res := range results {
		orderedResults[res.index] = res
	}

	var toolResultStrings []string
	for _, res := range orderedResults {
		if res.err != nil {
			if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
				return nil, res.err
			}
			toolResultStrings = append(toolResultStrings, fmt.Sprintf("Result of conduct_research: Error: %v", res.err))
			continue
		}

		if res.worker != nil {
			state.AddNote(res.worker.Output)
			for _, rawNote := range res.worker.RawNotes {
				state.AddRawNote(rawNote)
			}
			state.AddVisitedURLs(res.worker.Sources)
			state.AddSubInsight(buildInsight(res.topic, res.worker, res.num, iteration))
			totalCost.Add(res.worker.Cost)
		}

		toolResultStrings = append(toolResultStrings, fmt.Sprintf("Result of conduct_research: %s", res.resultStr))
	}

	return toolResultStrings, nil
}

// executeRefineDraft folds accumulated notes into the draft with one LLM call.
func (s *Supervisor) executeRefineDraft(
	ctx context.Context,
	state *SupervisorState,
	totalCost *session.CostBreakdown,
) (string, error) {
	if len(state.Notes) == 0 {
		return "No research findings to incorporate. Use conduct_research first.", nil
	}

	findings := strings.Join(state.Notes, "\n\n---\n\n")
	prompt := RefineDraftPrompt(state.ResearchBrief, state.DraftReport, findings)

	resp, err := s.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("refine draft LLM call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from LLM during draft refinement")
	}

	totalCost.Add(session.NewCostBreakdown(s.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens))

	state.UpdateDraft(resp.Choices[0].Message.Content)
	s.emitDraftRefinedEvent(state)

	return fmt.Sprintf("Draft refined with %d research findings incorporated.", len(state.Notes)), nil
}

func hasResearchComplete(calls []tools.ToolCall) bool {
	for _, call := range calls {
		if call.Tool == "research_complete" {
			return true
		}
	}
	return false
}

// buildInsight condenses one delegation into a structured insight. Confidence
// averages the worker's fact confidences, defaulting to 0.5 without facts.
func buildInsight(topic string, worker *session.WorkerContext, researcherNum, iteration int) session.SubInsight {
	insight := session.SubInsight{
		ID:            uuid.NewString(),
		Topic:         topic,
		Finding:       truncateForLog(worker.Output, 200),
		Confidence:    0.5,
		Iteration:     iteration,
		ResearcherNum: researcherNum,
		Timestamp:     time.Now(),
	}
	if len(worker.Sources) > 0 {
		insight.SourceURL = worker.Sources[0]
	}
	if len(worker.Facts) > 0 {
		sum := 0.0
		for _, fact := range worker.Facts {
			sum += fact.Confidence
		}
		insight.Confidence = sum / float64(len(worker.Facts))
	}
	return insight
}

func (s *Supervisor) emitIterationEvent(state *SupervisorState, phase string) {
	if s.bus == nil {
		return
	}

	progress := float64(len(state.Notes)) / float64(s.maxIterations)
	if progress > 1.0 {
		progress = 1.0
	}

	s.bus.Publish(events.Event{
		Type: events.EventDiffusionIterationStart,
		Data: events.DiffusionIterationData{
			Iteration:     state.Iterations,
			MaxIterations: s.maxIterations,
			NotesCount:    len(state.Notes),
			DraftProgress: progress,
			Phase:         phase,
			Message:       fmt.Sprintf("Diffusion iteration %d: %s", state.Iterations, phase),
		},
	})
}

func (s *Supervisor) emitDelegationEvent(topic string, researcherNum, iteration int) {
	if s.bus == nil {
		return
	}

	s.bus.Publish(events.Event{
		Type: events.EventResearchDelegated,
		Data: events.SubResearcherData{
			Topic:         topic,
			ResearcherNum: researcherNum,
			Iteration:     iteration,
			MaxIterations: s.maxIterations,
			Status:        "delegated",
		},
	})
}

func (s *Supervisor) emitDraftRefinedEvent(state *SupervisorState) {
	if s.bus == nil {
		return
	}

	progress := float64(state.Iterations) / float64(s.maxIterations)
	if progress > 1.0 {
		progress = 1.0
	}

	s.bus.Publish(events.Event{
		Type: events.EventDraftRefined,
		Data: events.DraftRefinedData{
			Iteration:       state.Iterations,
			SectionsUpdated: len(state.Notes),
			NewSources:      len(state.RawNotes),
			Progress:        progress,
		},
	})
}
