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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	arguscontext "github.com/kadirpekel/argus/pkg/context"
	"github.com/kadirpekel/argus/pkg/events"
	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/session"
	"github.com/kadirpekel/argus/pkg/tools"
)

// SubResearcherConfig bounds one sub-researcher run.
type SubResearcherConfig struct {
	// WorkerID keys events and the returned WorkerContext. Empty generates one.
	WorkerID string

	// WorkerNum identifies the worker in UI events (1-based).
	WorkerNum int

	// MaxIterations caps the ReAct loop.
	MaxIterations int

	// TokenBudget is the estimated-token ceiling. Past 90% the loop is told
	// to finalize.
	TokenBudget int

	// Visited seeds the run with URLs earlier researchers already covered.
	Visited []string

	// Memory configures the context manager. Zero value uses its defaults.
	Memory arguscontext.Config
}

// DefaultSubResearcherConfig returns the standard bounds.
func DefaultSubResearcherConfig() SubResearcherConfig {
	return SubResearcherConfig{
		MaxIterations: 10,
		TokenBudget:   50000,
	}
}

// SubResearcher runs the ReAct loop for one research objective. Each instance
// owns an isolated context manager; nothing is shared between researchers
// except the visited-URL seed.
type SubResearcher struct {
	client llm.ChatClient
	tools  ToolExecutor
	bus    *events.Bus
	memory *arguscontext.Manager
	config SubResearcherConfig
	model  string
	tokens int
}

// NewSubResearcher creates a sub-researcher. The bus may be nil.
func NewSubResearcher(client llm.ChatClient, toolExec ToolExecutor, bus *events.Bus, cfg SubResearcherConfig) *SubResearcher {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 10
	}
	if cfg.TokenBudget == 0 {
		cfg.TokenBudget = 50000
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = fmt.Sprintf("worker-%d", time.Now().UnixNano())
	}

	return &SubResearcher{
		client: client,
		tools:  toolExec,
		bus:    bus,
		memory: arguscontext.NewManager(cfg.Memory, client),
		config: cfg,
		model:  client.GetModel(),
	}
}

// Research executes the ReAct loop for the objective and returns the full
// worker record. Tool failures become result strings the model can react to;
// only transport failures abort the run.
func (r *SubResearcher) Research(ctx context.Context, objective string) (session.WorkerContext, error) {
	workerCtx := session.WorkerContext{
		ID:        r.config.WorkerID,
		Objective: objective,
		Status:    research.WorkerRunning,
		StartedAt: time.Now(),
	}

	sourceSet := make(map[string]struct{})
	addSources := func(urls ...string) {
		for _, url := range urls {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			if _, exists := sourceSet[url]; exists {
				continue
			}
			sourceSet[url] = struct{}{}
			workerCtx.Sources = append(workerCtx.Sources, url)
		}
	}

	date := time.Now().Format("2006-01-02")
	systemPrompt := subResearcherSystemPrompt(r.tools.RenderCatalog(), date)

	query := fmt.Sprintf("Research this topic: %s", objective)
	if len(r.config.Visited) > 0 {
		query += fmt.Sprintf("\n\nURLs already covered by other researchers (do not re-fetch):\n%s",
			strings.Join(r.config.Visited, "\n"))
	}

	for i := 0; i < r.config.MaxIterations; i++ {
		workerCtx.Iterations = i + 1

		r.publish(events.Event{
			Type: events.EventIterationStarted,
			Data: map[string]interface{}{
				"iteration":  i + 1,
				"worker_num": r.config.WorkerNum,
			},
		})

		if _, err := r.memory.MaybeFold(ctx); err != nil {
			slog.Warn("context fold failed", "worker", workerCtx.ID, "error", err)
		}

		messages := r.memory.BuildMessages(systemPrompt, query)

		var content strings.Builder
		streamErr := r.client.StreamChat(ctx, messages, func(chunk string) {
			content.WriteString(chunk)
			r.publish(events.Event{
				Type: events.EventLLMChunk,
				Data: events.LLMChunkData{
					WorkerID:  workerCtx.ID,
					WorkerNum: r.config.WorkerNum,
					Chunk:     chunk,
				},
			})
		})
		if streamErr != nil {
			return r.fail(workerCtx, fmt.Errorf("LLM call failed: %w", streamErr))
		}

		// Streaming complete for this iteration.
		r.publish(events.Event{
			Type: events.EventLLMChunk,
			Data: events.LLMChunkData{
				WorkerID:  workerCtx.ID,
				WorkerNum: r.config.WorkerNum,
				Done:      true,
			},
		})

		contentStr := content.String()
		if contentStr == "" {
			return r.fail(workerCtx, fmt.Errorf("empty response from LLM"))
		}

		// Streaming carries no usage stats; estimate from length.
		estimatedTokens := llm.EstimateTokens(contentStr)
		r.tokens += estimatedTokens
		workerCtx.Cost.Add(session.NewCostBreakdown(r.model, 0, estimatedTokens, estimatedTokens))

		if answer, ok := tools.ExtractAnswer(contentStr); ok {
			workerCtx.Output = answer

			r.publish(events.Event{
				Type: events.EventAnswerFound,
				Data: map[string]string{"answer_preview": truncateForLog(answer, 200)},
			})

			r.extractFacts(ctx, answer, &workerCtx)
			return r.finish(workerCtx), nil
		}

		toolCalls := tools.ParseToolCalls(contentStr)
		r.memory.AddInteraction(llm.RoleAssistant, contentStr)

		for _, tc := range toolCalls {
			r.publish(events.Event{
				Type: events.EventToolCall,
				Data: events.ToolCallData{
					WorkerID:  workerCtx.ID,
					WorkerNum: r.config.WorkerNum,
					Tool:      tc.Tool,
					Args:      tc.Args,
				},
			})

			startTime := time.Now()
			result, toolErr := r.tools.Execute(ctx, tc.Tool, tc.Args)
			duration := time.Since(startTime)
			success := toolErr == nil

			if toolErr != nil {
				result = fmt.Sprintf("Error: %v", toolErr)
			}

			argsJSON, _ := json.Marshal(tc.Args)
			workerCtx.ToolCalls = append(workerCtx.ToolCalls, session.ToolCall{
				Tool:      tc.Tool,
				Args:      string(argsJSON),
				Duration:  duration,
				Timestamp: time.Now(),
			})

			r.memory.AddInteraction(llm.RoleUser, fmt.Sprintf("Tool result for %s:\n%s", tc.Tool, result))
			r.memory.RecordToolCall(tc.Tool, result)

			r.publish(events.Event{
				Type: events.EventToolResult,
				Data: events.ToolResultData{
					WorkerID: workerCtx.ID,
					Tool:     tc.Tool,
					Success:  success,
					Preview:  truncateForLog(result, 200),
				},
			})

			switch tc.Tool {
			case "search":
				if success {
					workerCtx.RawNotes = append(workerCtx.RawNotes, result)
				}
				addSources(tools.ExtractURLs(result)...)
			case "fetch":
				if success {
					workerCtx.RawNotes = append(workerCtx.RawNotes, result)
				}
				if rawURL, ok := tc.Args["url"].(string); ok {
					addSources(rawURL)
				}
			}
		}

		if r.tokens > int(float64(r.config.TokenBudget)*0.9) {
			r.memory.AddInteraction(llm.RoleSystem,
				"Token budget nearly exhausted. Please provide your final answer now using <answer></answer> tags.")
		}
	}

	workerCtx.Output = "Research concluded after maximum iterations."
	return r.finish(workerCtx), nil
}

// extractFacts pulls structured claims out of the final answer with one LLM
// call. Extraction failures leave the worker without facts rather than
// failing the run.
func (r *SubResearcher) extractFacts(ctx context.Context, answer string, workerCtx *session.WorkerContext) {
	resp, err := r.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: extractFactsPrompt(answer)},
	})
	if err != nil {
		slog.Debug("fact extraction failed", "worker", workerCtx.ID, "error", err)
		return
	}
	workerCtx.Cost.Add(session.NewCostBreakdown(r.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens))

	text := resp.Text()
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return
	}

	var facts []session.Fact
	if err := json.Unmarshal([]byte(text[start:end+1]), &facts); err != nil {
		slog.Debug("fact extraction unparseable", "worker", workerCtx.ID, "error", err)
		return
	}
	workerCtx.Facts = facts
}

func (r *SubResearcher) finish(workerCtx session.WorkerContext) session.WorkerContext {
	workerCtx.Status = research.WorkerComplete
	workerCtx.CompletedAt = time.Now()
	workerCtx.Cost.Add(r.memory.FoldCost())
	return workerCtx
}

func (r *SubResearcher) fail(workerCtx session.WorkerContext, err error) (session.WorkerContext, error) {
	workerCtx.Status = research.WorkerFailed
	workerCtx.CompletedAt = time.Now()
	workerCtx.Cost.Add(r.memory.FoldCost())
	return workerCtx, err
}

func (r *SubResearcher) publish(event events.Event) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(event)
}
