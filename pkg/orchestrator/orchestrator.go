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

// Package orchestrator drives a research session through its phases and
// turns every state change into a persisted event. The aggregate in
// pkg/research owns the rules; this package owns the sequencing: plan,
// search (a fast worker pool or the deep diffusion loop), analysis,
// synthesis, completion. A session interrupted mid-flight resumes from its
// event stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/argus/pkg/agents"
	"github.com/kadirpekel/argus/pkg/config"
	"github.com/kadirpekel/argus/pkg/docs"
	"github.com/kadirpekel/argus/pkg/events"
	"github.com/kadirpekel/argus/pkg/fetch"
	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/planning"
	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/search"
	"github.com/kadirpekel/argus/pkg/session"
	"github.com/kadirpekel/argus/pkg/store"
	"github.com/kadirpekel/argus/pkg/tools"
	"github.com/kadirpekel/argus/pkg/vault"
)

// Orchestrator coordinates planning, search, analysis, and synthesis for
// research sessions backed by an event store.
type Orchestrator struct {
	store store.EventStore
	bus   *events.Bus
	cfg   *config.Config

	client      llm.ChatClient
	fastClient  llm.ChatClient
	tools       agents.ToolExecutor
	planner     *planning.Planner
	analyzer    *agents.Analyzer
	synthesizer *agents.Synthesizer
	vault       *vault.Writer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClient injects the LLM client used for reasoning calls. The fast
// client defaults to the same instance unless WithFastClient overrides it.
func WithClient(client llm.ChatClient) Option {
	return func(o *Orchestrator) {
		o.client = client
		if o.fastClient == nil {
			o.fastClient = client
		}
	}
}

// WithFastClient injects the cheaper model used for content summarization
// inside the tool registry.
func WithFastClient(client llm.ChatClient) Option {
	return func(o *Orchestrator) {
		o.fastClient = client
	}
}

// WithTools injects the tool executor handed to sub-researchers.
func WithTools(toolExec agents.ToolExecutor) Option {
	return func(o *Orchestrator) {
		o.tools = toolExec
	}
}

// New creates an orchestrator. Capabilities not injected through options are
// built from the configuration: an OpenRouter client, a fast-model variant
// for summarization, and the full sub-researcher tool registry.
func New(eventStore store.EventStore, bus *events.Bus, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{store: eventStore, bus: bus, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		client, err := llm.NewOpenRouterClientFromConfig(&cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("llm client: %w", err)
		}
		o.client = client
	}
	if o.fastClient == nil {
		fastCfg := cfg.LLM
		if fastCfg.FastModel != "" {
			fastCfg.Model = fastCfg.FastModel
		}
		client, err := llm.NewOpenRouterClientFromConfig(&fastCfg)
		if err != nil {
			return nil, fmt.Errorf("fast llm client: %w", err)
		}
		o.fastClient = client
	}
	if o.tools == nil {
		o.tools = tools.NewSubResearcherRegistry(
			search.NewClient(&cfg.Search), fetch.NewClient(), docs.NewDocReader(), o.fastClient)
	}
	if cfg.Vault.Dir != "" {
		o.vault = vault.New(cfg.Vault.Dir)
	}

	o.planner = planning.NewPlanner(o.client)
	o.analyzer = agents.NewAnalyzer(o.client)
	o.synthesizer = agents.NewSynthesizer(o.client)
	return o, nil
}

// NewSessionID returns a fresh session id. The timestamp prefix keeps store
// listings in creation order; the uuid suffix keeps concurrent creations
// distinct.
func NewSessionID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// Run executes a full research session for the query and returns the final
// state. An empty mode falls back to the configured default. The state is
// returned alongside errors so callers can inspect how far the session got.
func (o *Orchestrator) Run(ctx context.Context, query, mode string) (*research.ResearchState, error) {
	if mode == "" {
		mode = o.cfg.Research.Mode
	}

	r := o.newRun(research.NewResearchState(NewSessionID()))
	err := r.execute(ctx, research.StartResearchCommand{
		Query: query,
		Mode:  mode,
		Config: research.ResearchConfig{
			MaxWorkers: o.cfg.Research.MaxWorkers,
			Timeout:    time.Duration(o.cfg.Research.SessionTimeout) * time.Second,
		},
	})
	if err != nil {
		return r.state, err
	}

	slog.Info("research started", "session", r.sessionID, "mode", mode, "query", query)
	return o.continueResearch(ctx, r)
}

// Resume reloads a stored session and continues it from where it stopped.
// Completed sessions come back as-is; failed and cancelled ones are
// terminal and only return an error alongside their state.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*research.ResearchState, error) {
	state, err := o.loadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch state.GetStatus() {
	case research.StatusComplete:
		return state, nil
	case research.StatusFailed, research.StatusCancelled:
		return state, fmt.Errorf("research in terminal state: %s", state.GetStatus())
	}

	r := o.newRun(state)
	r.resetRunningWork()
	slog.Info("research resumed",
		"session", r.sessionID, "status", state.GetStatus(), "version", state.GetVersion())
	return o.continueResearch(ctx, r)
}

// Load rebuilds a stored session's state without driving it further.
func (o *Orchestrator) Load(ctx context.Context, sessionID string) (*research.ResearchState, error) {
	return o.loadState(ctx, sessionID)
}

// TakeSnapshot forces a snapshot of a stored session outside the automatic
// cadence.
func (o *Orchestrator) TakeSnapshot(ctx context.Context, sessionID string) error {
	state, err := o.loadState(ctx, sessionID)
	if err != nil {
		return err
	}
	r := o.newRun(state)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(ctx)
}

// loadState reconstructs a session from the store, preferring the latest
// snapshot and replaying only the events past it.
func (o *Orchestrator) loadState(ctx context.Context, sessionID string) (*research.ResearchState, error) {
	snapshot, err := o.store.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		state, err := research.RestoreFromSnapshot(snapshot.Data)
		if err != nil {
			return nil, err
		}
		tail, err := o.store.LoadEventsFrom(ctx, sessionID, snapshot.Version)
		if err != nil {
			return nil, err
		}
		for _, event := range tail {
			state.Apply(event)
		}
		return state, nil
	}

	stream, err := o.store.LoadEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(stream) == 0 {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return research.LoadFromEvents(sessionID, stream)
}

// continueResearch drives the session from its current status to completion,
// recording failures and cancellations as terminal events.
func (o *Orchestrator) continueResearch(ctx context.Context, r *run) (*research.ResearchState, error) {
	if timeout := r.state.Config.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := r.advance(ctx); err != nil {
		return r.state, r.recordTerminal(err)
	}

	started := r.state.CreatedAt
	if r.state.StartedAt != nil {
		started = *r.state.StartedAt
	}
	err := r.execute(ctx, research.CompleteResearchCommand{Duration: time.Since(started)})
	if err != nil {
		return r.state, r.recordTerminal(err)
	}

	slog.Info("research complete",
		"session", r.sessionID, "duration", time.Since(started), "cost_usd", r.state.Cost.TotalCost)
	o.writeVault(r.state)
	return r.state, nil
}

// writeVault saves the finished report into the vault when one is
// configured. Vault failures only warn; the report already lives in the
// event stream.
func (o *Orchestrator) writeVault(state *research.ResearchState) {
	if o.vault == nil || state.Report == nil {
		return
	}
	path, err := o.vault.Write(state)
	if err != nil {
		slog.Warn("vault write failed", "session", state.ID, "error", err)
		return
	}
	slog.Info("report saved", "session", state.ID, "path", path)
}

// run carries one session through the pipeline. Command execution and
// persistence are serialized on mu. claimMu additionally serializes
// deep-mode node claims so concurrent delegations take distinct nodes; it is
// always acquired before mu.
type run struct {
	o         *Orchestrator
	state     *research.ResearchState
	sessionID string

	mu sync.Mutex

	claimMu     sync.Mutex
	claimedCost session.CostBreakdown

	deep *deepResult
}

func (o *Orchestrator) newRun(state *research.ResearchState) *run {
	return &run{o: o, state: state, sessionID: state.ID}
}

// advance runs every remaining phase. The fallthrough chain makes one pass
// over the pipeline regardless of which phase the session is resuming from.
func (r *run) advance(ctx context.Context) error {
	switch r.state.GetStatus() {
	case research.StatusPending, research.StatusPlanning:
		if err := r.executePlanning(ctx); err != nil {
			return err
		}
		fallthrough

	case research.StatusSearching:
		if err := r.executeSearch(ctx); err != nil {
			return err
		}
		if err := r.execute(ctx, research.StartAnalysisCommand{TotalFacts: countFacts(r.state)}); err != nil {
			return err
		}
		fallthrough

	case research.StatusAnalyzing:
		if err := r.executeAnalysis(ctx); err != nil {
			return err
		}
		if err := r.execute(ctx, research.StartSynthesisCommand{}); err != nil {
			return err
		}
		fallthrough

	case research.StatusSynthesizing:
		return r.executeSynthesis(ctx)
	}
	return nil
}

// executePlanning asks the planner for perspectives and persists the plan
// together with its execution graph.
func (r *run) executePlanning(ctx context.Context) error {
	plan, err := r.o.planner.CreatePlan(ctx, r.state.Query)
	if err != nil {
		return err
	}
	return r.execute(ctx, research.SetPlanCommand{
		Topic:        plan.Topic,
		Brief:        plan.Brief,
		Perspectives: plan.Perspectives,
		DAGStructure: plan.DAG.Snapshot(),
		Cost:         plan.Cost,
	})
}

// executeSearch dispatches to the mode-specific search phase.
func (r *run) executeSearch(ctx context.Context) error {
	if r.state.Mode == research.ModeDeep {
		return r.executeSearchDeep(ctx)
	}
	return r.executeSearchFast(ctx)
}

// executeAnalysis cross-validates the collected facts. An empty fact set
// skips the phase entirely; an analyzer failure degrades to an empty result
// rather than sinking the session.
func (r *run) executeAnalysis(ctx context.Context) error {
	var facts []session.Fact
	for _, w := range orderedWorkers(r.state) {
		facts = append(facts, w.Facts...)
	}
	if len(facts) == 0 {
		slog.Info("no facts collected, skipping analysis", "session", r.sessionID)
		return nil
	}

	var questions []string
	if r.state.Plan != nil {
		questions = planning.CollectQuestions(r.state.Plan.Perspectives)
	}

	result, err := r.o.analyzer.Analyze(ctx, r.state.Query, facts, questions)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("analysis failed, continuing without validation",
			"session", r.sessionID, "error", err)
		result = &agents.AnalysisResult{}
	}

	return r.execute(ctx, research.SetAnalysisCommand{
		ValidatedFacts: result.ValidatedFacts,
		Contradictions: result.Contradictions,
		KnowledgeGaps:  result.KnowledgeGaps,
		Cost:           result.Cost,
	})
}

// executeSynthesis writes the final report and persists it.
func (r *run) executeSynthesis(ctx context.Context) error {
	var (
		report *agents.Report
		err    error
	)
	if r.deep != nil {
		report, err = r.buildFinalReport(ctx)
	} else {
		report, err = r.synthesizeFromWorkers(ctx)
	}
	if err != nil {
		return err
	}

	return r.execute(ctx, research.SetReportCommand{
		Title:       report.Title,
		Summary:     report.Summary,
		FullContent: report.FullContent,
		Citations:   report.Citations,
		Cost:        report.Cost,
	})
}

// synthesizeFromWorkers writes the report from the durable worker records.
// This is the fast-mode path and the fallback for resumed deep sessions,
// whose in-process diffusion artifacts did not survive the restart.
func (r *run) synthesizeFromWorkers(ctx context.Context) (*agents.Report, error) {
	var (
		findings []string
		sources  []string
	)
	for _, w := range orderedWorkers(r.state) {
		if w.Status != research.WorkerComplete {
			continue
		}
		if w.Output != "" {
			findings = append(findings, w.Output)
		}
		sources = append(sources, w.Sources...)
	}

	report, err := r.o.synthesizer.Synthesize(
		ctx, planTopic(r.state), findings, sources, analysisFromState(r.state.Analysis))
	if err != nil {
		return nil, wrapPhase(ctx, "synthesize report", err)
	}
	return report, nil
}

// execute applies one command to the aggregate and persists the resulting
// event. On a version conflict another writer advanced the stream first: the
// state is reloaded and the command retried once against the fresh version.
func (r *run) execute(ctx context.Context, cmd research.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.state.Execute(cmd); err != nil {
		return err
	}

	err := r.persistLocked(ctx)
	var conflict *store.VersionConflictError
	if errors.As(err, &conflict) {
		slog.Warn("version conflict, reloading session and retrying",
			"session", r.sessionID, "expected", conflict.Expected, "actual", conflict.Actual)
		fresh, loadErr := r.o.loadState(ctx, r.sessionID)
		if loadErr != nil {
			return fmt.Errorf("reload after version conflict: %w", loadErr)
		}
		r.state = fresh
		if _, err := r.state.Execute(cmd); err != nil {
			return err
		}
		err = r.persistLocked(ctx)
	}
	if err != nil {
		return err
	}

	r.maybeSnapshotLocked(ctx)
	return nil
}

// persistLocked appends the pending events to the store, then publishes them
// on the bus. A failed append leaves the events uncommitted; they ride along
// with the next persist. Called with mu held.
func (r *run) persistLocked(ctx context.Context) error {
	pending := r.state.GetUncommittedEvents()
	if len(pending) == 0 {
		return nil
	}

	expected := pending[0].GetVersion() - 1
	if err := r.o.store.AppendEvents(ctx, r.sessionID, pending, expected); err != nil {
		return err
	}
	r.state.ClearUncommittedEvents()

	for _, event := range pending {
		r.o.publishUIEvent(event)
	}
	r.o.emitCostEvent("total", r.state.Cost)
	return nil
}

// maybeSnapshotLocked takes a snapshot when the version crosses the
// configured cadence. Snapshot failures only warn; replaying the event
// stream alone always reconstructs the state.
func (r *run) maybeSnapshotLocked(ctx context.Context) {
	every := r.o.cfg.Store.SnapshotEvery
	if every <= 0 || r.state.GetVersion()%every != 0 {
		return
	}
	if err := r.snapshotLocked(ctx); err != nil {
		slog.Warn("snapshot failed", "session", r.sessionID, "error", err)
	}
}

// snapshotLocked records a snapshot.taken marker in the stream and saves the
// serialized state at the marker's version.
func (r *run) snapshotLocked(ctx context.Context) error {
	event, err := r.state.Execute(research.TakeSnapshotCommand{})
	if err != nil {
		return err
	}
	if err := r.persistLocked(ctx); err != nil {
		return err
	}

	data, err := r.state.Snapshot()
	if err != nil {
		return err
	}
	return r.o.store.SaveSnapshot(ctx, &store.Snapshot{
		AggregateID: r.sessionID,
		Version:     event.GetVersion(),
		Data:        data,
		Timestamp:   time.Now(),
	})
}

// recordTerminal persists the terminal event for a failed or cancelled run.
// The causing context is usually already dead, so persistence runs under a
// fresh one. The original error is always returned.
func (r *run) recordTerminal(cause error) error {
	var cmd research.Command
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		cmd = research.CancelResearchCommand{Reason: "timeout"}
	case errors.Is(cause, context.Canceled):
		cmd = research.CancelResearchCommand{Reason: cause.Error()}
	default:
		cmd = research.FailResearchCommand{
			Error: cause.Error(),
			Phase: phaseForStatus(r.state.GetStatus()),
		}
	}

	if err := r.execute(context.Background(), cmd); err != nil {
		slog.Warn("failed to record terminal event",
			"session", r.sessionID, "cause", cause, "error", err)
	} else {
		slog.Error("research ended", "session", r.sessionID, "error", cause)
	}
	return cause
}

// resetRunningWork returns workers stuck in running back to pending. A crash
// leaves worker.started events with no matching completion; without the
// reset the graph would wait forever on work nobody is doing. The reset is
// in-memory only, the re-claim emits a fresh worker.started.
func (r *run) resetRunningWork() {
	for _, w := range r.state.Workers {
		if w.Status == research.WorkerRunning {
			w.Status = research.WorkerPending
			w.StartedAt = nil
		}
	}
	if r.state.DAG == nil {
		return
	}
	for _, node := range r.state.DAG.Nodes {
		if node.Status == research.WorkerRunning {
			node.Status = research.WorkerPending
		}
	}
}

// publishUIEvent translates a persisted domain event into its bus
// counterpart for live displays.
func (o *Orchestrator) publishUIEvent(event research.Event) {
	if o.bus == nil {
		return
	}

	switch e := event.(type) {
	case research.ResearchStartedEvent:
		o.publish(events.EventResearchStarted, events.ResearchStartedData{
			SessionID: e.AggregateID,
			Query:     e.Query,
			Mode:      e.Mode,
		})

	case research.PlanCreatedEvent:
		perspectives := make([]events.PerspectiveData, len(e.Perspectives))
		for i, p := range e.Perspectives {
			perspectives[i] = events.PerspectiveData{Name: p.Name, Focus: p.Focus, Questions: p.Questions}
		}
		dagNodes := make([]events.DAGNodeData, len(e.DAGStructure.Nodes))
		for i, n := range e.DAGStructure.Nodes {
			dagNodes[i] = events.DAGNodeData{
				ID:           n.ID,
				TaskType:     n.TaskType,
				Description:  n.Description,
				Dependencies: n.Dependencies,
				Status:       n.Status,
			}
		}
		o.publish(events.EventPlanCreated, events.PlanCreatedData{
			WorkerCount:  len(e.Perspectives),
			Complexity:   0.8,
			Topic:        e.Topic,
			Perspectives: perspectives,
			DAGNodes:     dagNodes,
		})

	case research.WorkerStartedEvent:
		o.publish(events.EventWorkerStarted, events.WorkerProgressData{
			WorkerID:  e.WorkerID,
			WorkerNum: e.WorkerNum,
			Objective: e.Objective,
			Status:    "running",
		})

	case research.WorkerCompletedEvent:
		o.publish(events.EventWorkerComplete, events.WorkerProgressData{
			WorkerID: e.WorkerID,
			Status:   "complete",
		})

	case research.WorkerFailedEvent:
		o.publish(events.EventWorkerFailed, events.WorkerProgressData{
			WorkerID: e.WorkerID,
			Status:   "failed",
			Message:  e.Error,
		})

	case research.AnalysisStartedEvent:
		o.publish(events.EventAnalysisStarted, map[string]interface{}{
			"total_facts": e.TotalFacts,
		})

	case research.AnalysisCompletedEvent:
		o.publish(events.EventAnalysisComplete, map[string]interface{}{
			"contradictions": len(e.Contradictions),
			"gaps":           len(e.KnowledgeGaps),
		})

	case research.SynthesisStartedEvent:
		o.publish(events.EventSynthesisStarted, nil)

	case research.ReportGeneratedEvent:
		o.publish(events.EventSynthesisComplete, nil)

	case research.ResearchCompletedEvent:
		o.publish(events.EventResearchComplete, map[string]interface{}{
			"duration":     e.Duration,
			"source_count": e.SourceCount,
		})
	}
}

// emitCostEvent publishes a cost update when there is anything to report.
func (o *Orchestrator) emitCostEvent(scope string, cost session.CostBreakdown) {
	if o.bus == nil || cost.TotalTokens == 0 {
		return
	}
	o.publish(events.EventCostUpdated, events.CostUpdateData{
		Scope:        scope,
		InputTokens:  cost.InputTokens,
		OutputTokens: cost.OutputTokens,
		TotalTokens:  cost.TotalTokens,
		InputCost:    cost.InputCost,
		OutputCost:   cost.OutputCost,
		TotalCost:    cost.TotalCost,
	})
}

func (o *Orchestrator) publish(eventType events.EventType, data interface{}) {
	o.bus.Publish(events.Event{Type: eventType, Timestamp: time.Now(), Data: data})
}

// wrapPhase wraps a phase error unless the context died first, in which case
// the cancellation wins.
func wrapPhase(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%s: %w", what, err)
}

// phaseForStatus names the pipeline phase a failure happened in.
func phaseForStatus(status string) string {
	switch status {
	case research.StatusPending, research.StatusPlanning:
		return "planning"
	case research.StatusSearching:
		return "searching"
	case research.StatusAnalyzing:
		return "analysis"
	case research.StatusSynthesizing:
		return "synthesis"
	default:
		return status
	}
}

// planTopic returns the planned topic, falling back to the raw query.
func planTopic(state *research.ResearchState) string {
	if state.Plan != nil && state.Plan.Topic != "" {
		return state.Plan.Topic
	}
	return state.Query
}

// perspectiveName resolves the plan perspective backing a search node.
func perspectiveName(state *research.ResearchState, nodeID string) string {
	num := planning.NodeWorkerNum(nodeID)
	if state.Plan == nil || num < 1 || num > len(state.Plan.Perspectives) {
		return ""
	}
	return state.Plan.Perspectives[num-1].Name
}

// orderedWorkers returns worker records in search-node order so downstream
// prompts see findings in a stable sequence.
func orderedWorkers(state *research.ResearchState) []*research.WorkerState {
	workers := make([]*research.WorkerState, 0, len(state.Workers))
	for i := 0; i < len(state.Workers); i++ {
		if w, ok := state.Workers[planning.SearchNodeID(i)]; ok {
			workers = append(workers, w)
		}
	}
	return workers
}

func countFacts(state *research.ResearchState) int {
	total := 0
	for _, w := range state.Workers {
		total += len(w.Facts)
	}
	return total
}

// analysisFromState rebuilds the analyzer result from persisted state, nil
// when the analysis phase recorded nothing.
func analysisFromState(a *research.AnalysisState) *agents.AnalysisResult {
	if a == nil {
		return nil
	}
	return &agents.AnalysisResult{
		ValidatedFacts: a.ValidatedFacts,
		Contradictions: a.Contradictions,
		KnowledgeGaps:  a.KnowledgeGaps,
		Cost:           a.Cost,
	}
}
