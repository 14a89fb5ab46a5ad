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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/argus/pkg/agents"
	arguscontext "github.com/kadirpekel/argus/pkg/context"
	"github.com/kadirpekel/argus/pkg/observability"
	"github.com/kadirpekel/argus/pkg/planning"
	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/session"
)

// workerResult is the outcome of one sub-researcher run.
type workerResult struct {
	worker session.WorkerContext
	err    error
}

// executeSearchFast runs one sub-researcher per ready graph node in waves,
// bounded by the session's worker cap. Worker failures are recorded and
// tolerated; the session proceeds with whatever the surviving workers found.
func (r *run) executeSearchFast(ctx context.Context) error {
	maxWorkers := r.state.Config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = r.o.cfg.Research.MaxWorkers
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	for !r.state.AllNodesDone() {
		if err := ctx.Err(); err != nil {
			return err
		}

		ready := r.state.ReadyNodes()
		if len(ready) == 0 {
			return fmt.Errorf("search stalled: remaining nodes blocked by failed dependencies")
		}

		// Claim the whole wave up front so the stream records every
		// start ahead of its result.
		for _, node := range ready {
			err := r.execute(ctx, research.StartWorkerCommand{
				WorkerID:    node.ID,
				WorkerNum:   planning.NodeWorkerNum(node.ID),
				Objective:   node.Description,
				Perspective: perspectiveName(r.state, node.ID),
			})
			if err != nil {
				return err
			}
		}

		results := make([]workerResult, len(ready))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxWorkers)
		for i, node := range ready {
			g.Go(func() error {
				results[i] = r.runWorker(gctx, node.ID, planning.NodeWorkerNum(node.ID), node.Description, nil)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}

		// Results apply in node order so replays see the same stream
		// regardless of which worker finished first.
		for i, node := range ready {
			if err := r.recordWorker(ctx, node.ID, results[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// runWorker executes one sub-researcher under the per-worker timeout,
// tracing the run and recording it on the global metrics.
func (r *run) runWorker(ctx context.Context, workerID string, workerNum int, objective string, visited []string) workerResult {
	if timeout := r.o.cfg.Research.WorkerTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	tracer := observability.GetTracer("argus.orchestrator")
	ctx, span := tracer.Start(ctx, observability.SpanWorkerRun,
		trace.WithAttributes(
			attribute.String(observability.AttrSessionID, r.sessionID),
			attribute.String(observability.AttrWorkerID, workerID),
		),
	)
	defer span.End()

	researcher := agents.NewSubResearcher(r.o.client, r.o.tools, r.o.bus, agents.SubResearcherConfig{
		WorkerID:      workerID,
		WorkerNum:     workerNum,
		MaxIterations: r.o.cfg.Research.MaxWorkerIterations,
		TokenBudget:   r.o.cfg.Research.WorkerTokenBudget,
		Visited:       visited,
		Memory:        r.memoryConfig(),
	})

	startTime := time.Now()
	worker, err := researcher.Research(ctx, objective)

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordWorkerRun(ctx, time.Since(startTime), worker.Cost.TotalTokens, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	return workerResult{worker: worker, err: err}
}

// recordWorker persists the outcome of one claimed node.
func (r *run) recordWorker(ctx context.Context, workerID string, result workerResult) error {
	if result.err != nil {
		slog.Warn("worker failed",
			"session", r.sessionID, "worker", workerID, "error", result.err)
		return r.execute(ctx, research.FailWorkerCommand{
			WorkerID: workerID,
			Error:    result.err.Error(),
		})
	}

	return r.execute(ctx, research.CompleteWorkerCommand{
		WorkerID: workerID,
		Output:   result.worker.Output,
		Facts:    result.worker.Facts,
		Sources:  result.worker.Sources,
		Cost:     result.worker.Cost,
	})
}

// memoryConfig maps the app-level context settings onto a per-agent memory
// manager config.
func (r *run) memoryConfig() arguscontext.Config {
	return arguscontext.Config{
		MaxTokens:      r.o.cfg.Context.MaxTokens,
		WorkingMemSize: r.o.cfg.Context.WorkingMemorySize,
		FoldThreshold:  r.o.cfg.Context.FoldThreshold,
		SummaryLevels:  r.o.cfg.Context.SummaryLevels,
	}
}
