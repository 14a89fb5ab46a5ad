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

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("argus")

	workerDuration, err := meter.Float64Histogram(
		"argus_worker_run_duration_seconds",
		metric.WithDescription("Sub-researcher run duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker duration histogram: %w", err)
	}

	workerRuns, err := meter.Int64Counter(
		"argus_worker_runs_total",
		metric.WithDescription("Total sub-researcher runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker runs counter: %w", err)
	}

	workerErrors, err := meter.Int64Counter(
		"argus_worker_errors_total",
		metric.WithDescription("Total sub-researcher errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker errors counter: %w", err)
	}

	workerTokens, err := meter.Int64Counter(
		"argus_worker_tokens_used_total",
		metric.WithDescription("Total tokens consumed by sub-researchers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker tokens counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"argus_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	toolCalls, err := meter.Int64Counter(
		"argus_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	toolErrors, err := meter.Int64Counter(
		"argus_tool_errors_total",
		metric.WithDescription("Total tool errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"argus_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmInputTokens, err := meter.Int64Counter(
		"argus_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	llmOutputTokens, err := meter.Int64Counter(
		"argus_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"argus_llm_errors_total",
		metric.WithDescription("Total LLM errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	searchDuration, err := meter.Float64Histogram(
		"argus_search_request_duration_seconds",
		metric.WithDescription("Web search request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}

	searchRequests, err := meter.Int64Counter(
		"argus_search_requests_total",
		metric.WithDescription("Total web search requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search requests counter: %w", err)
	}

	searchResults, err := meter.Int64Counter(
		"argus_search_results_total",
		metric.WithDescription("Total web search results returned"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search results counter: %w", err)
	}

	searchErrors, err := meter.Int64Counter(
		"argus_search_errors_total",
		metric.WithDescription("Total web search errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search errors counter: %w", err)
	}

	return NewPrometheusMetrics(
		workerDuration,
		workerRuns,
		workerErrors,
		workerTokens,
		toolDuration,
		toolCalls,
		toolErrors,
		llmDuration,
		llmInputTokens,
		llmOutputTokens,
		llmErrors,
		searchDuration,
		searchRequests,
		searchResults,
		searchErrors,
	), nil
}
