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
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

type Metrics interface {
	RecordWorkerRun(ctx context.Context, duration time.Duration, tokens int, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordSearchRequest(ctx context.Context, duration time.Duration, resultCount int, err error)
}

type PrometheusMetrics struct {
	workerDuration    metric.Float64Histogram
	workerRunsTotal   metric.Int64Counter
	workerErrorsTotal metric.Int64Counter
	workerTokensTotal metric.Int64Counter

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter

	searchDuration      metric.Float64Histogram
	searchRequestsTotal metric.Int64Counter
	searchResultsTotal  metric.Int64Counter
	searchErrorsTotal   metric.Int64Counter
}

func NewPrometheusMetrics(
	workerDuration metric.Float64Histogram,
	workerRunsTotal metric.Int64Counter,
	workerErrorsTotal metric.Int64Counter,
	workerTokensTotal metric.Int64Counter,
	toolDuration metric.Float64Histogram,
	toolCallsTotal metric.Int64Counter,
	toolErrorsTotal metric.Int64Counter,
	llmDuration metric.Float64Histogram,
	llmInputTokens metric.Int64Counter,
	llmOutputTokens metric.Int64Counter,
	llmErrorsTotal metric.Int64Counter,
	searchDuration metric.Float64Histogram,
	searchRequestsTotal metric.Int64Counter,
	searchResultsTotal metric.Int64Counter,
	searchErrorsTotal metric.Int64Counter,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		workerDuration:      workerDuration,
		workerRunsTotal:     workerRunsTotal,
		workerErrorsTotal:   workerErrorsTotal,
		workerTokensTotal:   workerTokensTotal,
		toolDuration:        toolDuration,
		toolCallsTotal:      toolCallsTotal,
		toolErrorsTotal:     toolErrorsTotal,
		llmDuration:         llmDuration,
		llmInputTokens:      llmInputTokens,
		llmOutputTokens:     llmOutputTokens,
		llmErrorsTotal:      llmErrorsTotal,
		searchDuration:      searchDuration,
		searchRequestsTotal: searchRequestsTotal,
		searchResultsTotal:  searchResultsTotal,
		searchErrorsTotal:   searchErrorsTotal,
	}
}

func (m *PrometheusMetrics) RecordWorkerRun(ctx context.Context, duration time.Duration, tokens int, err error) {
	if m == nil || m.workerDuration == nil || m.workerRunsTotal == nil {
		return
	}

	m.workerDuration.Record(ctx, duration.Seconds())
	m.workerRunsTotal.Add(ctx, 1)

	if tokens > 0 && m.workerTokensTotal != nil {
		m.workerTokensTotal.Add(ctx, int64(tokens))
	}

	if err != nil && m.workerErrorsTotal != nil {
		m.workerErrorsTotal.Add(ctx, 1)
	}
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil || m.toolCallsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool", tool),
	}

	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.toolErrorsTotal != nil {
		m.toolErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil || m.llmInputTokens == nil || m.llmOutputTokens == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))

	if err != nil && m.llmErrorsTotal != nil {
		m.llmErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordSearchRequest(ctx context.Context, duration time.Duration, resultCount int, err error) {
	if m == nil || m.searchDuration == nil || m.searchRequestsTotal == nil {
		return
	}

	m.searchDuration.Record(ctx, duration.Seconds())
	m.searchRequestsTotal.Add(ctx, 1)

	if resultCount > 0 && m.searchResultsTotal != nil {
		m.searchResultsTotal.Add(ctx, int64(resultCount))
	}

	if err != nil && m.searchErrorsTotal != nil {
		m.searchErrorsTotal.Add(ctx, 1)
	}
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
