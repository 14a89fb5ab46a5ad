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
	"testing"
	"time"
)

func TestMetricsRecording(t *testing.T) {
	ctx := context.Background()

	metrics := &PrometheusMetrics{}

	metrics.RecordWorkerRun(ctx, 100*time.Millisecond, 150, nil)
	metrics.RecordWorkerRun(ctx, 200*time.Millisecond, 200, nil)

	t.Log("worker metrics recorded successfully (nil-safe)")
}

func TestToolMetricsRecording(t *testing.T) {
	ctx := context.Background()
	metrics := &PrometheusMetrics{}

	metrics.RecordToolExecution(ctx, "search", 50*time.Millisecond, nil)
	metrics.RecordToolExecution(ctx, "fetch", 100*time.Millisecond, nil)

	t.Log("tool metrics recorded successfully")
}

func TestLLMMetricsRecording(t *testing.T) {
	ctx := context.Background()
	metrics := &PrometheusMetrics{}

	metrics.RecordLLMCall(ctx, "openai/gpt-4o", 500*time.Millisecond, 100, 50, nil)
	metrics.RecordLLMCall(ctx, "anthropic/claude-sonnet-4", 600*time.Millisecond, 150, 75, nil)

	t.Log("llm metrics recorded successfully")
}

func TestSearchMetricsRecording(t *testing.T) {
	ctx := context.Background()
	metrics := &PrometheusMetrics{}

	metrics.RecordSearchRequest(ctx, 200*time.Millisecond, 5, nil)

	t.Log("search metrics recorded successfully")
}

func TestNoopMetrics(t *testing.T) {
	ctx := context.Background()

	noopMetrics := NoopMetrics{}
	noopMetrics.RecordWorkerRun(ctx, 100*time.Millisecond, 150, nil)
	noopMetrics.RecordToolExecution(ctx, "test", 50*time.Millisecond, nil)
	noopMetrics.RecordLLMCall(ctx, "test-model", 300*time.Millisecond, 10, 5, nil)
	noopMetrics.RecordSearchRequest(ctx, 10*time.Millisecond, 0, nil)

	t.Log("noop metrics handled correctly")
}

func TestGlobalMetrics(t *testing.T) {
	ctx := context.Background()

	_ = GetGlobalMetrics()

	SetGlobalMetrics(NoopMetrics{})

	retrievedMetrics := GetGlobalMetrics()
	if retrievedMetrics == nil {
		t.Error("Expected non-nil metrics after SetGlobalMetrics")
	}

	retrievedMetrics.RecordWorkerRun(ctx, 100*time.Millisecond, 50, nil)
}

func TestInitGlobalTracer_Disabled(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitGlobalTracer() error = %v, want nil", err)
	}
	if tp == nil {
		t.Fatal("InitGlobalTracer() provider = nil, want noop provider")
	}

	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "test_span")
	span.End()
}

func TestInitMetrics_Disabled(t *testing.T) {
	metrics, err := InitMetrics(context.Background(), MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitMetrics() error = %v, want nil", err)
	}
	if metrics == nil {
		t.Fatal("InitMetrics() = nil, want empty recorder")
	}

	// Empty recorder is nil-safe.
	metrics.RecordLLMCall(context.Background(), "m", time.Second, 1, 1, nil)
}

func BenchmarkMetricsRecording(b *testing.B) {
	ctx := context.Background()
	metrics := &PrometheusMetrics{}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		metrics.RecordWorkerRun(ctx, 100*time.Millisecond, 50, nil)
	}
}
