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

// Package session holds session-scoped value types shared across agents:
// token/cost accounting and the worker context a sub-researcher reports back.
package session

import (
	"fmt"
	"sync"
)

// ModelPricing is the per-million-token price of a model in USD.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultPricing is consulted when a model has no explicit entry.
var defaultPricing = ModelPricing{InputPerMillion: 1.00, OutputPerMillion: 2.00}

var (
	pricingMu    sync.RWMutex
	pricingTable = map[string]ModelPricing{
		"anthropic/claude-sonnet-4":    {3.00, 15.00},
		"anthropic/claude-3.5-haiku":   {0.80, 4.00},
		"openai/gpt-4o":                {2.50, 10.00},
		"openai/gpt-4o-mini":           {0.15, 0.60},
		"google/gemini-2.0-flash-001":  {0.10, 0.40},
		"deepseek/deepseek-chat":       {0.27, 1.10},
		"meta-llama/llama-3.3-70b-instruct": {0.12, 0.30},
	}
)

// PricingFor returns the pricing for a model, falling back to the default
// (1.00 in / 2.00 out per million) for unknown models.
func PricingFor(model string) ModelPricing {
	pricingMu.RLock()
	defer pricingMu.RUnlock()
	if p, ok := pricingTable[model]; ok {
		return p
	}
	return defaultPricing
}

// SetPricing overrides or adds the pricing entry for a model.
// Intended for configuration load time; the table is read-only afterwards.
func SetPricing(model string, pricing ModelPricing) {
	pricingMu.Lock()
	defer pricingMu.Unlock()
	pricingTable[model] = pricing
}

// CostBreakdown tracks token usage and USD cost for one or more LLM calls.
// The zero value is ready to use; breakdowns compose additively via Add.
type CostBreakdown struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	InputCost    float64 `json:"input_cost_usd"`
	OutputCost   float64 `json:"output_cost_usd"`
	TotalCost    float64 `json:"total_cost_usd"`
}

// NewCostBreakdown prices a single call against the model's pricing table entry.
func NewCostBreakdown(model string, promptTokens, completionTokens, totalTokens int) CostBreakdown {
	p := PricingFor(model)
	inputCost := float64(promptTokens) / 1_000_000 * p.InputPerMillion
	outputCost := float64(completionTokens) / 1_000_000 * p.OutputPerMillion
	return CostBreakdown{
		InputTokens:  promptTokens,
		OutputTokens: completionTokens,
		TotalTokens:  totalTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost + outputCost,
	}
}

// Add accumulates another breakdown into this one.
func (c *CostBreakdown) Add(other CostBreakdown) {
	c.InputTokens += other.InputTokens
	c.OutputTokens += other.OutputTokens
	c.TotalTokens += other.TotalTokens
	c.InputCost += other.InputCost
	c.OutputCost += other.OutputCost
	c.TotalCost += other.TotalCost
}

// String renders a compact human-readable summary.
func (c CostBreakdown) String() string {
	return fmt.Sprintf("%d tokens (%d in / %d out), $%.4f", c.TotalTokens, c.InputTokens, c.OutputTokens, c.TotalCost)
}
