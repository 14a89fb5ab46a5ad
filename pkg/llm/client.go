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

// Package llm defines the chat capability the research agents depend on and
// provides the OpenRouter-backed implementation of it.
package llm

import "context"

// ChatClient is the model capability surface. Implementations fail with
// *CapabilityError on transport or non-success responses; agents propagate
// those errors without retrying (retries belong to the orchestration layer,
// transport-level HTTP retries to the underlying client).
type ChatClient interface {
	// Chat sends the conversation and blocks until the complete response,
	// including the provider's token usage, is available.
	Chat(ctx context.Context, messages []Message) (*ChatResponse, error)

	// StreamChat invokes onChunk with each content delta until the stream
	// completes. Streamed usage frames are not trustworthy, so callers
	// accumulate the chunks and estimate tokens with EstimateTokens.
	StreamChat(ctx context.Context, messages []Message, onChunk func(chunk string)) error

	// GetModel returns the active model identifier.
	GetModel() string

	// SetModel switches the model used for subsequent calls.
	SetModel(model string)
}

// EstimateTokens approximates the token count of text as ceil(len/4).
// Character-based estimation is deliberately model-agnostic; the provider's
// own usage accounting is used wherever a synchronous response supplies it.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// EstimateMessages sums EstimateTokens over a conversation.
func EstimateMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
