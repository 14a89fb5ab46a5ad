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

// Package testutils provides shared test doubles and fixtures, most
// importantly the scripted chat client the agent and orchestrator tests
// drive their loops with.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kadirpekel/argus/pkg/config"
	"github.com/kadirpekel/argus/pkg/llm"
)

// ScriptedChatClient implements llm.ChatClient by replaying canned
// responses. Responses are consumed in call order; concurrent callers each
// take the next unclaimed one. Set Respond for content-dependent behavior
// instead of a fixed script.
type ScriptedChatClient struct {
	mu        sync.Mutex
	model     string
	responses []string
	next      int

	// RepeatLast keeps returning the final scripted response once the
	// script is exhausted, for tests that drive loops to an iteration cap.
	RepeatLast bool

	// Err, when set, fails every call.
	Err error

	// Respond overrides the script when non-nil.
	Respond func(messages []llm.Message) (string, error)

	// Requests records every conversation received, in call order.
	Requests [][]llm.Message
}

var _ llm.ChatClient = (*ScriptedChatClient)(nil)

// NewScriptedChatClient creates a client that replays responses in order.
func NewScriptedChatClient(responses ...string) *ScriptedChatClient {
	return &ScriptedChatClient{
		model:     "test/model",
		responses: responses,
	}
}

// Chat returns the next scripted response with estimated usage numbers.
func (c *ScriptedChatClient) Chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := c.nextResponse(messages)
	if err != nil {
		return nil, err
	}

	promptTokens := llm.EstimateMessages(messages)
	completionTokens := llm.EstimateTokens(content)

	return &llm.ChatResponse{
		Model: c.GetModel(),
		Choices: []llm.Choice{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: content}},
		},
		Usage: llm.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// StreamChat emits the next scripted response as a single chunk.
func (c *ScriptedChatClient) StreamChat(ctx context.Context, messages []llm.Message, onChunk func(chunk string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	content, err := c.nextResponse(messages)
	if err != nil {
		return err
	}

	onChunk(content)
	return nil
}

func (c *ScriptedChatClient) nextResponse(messages []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recorded := make([]llm.Message, len(messages))
	copy(recorded, messages)
	c.Requests = append(c.Requests, recorded)

	if c.Err != nil {
		return "", c.Err
	}
	if c.Respond != nil {
		return c.Respond(recorded)
	}

	if c.next >= len(c.responses) {
		if c.RepeatLast && len(c.responses) > 0 {
			return c.responses[len(c.responses)-1], nil
		}
		return "", fmt.Errorf("scripted chat client exhausted after %d responses", len(c.responses))
	}

	response := c.responses[c.next]
	c.next++
	return response, nil
}

// Calls returns how many chat calls were made.
func (c *ScriptedChatClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// LastRequest returns the most recent conversation, or nil.
func (c *ScriptedChatClient) LastRequest() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Requests) == 0 {
		return nil
	}
	return c.Requests[len(c.Requests)-1]
}

// GetModel returns the active model identifier.
func (c *ScriptedChatClient) GetModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetModel switches the model used for subsequent calls.
func (c *ScriptedChatClient) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

// TestConfig returns a valid configuration with API keys stubbed and the
// event store rooted in a per-test temp directory.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.LLM.APIKey = "test-key"
	cfg.Search.APIKey = "test-key"
	cfg.Store.Root = t.TempDir()
	cfg.Vault.Dir = ""

	return cfg
}
