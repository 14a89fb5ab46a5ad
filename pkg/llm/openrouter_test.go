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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kadirpekel/argus/pkg/config"
)

func testConfig(host string) *config.LLMConfig {
	return &config.LLMConfig{
		Model:  "openai/gpt-4o-mini",
		APIKey: "sk-or-test-key",
		Host:   host,
	}
}

func TestNewOpenRouterClient(t *testing.T) {
	client := NewOpenRouterClient("sk-or-test-key", "openai/gpt-4o-mini")

	if client == nil {
		t.Fatal("NewOpenRouterClient() returned nil client")
	}
	if client.GetModel() != "openai/gpt-4o-mini" {
		t.Errorf("GetModel() = %v, want openai/gpt-4o-mini", client.GetModel())
	}
}

func TestOpenRouterClient_SetModel(t *testing.T) {
	client := NewOpenRouterClient("sk-or-test-key", "openai/gpt-4o-mini")

	client.SetModel("anthropic/claude-sonnet-4")

	if client.GetModel() != "anthropic/claude-sonnet-4" {
		t.Errorf("GetModel() = %v, want anthropic/claude-sonnet-4", client.GetModel())
	}
}

func TestOpenRouterClient_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-or-test-key" {
			t.Errorf("Authorization header = %v, want Bearer sk-or-test-key", auth)
		}

		var req openRouterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Stream {
			t.Error("Expected stream=false in request")
		}
		if len(req.Messages) != 1 {
			t.Errorf("Expected 1 message, got %d", len(req.Messages))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Hello! How can I help?"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 15, "total_tokens": 25}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenRouterClientFromConfig(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOpenRouterClientFromConfig() error = %v", err)
	}

	resp, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}})

	if err != nil {
		t.Fatalf("Chat() error = %v, want nil", err)
	}
	if resp.Text() != "Hello! How can I help?" {
		t.Errorf("Text() = %v, want Hello! How can I help?", resp.Text())
	}
	if resp.Usage.TotalTokens != 25 {
		t.Errorf("Chat() total tokens = %v, want 25", resp.Usage.TotalTokens)
	}
	if resp.Usage.PromptTokens != 10 {
		t.Errorf("Chat() prompt tokens = %v, want 10", resp.Usage.PromptTokens)
	}
}

func TestOpenRouterClient_Chat_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "auth_error", "code": "401"}}`))
	}))
	defer server.Close()

	client, err := NewOpenRouterClientFromConfig(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOpenRouterClientFromConfig() error = %v", err)
	}

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}})

	if err == nil {
		t.Fatal("Chat() expected error, got nil")
	}

	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("Chat() error type = %T, want *CapabilityError", err)
	}
	if capErr.Capability != "llm" {
		t.Errorf("CapabilityError.Capability = %v, want llm", capErr.Capability)
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("Chat() error = %v, want api error message included", err)
	}
}

func TestOpenRouterClient_Chat_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	client, err := NewOpenRouterClientFromConfig(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOpenRouterClientFromConfig() error = %v", err)
	}

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}})

	if err == nil {
		t.Error("Chat() expected error, got nil")
	}
}

func TestOpenRouterClient_Chat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [], "usage": {"prompt_tokens": 5, "completion_tokens": 0, "total_tokens": 5}}`))
	}))
	defer server.Close()

	client, err := NewOpenRouterClientFromConfig(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOpenRouterClientFromConfig() error = %v", err)
	}

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}})

	if err == nil {
		t.Error("Chat() expected error for empty choices, got nil")
	}
}

func TestOpenRouterClient_StreamChat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openRouterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if !req.Stream {
			t.Error("Expected stream=true in request")
		}

		w.Header().Set("Content-Type", "text/event-stream")

		chunks := []string{
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
			`data: not valid json`,
			`data: {"choices":[{"delta":{"content":" there"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			"data: [DONE]",
		}
		for _, chunk := range chunks {
			_, _ = w.Write([]byte(chunk + "\n\n"))
		}
	}))
	defer server.Close()

	client, err := NewOpenRouterClientFromConfig(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOpenRouterClientFromConfig() error = %v", err)
	}

	var got strings.Builder
	var calls int
	err = client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}}, func(chunk string) {
		got.WriteString(chunk)
		calls++
	})

	if err != nil {
		t.Fatalf("StreamChat() error = %v, want nil", err)
	}
	if got.String() != "Hello there" {
		t.Errorf("StreamChat() accumulated = %q, want %q", got.String(), "Hello there")
	}
	if calls != 2 {
		t.Errorf("StreamChat() onChunk calls = %d, want 2", calls)
	}
}

func TestOpenRouterClient_StreamChat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"error":{"message":"quota exceeded"}}` + "\n\n"))
	}))
	defer server.Close()

	client, err := NewOpenRouterClientFromConfig(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewOpenRouterClientFromConfig() error = %v", err)
	}

	err = client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}}, func(string) {})

	if err == nil {
		t.Fatal("StreamChat() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("StreamChat() error = %v, want quota message included", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateMessages(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: strings.Repeat("a", 40)},
		{Role: RoleUser, Content: strings.Repeat("b", 41)},
	}

	if got := EstimateMessages(messages); got != 21 {
		t.Errorf("EstimateMessages() = %d, want 21", got)
	}
}
