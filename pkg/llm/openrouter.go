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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kadirpekel/argus/pkg/config"
	"github.com/kadirpekel/argus/pkg/httpclient"
	"github.com/kadirpekel/argus/pkg/logger"
	"github.com/kadirpekel/argus/pkg/observability"
	"github.com/kadirpekel/argus/pkg/tokens"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultHost is the OpenRouter API endpoint.
const DefaultHost = "https://openrouter.ai/api/v1"

// OpenRouterClient speaks the OpenAI-compatible chat completion API exposed
// by openrouter.ai. A single client is shared by every agent in a session;
// the active model can be swapped with SetModel.
type OpenRouterClient struct {
	mu         sync.RWMutex
	model      string
	cfg        *config.LLMConfig
	httpClient *httpclient.Client

	// Lazily initialized; tiktoken loads its vocabulary on first use.
	counterOnce sync.Once
	counter     *tokens.Counter
}

type openRouterRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type streamDelta struct {
	Content string `json:"content,omitempty"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type streamResponse struct {
	Choices []streamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// NewOpenRouterClient creates a client with default settings.
func NewOpenRouterClient(apiKey, model string) *OpenRouterClient {
	cfg := config.DefaultLLMConfig()
	cfg.APIKey = apiKey
	cfg.Model = model

	client, _ := NewOpenRouterClientFromConfig(cfg)
	return client
}

// NewOpenRouterClientFromConfig creates a client from configuration.
func NewOpenRouterClientFromConfig(cfg *config.LLMConfig) (*OpenRouterClient, error) {
	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseOpenRouterHeaders),
	)

	return &OpenRouterClient{
		model:      cfg.Model,
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

// GetModel returns the active model identifier.
func (c *OpenRouterClient) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SetModel switches the model used for subsequent calls.
func (c *OpenRouterClient) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

// Chat sends the conversation and blocks until the complete response is
// available, including the provider's token usage.
func (c *OpenRouterClient) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	startTime := time.Now()
	model := c.GetModel()

	tracer := observability.GetTracer("argus.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, model),
			attribute.String("provider", "openrouter"),
			attribute.Bool("streaming", false),
		),
	)
	defer span.End()

	c.checkContextWindow(messages, model)

	request := c.buildRequest(model, messages, false)

	response, err := c.makeRequest(ctx, request)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if metrics := observability.GetGlobalMetrics(); metrics != nil {
			metrics.RecordLLMCall(ctx, model, duration, 0, 0, err)
		}

		return nil, NewCapabilityError("llm", "chat", "request failed", err)
	}

	if response.Error != nil {
		apiErr := fmt.Errorf("API error: %s", response.Error.Message)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, response.Error.Message)

		if metrics := observability.GetGlobalMetrics(); metrics != nil {
			metrics.RecordLLMCall(ctx, model, duration, 0, 0, apiErr)
		}

		return nil, NewCapabilityError("llm", "chat", response.Error.Message, nil)
	}

	if len(response.Choices) == 0 {
		noChoiceErr := fmt.Errorf("no response choices returned")
		span.RecordError(noChoiceErr)
		span.SetStatus(codes.Error, "no choices")

		if metrics := observability.GetGlobalMetrics(); metrics != nil {
			metrics.RecordLLMCall(ctx, model, duration, 0, 0, noChoiceErr)
		}

		return nil, NewCapabilityError("llm", "chat", "no response choices returned", nil)
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, response.Usage.PromptTokens),
		attribute.Int(observability.AttrLLMTokensOutput, response.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "success")

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordLLMCall(ctx, model, duration, response.Usage.PromptTokens, response.Usage.CompletionTokens, nil)
	}

	return response, nil
}

// StreamChat invokes onChunk with each content delta until the stream
// completes. Usage frames in the stream are ignored; callers estimate tokens
// from the accumulated character count.
func (c *OpenRouterClient) StreamChat(ctx context.Context, messages []Message, onChunk func(chunk string)) error {
	model := c.GetModel()

	c.checkContextWindow(messages, model)

	request := c.buildRequest(model, messages, true)

	if err := c.makeStreamingRequest(ctx, request, onChunk); err != nil {
		return NewCapabilityError("llm", "stream", "request failed", err)
	}
	return nil
}

// checkContextWindow logs an exact token count before sending and warns when
// the prompt exceeds the configured window. Agents budget with chars/4; the
// precise count here catches prompts the provider would reject anyway.
func (c *OpenRouterClient) checkContextWindow(messages []Message, model string) {
	if c.cfg.ContextWindow <= 0 {
		return
	}

	c.counterOnce.Do(func() {
		counter, err := tokens.NewCounter(model)
		if err != nil {
			logger.GetLogger().Debug("token counter unavailable", "error", err)
			return
		}
		c.counter = counter
	})
	if c.counter == nil {
		return
	}

	counted := make([]tokens.Message, len(messages))
	for i, m := range messages {
		counted[i] = tokens.Message{Role: m.Role, Content: m.Content}
	}
	count := c.counter.CountMessages(counted)

	log := logger.GetLogger()
	log.Debug("prepared chat request", "model", model, "messages", len(messages), "tokens", count)
	if count > c.cfg.ContextWindow {
		log.Warn("prompt exceeds context window", "tokens", count, "window", c.cfg.ContextWindow)
	}
}

func (c *OpenRouterClient) buildRequest(model string, messages []Message, stream bool) openRouterRequest {
	request := openRouterRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.cfg.GetTemperature(),
		Stream:      stream,
	}

	if c.cfg.MaxTokens > 0 {
		maxTokens := c.cfg.MaxTokens
		request.MaxTokens = &maxTokens
	}

	return request
}

func (c *OpenRouterClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	// OpenRouter attribution headers, optional but recommended.
	req.Header.Set("HTTP-Referer", "https://github.com/kadirpekel/argus")
	req.Header.Set("X-Title", "argus")
}

func parseErrorResponse(body []byte) *Error {
	if len(body) == 0 {
		return nil
	}
	var errorResp struct {
		Error Error `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return &errorResp.Error
	}
	return nil
}

func (c *OpenRouterClient) makeRequest(ctx context.Context, request openRouterRequest) (*ChatResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Host+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	// The retrying client can return both a response and an error for non-2xx
	// status codes; inspect the body either way.
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, readErr := io.ReadAll(resp.Body)
			errorBody := string(body)
			if readErr != nil {
				errorBody = fmt.Sprintf("(failed to read error body: %v)", readErr)
			}
			if apiErr := parseErrorResponse(body); apiErr != nil {
				return nil, fmt.Errorf("API request failed with status %d: %s (type: %s, code: %s)",
					resp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code)
			}
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, errorBody)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp == nil {
		return nil, fmt.Errorf("HTTP request failed: no response received")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response ChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

func (c *OpenRouterClient) makeStreamingRequest(ctx context.Context, request openRouterRequest, onChunk func(string)) error {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Host+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, readErr := io.ReadAll(resp.Body)
			errorBody := string(body)
			if readErr != nil {
				errorBody = fmt.Sprintf("(failed to read error body: %v)", readErr)
			}
			if apiErr := parseErrorResponse(body); apiErr != nil {
				return fmt.Errorf("API request failed with status %d: %s (type: %s, code: %s)",
					resp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code)
			}
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, errorBody)
		}
	}

	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp == nil {
		return fmt.Errorf("HTTP request failed: no response received")
	}

	reader := bufio.NewReader(resp.Body)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]

		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var chunk streamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Malformed chunks are skipped, not fatal.
			continue
		}

		if chunk.Error != nil {
			return fmt.Errorf("API error: %s", chunk.Error.Message)
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		if content := chunk.Choices[0].Delta.Content; content != "" {
			onChunk(content)
		}
	}

	return nil
}
