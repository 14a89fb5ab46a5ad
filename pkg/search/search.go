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

// Package search implements the Brave web search client used by the
// sub-researcher search tool. Queries are batched and results merged with
// URL-level deduplication so repeated hits across related queries collapse
// into one entry.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/argus/pkg/config"
	"github.com/kadirpekel/argus/pkg/httpclient"
	"github.com/kadirpekel/argus/pkg/logger"
	"github.com/kadirpekel/argus/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is a single web search hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Searcher is the capability interface consumed by the search tool.
type Searcher interface {
	Search(ctx context.Context, queries []string) ([]Result, error)
}

type braveWebResults struct {
	Results []Result `json:"results"`
}

type braveResponse struct {
	Web braveWebResults `json:"web"`
}

// Client queries the Brave web search API.
type Client struct {
	cfg        *config.SearchConfig
	httpClient *httpclient.Client
}

var _ Searcher = (*Client)(nil)

// NewClient creates a search client from configuration.
func NewClient(cfg *config.SearchConfig) *Client {
	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseBraveHeaders),
	)

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
	}
}

// Search runs every query and merges the results, deduplicating by URL while
// preserving first-seen order. The first failing query aborts the batch; the
// provider's per-query ordering is kept as returned.
func (c *Client) Search(ctx context.Context, queries []string) ([]Result, error) {
	merged := make([]Result, 0)
	seen := make(map[string]bool)

	for _, query := range queries {
		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}

		results, err := c.searchOne(ctx, query)
		if err != nil {
			return nil, err
		}

		for _, result := range results {
			if seen[result.URL] {
				continue
			}
			seen[result.URL] = true
			merged = append(merged, result)
		}
	}

	return merged, nil
}

func (c *Client) searchOne(ctx context.Context, query string) ([]Result, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("argus.search")
	ctx, span := tracer.Start(ctx, observability.SpanSearchRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrSearchQuery, query),
		),
	)
	defer span.End()

	results, err := c.doSearch(ctx, query)
	duration := time.Since(startTime)

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordSearchRequest(ctx, duration, len(results), err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("search.result_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	logger.GetLogger().Debug("search completed", "query", query, "results", len(results))
	return results, nil
}

func (c *Client) doSearch(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(c.cfg.MaxResults))

	requestURL := c.cfg.Host + "/web/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.cfg.APIKey)

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
			return nil, fmt.Errorf("search API request failed with status %d: %s", resp.StatusCode, errorBody)
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

	var response braveResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return response.Web.Results, nil
}

// FormatResults renders results as numbered text with the URL on its own
// line, so the URLs survive into the agent transcript and can be harvested
// as sources later.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	for i, result := range results {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, result.Title))
		sb.WriteString(fmt.Sprintf("   URL: %s\n", result.URL))
		if result.Description != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", result.Description))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
