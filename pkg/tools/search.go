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

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/argus/pkg/search"
	"github.com/mitchellh/mapstructure"
)

// SearchTool exposes web search to agents. Multiple queries in one call are
// merged and deduplicated by URL, so the model can probe a topic from a few
// angles at the cost of a single tool round-trip.
type SearchTool struct {
	searcher   search.Searcher
	summarizer *ContentSummarizer
}

var _ Tool = (*SearchTool)(nil)

type searchArgs struct {
	Queries []string `json:"queries" jsonschema:"description=Focused search queries; results are merged and deduplicated" mapstructure:"queries"`
	Query   string   `json:"query,omitempty" jsonschema:"description=Single query alternative to queries" mapstructure:"query"`
}

// NewSearchTool creates a search tool backed by the given searcher.
func NewSearchTool(searcher search.Searcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

// SetSummarizer enables per-result page summaries in search output.
func (t *SearchTool) SetSummarizer(summarizer *ContentSummarizer) {
	t.summarizer = summarizer
}

func (t *SearchTool) Name() string {
	return "search"
}

func (t *SearchTool) Description() string {
	return `Search the web for information. Provide 1-3 focused queries; results are merged and deduplicated.
Args: {"queries": ["first query", "second query"]}`
}

// ArgsSchema publishes the argument schema for prompt catalogs.
func (t *SearchTool) ArgsSchema() map[string]any {
	return mustSchema[searchArgs]()
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var params searchArgs
	if err := mapstructure.Decode(args, &params); err != nil {
		return "", fmt.Errorf("invalid search arguments: %w", err)
	}

	queries := params.Queries
	if len(queries) == 0 && params.Query != "" {
		queries = []string{params.Query}
	}
	if len(queries) == 0 {
		return "", fmt.Errorf("search requires a 'queries' argument")
	}

	results, err := t.searcher.Search(ctx, queries)
	if err != nil {
		return "", err
	}

	if t.summarizer != nil {
		if summaries := t.summarizer.SummarizeResults(ctx, results); len(summaries) > 0 {
			return formatResultsWithSummaries(results, summaries), nil
		}
	}

	return search.FormatResults(results), nil
}

func formatResultsWithSummaries(results []search.Result, summaries map[string]string) string {
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
		if summary, ok := summaries[result.URL]; ok && summary != "" {
			sb.WriteString(fmt.Sprintf("   Summary: %s\n", summary))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
