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

	"github.com/kadirpekel/argus/pkg/fetch"
	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/logger"
	"github.com/kadirpekel/argus/pkg/search"
)

const summarizePromptTemplate = `Summarize the following web page content in 2-3 sentences. Focus on concrete facts, figures, and claims a researcher could cite. Content:

%s`

// maxSummarizedPages bounds how many result pages one search call fetches
// for summarization; each page costs a fetch plus an LLM call.
const maxSummarizedPages = 3

// ContentSummarizer fetches search result pages and condenses each into a
// short summary via the fast model, so search output carries page substance
// instead of just provider snippets.
type ContentSummarizer struct {
	client   llm.ChatClient
	fetcher  fetch.Fetcher
	maxPages int
}

// NewContentSummarizer creates a summarizer that fetches with default
// settings and summarizes with the given client.
func NewContentSummarizer(client llm.ChatClient) *ContentSummarizer {
	return &ContentSummarizer{
		client:   client,
		fetcher:  fetch.NewClient(fetch.WithMaxTextChars(8000)),
		maxPages: maxSummarizedPages,
	}
}

// SummarizeResults returns summaries keyed by URL for the top results.
// Pages that fail to fetch or summarize are skipped; a partial map is still
// useful.
func (s *ContentSummarizer) SummarizeResults(ctx context.Context, results []search.Result) map[string]string {
	summaries := make(map[string]string)

	for i, result := range results {
		if i >= s.maxPages {
			break
		}
		if ctx.Err() != nil {
			break
		}

		summary, err := s.summarizePage(ctx, result.URL)
		if err != nil {
			logger.GetLogger().Debug("page summary skipped", "url", result.URL, "error", err)
			continue
		}
		summaries[result.URL] = summary
	}

	return summaries
}

func (s *ContentSummarizer) summarizePage(ctx context.Context, pageURL string) (string, error) {
	content, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", fmt.Errorf("page has no readable text")
	}

	resp, err := s.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(summarizePromptTemplate, content)},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}

	return resp.Choices[0].Message.Content, nil
}
