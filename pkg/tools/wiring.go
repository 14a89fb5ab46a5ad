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
	"github.com/kadirpekel/argus/pkg/docs"
	"github.com/kadirpekel/argus/pkg/fetch"
	"github.com/kadirpekel/argus/pkg/llm"
	"github.com/kadirpekel/argus/pkg/search"
)

// NewSubResearcherRegistry wires the tool set sub-researchers run with:
// search (optionally with page summaries), fetch, read_document,
// analyze_csv, and think.
//
// If summaryClient is non-nil, search results include LLM-generated
// summaries of page content.
func NewSubResearcherRegistry(searcher search.Searcher, fetcher fetch.Fetcher, reader docs.Reader, summaryClient llm.ChatClient) *Registry {
	registry := NewRegistry()

	searchTool := NewSearchTool(searcher)
	if summaryClient != nil {
		searchTool.SetSummarizer(NewContentSummarizer(summaryClient))
	}
	registry.Register(searchTool)

	registry.Register(NewFetchTool(fetcher))
	registry.Register(NewReadDocumentTool(reader))
	registry.Register(NewAnalyzeCSVTool())
	registry.Register(&ThinkTool{})

	return registry
}
