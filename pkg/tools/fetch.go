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
	"github.com/mitchellh/mapstructure"
)

// FetchTool retrieves a single web page as readable text. Used when search
// snippets are not enough and the agent wants the page itself.
type FetchTool struct {
	fetcher fetch.Fetcher
}

var _ Tool = (*FetchTool)(nil)

type fetchArgs struct {
	URL string `json:"url" jsonschema:"required,description=The URL to fetch" mapstructure:"url"`
}

// NewFetchTool creates a fetch tool backed by the given fetcher.
func NewFetchTool(fetcher fetch.Fetcher) *FetchTool {
	return &FetchTool{fetcher: fetcher}
}

func (t *FetchTool) Name() string {
	return "fetch"
}

func (t *FetchTool) Description() string {
	return `Fetch a web page and return its readable text content. Use for reading a specific URL found during search.
Args: {"url": "https://example.com/page"}`
}

// ArgsSchema publishes the argument schema for prompt catalogs.
func (t *FetchTool) ArgsSchema() map[string]any {
	return mustSchema[fetchArgs]()
}

func (t *FetchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var params fetchArgs
	if err := mapstructure.Decode(args, &params); err != nil {
		return "", fmt.Errorf("invalid fetch arguments: %w", err)
	}
	if params.URL == "" {
		return "", fmt.Errorf("fetch requires a 'url' argument")
	}

	return t.fetcher.Fetch(ctx, params.URL)
}
