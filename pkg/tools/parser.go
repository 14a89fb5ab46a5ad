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
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ToolCall is a parsed tool invocation from an LLM response. Tool calls use
// XML-style tags: <tool name="toolname">{"arg": "value"}</tool>
type ToolCall struct {
	Tool string
	Args map[string]interface{}
}

var (
	toolRegex    = regexp.MustCompile(`(?s)<tool\s+name="([^"]+)">\s*(\{.*?\})\s*</tool>`)
	answerRegex  = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)
	thoughtRegex = regexp.MustCompile(`(?s)<thought>(.*?)</thought>`)
	actionRegex  = regexp.MustCompile(`(?s)<action>(.*?)</action>`)
	urlRegex     = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
)

// ParseToolCalls extracts tool calls from LLM response content in document
// order. A call whose JSON arguments fail to parse is skipped; the other
// calls still execute.
func ParseToolCalls(content string) []ToolCall {
	matches := toolRegex.FindAllStringSubmatch(content, -1)
	var calls []ToolCall

	for _, match := range matches {
		if len(match) < 3 {
			continue
		}

		toolName := match[1]
		argsJSON := match[2]

		var args map[string]interface{}
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			// Skip malformed JSON
			continue
		}

		calls = append(calls, ToolCall{
			Tool: toolName,
			Args: args,
		})
	}

	return calls
}

// HasToolCall checks whether a specific tool was called in the response.
func HasToolCall(content, toolName string) bool {
	for _, call := range ParseToolCalls(content) {
		if call.Tool == toolName {
			return true
		}
	}
	return false
}

// RenderToolCall formats a call in the markup the parser accepts. Used when
// prompts need a concrete example and by tests.
func RenderToolCall(toolName string, args map[string]interface{}) string {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte("{}")
	}
	return fmt.Sprintf(`<tool name="%s">%s</tool>`, toolName, argsJSON)
}

// ExtractAnswer returns the content of the first <answer> block.
func ExtractAnswer(content string) (string, bool) {
	match := answerRegex.FindStringSubmatch(content)
	if match == nil {
		return "", false
	}
	return strings.TrimSpace(match[1]), true
}

// ExtractThought returns the first <thought> block, falling back to the
// first paragraph of the response.
func ExtractThought(content string) string {
	if match := thoughtRegex.FindStringSubmatch(content); match != nil {
		return strings.TrimSpace(match[1])
	}

	paragraph := content
	if idx := strings.Index(content, "\n\n"); idx > 0 {
		paragraph = content[:idx]
	}
	paragraph = strings.TrimSpace(paragraph)
	if len(paragraph) > 500 {
		paragraph = paragraph[:500] + "..."
	}
	return paragraph
}

// ExtractAction returns the first <action> block, or "tool_call" when the
// response contains tool markup without an explicit action tag.
func ExtractAction(content string) string {
	if match := actionRegex.FindStringSubmatch(content); match != nil {
		return strings.TrimSpace(match[1])
	}
	if toolRegex.MatchString(content) {
		return "tool_call"
	}
	return ""
}

// ExtractURLs pulls every URL out of free text, deduplicated in first-seen
// order. Trailing punctuation that commonly follows URLs in prose is
// stripped.
func ExtractURLs(text string) []string {
	matches := urlRegex.FindAllString(text, -1)

	var urls []string
	seen := make(map[string]bool)
	for _, match := range matches {
		url := strings.TrimRight(match, ".,;:!?")
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		urls = append(urls, url)
	}
	return urls
}

var thinkCallRegex = regexp.MustCompile(`(?s)<tool\s+name="think">\s*\{[^}]*\}\s*</tool>`)

// FilterThinkToolCalls removes think tool calls and their acknowledgements
// from content. Used during context compression to exclude internal
// reflections from summaries.
func FilterThinkToolCalls(content string) string {
	filtered := thinkCallRegex.ReplaceAllString(content, "")

	lines := strings.Split(filtered, "\n")
	var filteredLines []string
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "Reflection recorded:") {
			continue
		}
		filteredLines = append(filteredLines, line)
	}

	return strings.TrimSpace(strings.Join(filteredLines, "\n"))
}

// truncateString truncates a string to the specified length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
