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

// Package vault persists completed research reports as markdown files in a
// user-chosen directory, one file per session, named after the report title.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kadirpekel/argus/pkg/research"
)

// Writer writes reports into a vault directory as <slug>-<session-id>.md.
type Writer struct {
	dir string
}

// New creates a writer rooted at dir. The directory is created on first
// write.
func New(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the vault directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write renders the session's report to markdown and writes it into the
// vault, returning the path of the written file.
func (w *Writer) Write(state *research.ResearchState) (string, error) {
	if state.Report == nil {
		return "", fmt.Errorf("session %s has no report", state.ID)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create vault dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.md", Slug(state.Report.Title), state.ID)
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(render(state)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// render produces the vault document: the report content, a sources section
// when the content lacks one, and a session footer.
func render(state *research.ResearchState) string {
	report := state.Report
	content := strings.TrimSpace(report.FullContent)

	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n")

	if len(report.Citations) > 0 && !strings.Contains(content, "## Sources") {
		b.WriteString("\n## Sources\n\n")
		for _, c := range report.Citations {
			fmt.Fprintf(&b, "[%d] %s\n", c.ID, c.URL)
		}
	}

	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "- Session: %s\n", state.ID)
	fmt.Fprintf(&b, "- Query: %s\n", state.Query)
	fmt.Fprintf(&b, "- Mode: %s\n", state.Mode)
	if state.CompletedAt != nil {
		fmt.Fprintf(&b, "- Completed: %s\n", state.CompletedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Cost: $%.4f (%d tokens)\n", state.Cost.TotalCost, state.Cost.TotalTokens)
	return b.String()
}

// Slug converts a report title into a file name fragment: lowercased,
// alphanumerics kept, every other run of characters collapsed to a single
// dash, capped at 60 characters. An empty result falls back to "report".
func Slug(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))

	var b strings.Builder
	lastDash := true
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	if slug == "" {
		slug = "report"
	}
	return slug
}
