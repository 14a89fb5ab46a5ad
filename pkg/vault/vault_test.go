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

package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kadirpekel/argus/pkg/research"
	"github.com/kadirpekel/argus/pkg/session"
)

func completedState(id, title string, citations []session.Citation) *research.ResearchState {
	state := research.NewResearchState(id)
	state.Query = "how does the go scheduler work"
	state.Mode = research.ModeFast
	completed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	state.CompletedAt = &completed
	state.Cost = session.CostBreakdown{TotalTokens: 1234, TotalCost: 0.0425}
	state.Report = &research.ReportState{
		Title:       title,
		Summary:     "Scheduling in short.",
		FullContent: "# " + title + "\n\nRun queues are per-P.",
		Citations:   citations,
		Cost:        session.CostBreakdown{TotalTokens: 400, TotalCost: 0.0125},
	}
	return state
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	state := completedState("sess-1", "Go Scheduler Internals", []session.Citation{
		{ID: 1, URL: "https://go.dev/ref/1", Title: "Go runtime docs"},
	})
	path, err := w.Write(state)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := filepath.Base(path); got != "go-scheduler-internals-sess-1.md" {
		t.Errorf("file name = %q", got)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("file written outside vault dir: %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(raw)
	if !strings.HasPrefix(content, "# Go Scheduler Internals") {
		t.Errorf("content does not start with the report heading:\n%s", content)
	}
	for _, want := range []string{
		"## Sources",
		"[1] https://go.dev/ref/1",
		"- Session: sess-1",
		"- Query: how does the go scheduler work",
		"- Mode: fast",
		"- Completed: 2026-03-14T09:30:00Z",
		"$0.0425",
		"1234 tokens",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
}

func TestWriteKeepsExistingSourcesSection(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	state := completedState("sess-2", "Go Scheduler Internals", []session.Citation{
		{ID: 1, URL: "https://go.dev/ref/1"},
	})
	state.Report.FullContent += "\n\n## Sources\n\n[1] https://go.dev/ref/1\n"

	path, err := w.Write(state)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if got := strings.Count(string(raw), "## Sources"); got != 1 {
		t.Errorf("sources sections = %d, want 1", got)
	}
}

func TestWriteWithoutReport(t *testing.T) {
	w := New(t.TempDir())
	state := research.NewResearchState("sess-3")
	if _, err := w.Write(state); err == nil || !strings.Contains(err.Error(), "has no report") {
		t.Fatalf("error = %v, want missing report", err)
	}
}

func TestWriteCreatesVaultDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "research", "vault")
	w := New(dir)

	state := completedState("sess-4", "Untitled", nil)
	path, err := w.Write(state)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("written file: %v", err)
	}
}

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Go Scheduler Internals", "go-scheduler-internals"},
		{"C++ & Go: A Comparison!", "c-go-a-comparison"},
		{"  spaced   out  ", "spaced-out"},
		{"MiXeD-CaSe_Title 42", "mixed-case-title-42"},
		{"???", "report"},
		{"", "report"},
	}
	for _, tc := range cases {
		if got := Slug(tc.in); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := Slug(strings.Repeat("ab ", 40))
	if len(long) > 60 {
		t.Errorf("long slug length = %d, want <= 60", len(long))
	}
	if strings.HasPrefix(long, "-") || strings.HasSuffix(long, "-") {
		t.Errorf("long slug has dangling separator: %q", long)
	}
}
