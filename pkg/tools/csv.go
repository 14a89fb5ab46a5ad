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
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/montanaflynn/stats"
)

// AnalyzeCSVTool profiles a CSV file: shape, per-column diversity, and
// distribution statistics for numeric columns. The profile is compact
// enough to sit in an agent's context, unlike the file itself.
type AnalyzeCSVTool struct{}

var _ Tool = (*AnalyzeCSVTool)(nil)

type csvArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to the CSV file" mapstructure:"path"`
}

// NewAnalyzeCSVTool creates a CSV analysis tool.
func NewAnalyzeCSVTool() *AnalyzeCSVTool {
	return &AnalyzeCSVTool{}
}

func (t *AnalyzeCSVTool) Name() string {
	return "analyze_csv"
}

func (t *AnalyzeCSVTool) Description() string {
	return `Analyze a CSV file: column names, row count, per-column uniqueness, and statistics for numeric columns.
Args: {"path": "/path/to/data.csv"}`
}

// ArgsSchema publishes the argument schema for prompt catalogs.
func (t *AnalyzeCSVTool) ArgsSchema() map[string]any {
	return mustSchema[csvArgs]()
}

func (t *AnalyzeCSVTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var params csvArgs
	if err := mapstructure.Decode(args, &params); err != nil {
		return "", fmt.Errorf("invalid analyze_csv arguments: %w", err)
	}
	if params.Path == "" {
		return "", fmt.Errorf("analyze_csv requires a 'path' argument")
	}

	file, err := os.Open(params.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("CSV file is empty")
	}

	header := records[0]
	rows := records[1:]

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("CSV Analysis: %s\n", filepath.Base(params.Path)))
	sb.WriteString(fmt.Sprintf("Rows: %d (excluding header)\n", len(rows)))
	sb.WriteString(fmt.Sprintf("Columns: %d\n\n", len(header)))

	for col, name := range header {
		sb.WriteString(describeColumn(name, columnValues(rows, col)))
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}

func columnValues(rows [][]string, col int) []string {
	var values []string
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		if value := strings.TrimSpace(row[col]); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func describeColumn(name string, values []string) string {
	if len(values) == 0 {
		return fmt.Sprintf("- %s: no values", name)
	}

	unique := make(map[string]bool, len(values))
	for _, value := range values {
		unique[value] = true
	}

	if numbers, ok := parseNumeric(values); ok {
		min, _ := stats.Min(numbers)
		max, _ := stats.Max(numbers)
		mean, _ := stats.Mean(numbers)
		median, _ := stats.Median(numbers)
		stdev, _ := stats.StandardDeviation(numbers)
		return fmt.Sprintf("- %s (numeric): min=%s, max=%s, mean=%s, median=%s, stdev=%s",
			name, formatStat(min), formatStat(max), formatStat(mean), formatStat(median), formatStat(stdev))
	}

	line := fmt.Sprintf("- %s: %d unique values in %d rows", name, len(unique), len(values))
	if len(unique) <= 5 {
		samples := make([]string, 0, len(unique))
		for value := range unique {
			samples = append(samples, value)
		}
		sort.Strings(samples)
		line += fmt.Sprintf(" (%s)", strings.Join(samples, ", "))
	}
	return line
}

func parseNumeric(values []string) ([]float64, bool) {
	numbers := make([]float64, 0, len(values))
	for _, value := range values {
		number, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		numbers = append(numbers, number)
	}
	return numbers, true
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
