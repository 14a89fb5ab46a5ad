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

// Package docs extracts plain text from local documents so agents can pull
// findings from files alongside web sources. PDF, Word, and Excel files get
// native extraction; everything else is read as plain text.
package docs

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

const (
	defaultMaxChars = 50000

	// maxCellsPerSheet bounds spreadsheet extraction so a dense workbook
	// cannot blow the context budget.
	maxCellsPerSheet = 1000
)

// Reader is the capability interface consumed by the read_document tool.
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
}

// DocReader dispatches on file extension to the matching extractor.
type DocReader struct {
	maxChars int
}

var _ Reader = (*DocReader)(nil)

// Option configures a DocReader.
type Option func(*DocReader)

// WithMaxChars caps the extracted text length.
func WithMaxChars(max int) Option {
	return func(r *DocReader) {
		r.maxChars = max
	}
}

// NewDocReader creates a document reader with defaults.
func NewDocReader(opts ...Option) *DocReader {
	reader := &DocReader{maxChars: defaultMaxChars}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// SupportedExtensions lists the formats with native extraction. Other
// extensions fall back to plain-text reading.
func (r *DocReader) SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".xlsx"}
}

// Read extracts the document's text.
func (r *DocReader) Read(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot access document: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("cannot read document: %s is a directory", path)
	}

	var content string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err = r.readPDF(ctx, path, info.Size())
	case ".docx":
		content, err = r.readWord(path)
	case ".xlsx":
		content, err = r.readExcel(ctx, path)
	default:
		content, err = r.readPlain(path)
	}
	if err != nil {
		return "", err
	}

	return truncate(content, r.maxChars), nil
}

func (r *DocReader) readPDF(ctx context.Context, path string, fileSize int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	reader, err := pdf.NewReader(file, fileSize)
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var contentParts []string
	totalPages := reader.NumPage()

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			contentParts = append(contentParts, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}

		if strings.TrimSpace(text) != "" {
			contentParts = append(contentParts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}

	return strings.Join(contentParts, "\n\n"), nil
}

var wordXMLTags = regexp.MustCompile(`<[^>]*>`)

func (r *DocReader) readWord(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse Word document: %w", err)
	}
	defer doc.Close()

	// GetContent returns WordprocessingML; strip the markup down to text
	// with paragraph breaks preserved.
	content := doc.Editable().GetContent()
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = wordXMLTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	return strings.TrimSpace(content), nil
}

func (r *DocReader) readExcel(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse Excel document: %w", err)
	}
	defer f.Close()

	var contentParts []string

	for _, sheetName := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			sheetText.WriteString(fmt.Sprintf("Error reading sheet: %v\n", err))
			contentParts = append(contentParts, strings.TrimSpace(sheetText.String()))
			continue
		}

		cellCount := 0
		for rowIndex, row := range rows {
			if cellCount >= maxCellsPerSheet {
				sheetText.WriteString("... (truncated)\n")
				break
			}
			for colIndex, cell := range row {
				if cellCount >= maxCellsPerSheet {
					break
				}
				if text := strings.TrimSpace(cell); text != "" {
					cellRef := fmt.Sprintf("%s%d", columnLetter(colIndex), rowIndex+1)
					sheetText.WriteString(fmt.Sprintf("%s: %s\n", cellRef, text))
					cellCount++
				}
			}
		}

		if text := strings.TrimSpace(sheetText.String()); text != "" {
			contentParts = append(contentParts, text)
		}
	}

	return strings.Join(contentParts, "\n\n"), nil
}

func (r *DocReader) readPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	if isBinary(data) {
		return "", fmt.Errorf("cannot read document: %s appears to be binary", path)
	}
	return string(data), nil
}

func isBinary(data []byte) bool {
	probe := data[:min(len(data), 8000)]
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}
	return false
}

// columnLetter converts a 0-based column index to an Excel column letter
// (A, B, ..., Z, AA, AB, ...).
func columnLetter(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[content truncated]"
}
