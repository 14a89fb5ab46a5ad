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

	"github.com/kadirpekel/argus/pkg/docs"
	"github.com/mitchellh/mapstructure"
)

// ReadDocumentTool extracts text from local files so agents can research
// against documents the user supplies alongside the web.
type ReadDocumentTool struct {
	reader docs.Reader
}

var _ Tool = (*ReadDocumentTool)(nil)

type documentArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to the document" mapstructure:"path"`
}

// NewReadDocumentTool creates a document reading tool.
func NewReadDocumentTool(reader docs.Reader) *ReadDocumentTool {
	return &ReadDocumentTool{reader: reader}
}

func (t *ReadDocumentTool) Name() string {
	return "read_document"
}

func (t *ReadDocumentTool) Description() string {
	return `Read a local document and return its text. Supports PDF, DOCX, XLSX, and plain-text files.
Args: {"path": "/path/to/document.pdf"}`
}

// ArgsSchema publishes the argument schema for prompt catalogs.
func (t *ReadDocumentTool) ArgsSchema() map[string]any {
	return mustSchema[documentArgs]()
}

func (t *ReadDocumentTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	var params documentArgs
	if err := mapstructure.Decode(args, &params); err != nil {
		return "", fmt.Errorf("invalid read_document arguments: %w", err)
	}
	if params.Path == "" {
		return "", fmt.Errorf("read_document requires a 'path' argument")
	}

	return t.reader.Read(ctx, params.Path)
}
