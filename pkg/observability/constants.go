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

package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrSessionID       = "session.id"
	AttrWorkerID        = "worker.id"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrSearchQuery     = "search.query"
	AttrErrorType       = "error.type"
	AttrStatusCode      = "http.status_code"

	SpanWorkerRun     = "research.worker_run"
	SpanLLMRequest    = "research.llm_request"
	SpanToolExecution = "research.tool_execution"
	SpanSearchRequest = "research.search_request"

	DefaultServiceName = "argus"
)
