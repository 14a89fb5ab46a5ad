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

package session

// ValidatedFact is a fact that survived cross-validation. A fact counts as
// corroborated when at least two distinct source URLs agree on it.
type ValidatedFact struct {
	Fact
	CorroboratedBy []string `json:"corroborated_by,omitempty"`
}

// Corroborated reports whether the fact is backed by two or more distinct
// sources, counting the fact's own source.
func (v ValidatedFact) Corroborated() bool {
	distinct := make(map[string]struct{}, len(v.CorroboratedBy)+1)
	if v.Source != "" {
		distinct[v.Source] = struct{}{}
	}
	for _, url := range v.CorroboratedBy {
		if url != "" {
			distinct[url] = struct{}{}
		}
	}
	return len(distinct) >= 2
}

// Contradiction records two claims that cannot both hold.
type Contradiction struct {
	Claim1 string `json:"claim1"`
	Claim2 string `json:"claim2"`
	Nature string `json:"nature"`
}

// KnowledgeGap describes a question the collected facts leave open.
type KnowledgeGap struct {
	Description      string   `json:"description"`
	Importance       float64  `json:"importance"`
	SuggestedQueries []string `json:"suggested_queries,omitempty"`
}

// Citation is a numbered source reference in the final report.
type Citation struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}
