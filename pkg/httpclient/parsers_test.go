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

package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestParseOpenRouterHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  http.Header
		expected RateLimitInfo
	}{
		{
			name:     "empty_headers",
			headers:  http.Header{},
			expected: RateLimitInfo{},
		},
		{
			name: "retry_after_seconds",
			headers: http.Header{
				"Retry-After": []string{"30"},
			},
			expected: RateLimitInfo{RetryAfter: 30 * time.Second},
		},
		{
			name: "reset_unix_milliseconds",
			headers: http.Header{
				"X-Ratelimit-Reset": []string{"1735689600000"},
			},
			expected: RateLimitInfo{ResetTime: 1735689600},
		},
		{
			name: "requests_remaining",
			headers: http.Header{
				"X-Ratelimit-Remaining": []string{"42"},
			},
			expected: RateLimitInfo{RequestsRemaining: 42},
		},
		{
			name: "all_headers",
			headers: http.Header{
				"Retry-After":           []string{"5"},
				"X-Ratelimit-Reset":     []string{"1735689600000"},
				"X-Ratelimit-Remaining": []string{"10"},
			},
			expected: RateLimitInfo{
				RetryAfter:        5 * time.Second,
				ResetTime:         1735689600,
				RequestsRemaining: 10,
			},
		},
		{
			name: "malformed_values_ignored",
			headers: http.Header{
				"Retry-After":           []string{"soon"},
				"X-Ratelimit-Reset":     []string{"never"},
				"X-Ratelimit-Remaining": []string{"many"},
			},
			expected: RateLimitInfo{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseOpenRouterHeaders(tt.headers)
			if info != tt.expected {
				t.Errorf("ParseOpenRouterHeaders() = %+v, want %+v", info, tt.expected)
			}
		})
	}
}

func TestParseBraveHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  http.Header
		expected RateLimitInfo
	}{
		{
			name:     "empty_headers",
			headers:  http.Header{},
			expected: RateLimitInfo{},
		},
		{
			name: "comma_separated_windows",
			headers: http.Header{
				"X-Ratelimit-Remaining": []string{"1, 14978"},
				"X-Ratelimit-Reset":     []string{"1, 1419704"},
			},
			expected: RateLimitInfo{
				RetryAfter:        1 * time.Second,
				RequestsRemaining: 1,
			},
		},
		{
			name: "retry_after_takes_precedence",
			headers: http.Header{
				"Retry-After":       []string{"3"},
				"X-Ratelimit-Reset": []string{"10, 1419704"},
			},
			expected: RateLimitInfo{RetryAfter: 3 * time.Second},
		},
		{
			name: "single_value_remaining",
			headers: http.Header{
				"X-Ratelimit-Remaining": []string{"0"},
			},
			expected: RateLimitInfo{RequestsRemaining: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseBraveHeaders(tt.headers)
			if info != tt.expected {
				t.Errorf("ParseBraveHeaders() = %+v, want %+v", info, tt.expected)
			}
		})
	}
}

func TestFirstIntField(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"42", 42, true},
		{"1, 15000", 1, true},
		{" 7 , 100", 7, true},
		{"", 0, false},
		{"abc", 0, false},
		{"abc, 5", 0, false},
	}

	for _, tt := range tests {
		got, ok := firstIntField(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("firstIntField(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
