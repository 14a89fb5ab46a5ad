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

// Package fetch retrieves web pages and reduces them to readable text for
// LLM consumption. HTML is parsed and stripped of markup, scripts, and
// styles; no JavaScript is executed, so dynamic pages yield whatever the
// server rendered.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kadirpekel/argus/pkg/httpclient"
	"github.com/kadirpekel/argus/pkg/logger"
	"golang.org/x/net/html"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 * 1024 * 1024
	defaultMaxTextChars = 20000
	defaultUserAgent    = "argus-research/1.0"
)

// Fetcher is the capability interface consumed by the fetch tool.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Client fetches pages over HTTP with retry and extracts their text.
type Client struct {
	httpClient   *httpclient.Client
	maxBodyBytes int64
	maxTextChars int
	userAgent    string
}

var _ Fetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient = httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
		)
	}
}

// WithMaxTextChars caps the extracted text length.
func WithMaxTextChars(max int) Option {
	return func(c *Client) {
		c.maxTextChars = max
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a fetcher with sensible defaults.
func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: defaultTimeout}),
			httpclient.WithMaxRetries(2),
		),
		maxBodyBytes: defaultMaxBodyBytes,
		maxTextChars: defaultMaxTextChars,
		userAgent:    defaultUserAgent,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Fetch retrieves the page and returns its readable text, truncated to the
// configured cap. HTML is converted to text; other text content types are
// returned as-is; binary content is refused.
func (c *Client) Fetch(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("fetch failed with status %d for %s", resp.StatusCode, pageURL)
		}
	}
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("HTTP request failed: no response received")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	text, err := c.extract(contentType, body)
	if err != nil {
		return "", err
	}

	logger.GetLogger().Debug("fetched page", "url", pageURL, "bytes", len(body), "chars", len(text))
	return truncateRunes(text, c.maxTextChars), nil
}

func (c *Client) extract(contentType string, body []byte) (string, error) {
	switch {
	case strings.Contains(contentType, "text/html"),
		strings.Contains(contentType, "application/xhtml"),
		contentType == "" && looksLikeHTML(body):
		return extractHTMLText(body)
	case strings.HasPrefix(contentType, "text/"),
		strings.Contains(contentType, "application/json"),
		strings.Contains(contentType, "application/xml"):
		return string(body), nil
	default:
		return "", fmt.Errorf("unsupported content type: %q", contentType)
	}
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// extractHTMLText walks the parse tree collecting text nodes, skipping
// non-content elements, and inserting newlines at block boundaries.
func extractHTMLText(body []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var sb strings.Builder
	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "script", "style", "noscript", "iframe", "svg", "head":
				return
			}
		}

		if node.Type == html.TextNode {
			if text := strings.TrimSpace(node.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}

		if node.Type == html.ElementNode && isBlockElement(node.Data) {
			sb.WriteString("\n")
		}
	}
	walk(doc)

	text := spaceRuns.ReplaceAllString(sb.String(), " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = newlineRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text), nil
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "ul", "ol", "tr", "table", "article", "section",
		"header", "footer", "blockquote", "pre":
		return true
	}
	return false
}

// truncateRunes cuts at a rune boundary so multi-byte characters survive.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[content truncated]"
}
