// Package web provides ready-made web tools for relay agents. The page
// reader fetches a URL and extracts its readable text so agents can
// consume articles and documentation without raw HTML in the transcript.
package web

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/go-shiori/go-readability"

	"github.com/nevindra/relay"
)

const (
	maxBodyBytes    = 1 << 20 // response body read limit
	maxContentBytes = 8000    // tool result truncation
)

// ReadPageInput is the argument shape for the read_page tool.
type ReadPageInput struct {
	URL string `json:"url" jsonschema:"description=URL of the page to read"`
}

type reader struct {
	client     *http.Client
	maxContent int
}

// Option configures the page reader.
type Option func(*reader)

// WithClient replaces the HTTP client. The default has a 15-second
// timeout.
func WithClient(c *http.Client) Option {
	return func(r *reader) { r.client = c }
}

// WithMaxContent caps the tool result length in bytes.
func WithMaxContent(n int) Option {
	return func(r *reader) { r.maxContent = n }
}

// NewReadPage returns a tool named read_page that fetches a URL and
// extracts its readable text. Extraction prefers the article body;
// pages without one fall back to stripped HTML.
func NewReadPage(opts ...Option) *relay.FunctionTool {
	r := &reader{
		client:     &http.Client{Timeout: 15 * time.Second},
		maxContent: maxContentBytes,
	}
	for _, o := range opts {
		o(r)
	}
	return relay.NewFunctionTool("read_page",
		"Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation.",
		func(ctx context.Context, _ *relay.RunContext, in ReadPageInput) (any, error) {
			return r.readPage(ctx, in)
		})
}

func (r *reader) readPage(ctx context.Context, in ReadPageInput) (any, error) {
	content, err := r.fetch(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	if len(content) > r.maxContent {
		content = content[:r.maxContent] + "\n... (truncated)"
	}
	return content, nil
}

func (r *reader) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; RelayBot/1.0)")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	page := string(body)

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(page), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	return stripHTML(page), nil
}

// stripHTML is the fallback for pages readability cannot parse: drop
// script and style blocks, break on block-level tags, decode entities,
// and collapse blank lines.
func stripHTML(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	inTag := false
	naming := false
	skipping := false
	var tag strings.Builder

	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			naming = true
			tag.Reset()
		case inTag:
			if naming && (unicode.IsSpace(r) || r == '>' || (r == '/' && tag.Len() > 0)) {
				naming = false
				name := strings.ToLower(tag.String())
				switch name {
				case "script", "style":
					skipping = true
				case "/script", "/style":
					skipping = false
				}
				if isBlockTag(name) {
					out.WriteByte('\n')
				}
			} else if naming {
				tag.WriteRune(r)
			}
			if r == '>' {
				inTag = false
			}
		case skipping:
		default:
			out.WriteRune(r)
		}
	}

	return collapseBlankLines(html.UnescapeString(out.String()))
}

func isBlockTag(tag string) bool {
	tag = strings.TrimPrefix(tag, "/")
	switch tag {
	case "p", "div", "br", "hr", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "ul", "ol", "table", "tr", "blockquote", "pre",
		"section", "article", "header", "footer", "nav", "main":
		return true
	}
	return false
}

func collapseBlankLines(text string) string {
	var out strings.Builder
	empty := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if out.Len() > 0 {
				empty++
			}
			continue
		}
		if empty > 1 {
			out.WriteString("\n\n")
		} else if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(trimmed)
		empty = 0
	}
	return strings.TrimSpace(out.String())
}
