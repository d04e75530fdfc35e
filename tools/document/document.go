// Package document provides document-reading tools for relay agents.
// The PDF reader extracts plain text with ledongthuc/pdf (pure Go, no
// CGO), so agents can consume reports and papers from the local
// filesystem.
package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nevindra/relay"
)

const maxContentBytes = 16000 // tool result truncation

// ReadPDFInput is the argument shape for the read_pdf tool.
type ReadPDFInput struct {
	Path     string `json:"path" jsonschema:"description=Path to the PDF file"`
	MaxPages int    `json:"max_pages,omitempty" jsonschema:"description=Stop after this many pages; 0 reads all"`
}

// NewReadPDF returns a tool named read_pdf that extracts plain text
// from a local PDF file, page by page. Unreadable pages are skipped.
func NewReadPDF() *relay.FunctionTool {
	return relay.NewFunctionTool("read_pdf",
		"Extract the plain text of a local PDF file. Use for reading reports, papers, manuals.",
		readPDF)
}

func readPDF(_ context.Context, _ *relay.RunContext, in ReadPDFInput) (any, error) {
	if in.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	content, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	text, err := extractText(content, in.MaxPages)
	if err != nil {
		return nil, err
	}

	if len(text) > maxContentBytes {
		text = text[:maxContentBytes] + "\n... (truncated)"
	}
	return text, nil
}

// extractText pulls plain text from PDF bytes, joining pages with blank
// lines. maxPages 0 means no page limit.
func extractText(content []byte, maxPages int) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var text strings.Builder
	pages := r.NumPage()
	if maxPages > 0 && maxPages < pages {
		pages = maxPages
	}

	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unreadable pages
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
	}

	return strings.TrimSpace(text.String()), nil
}
