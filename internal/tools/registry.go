// Package tools exposes the callable capabilities offered to the model.
// There is exactly one: fetching a book's full summary by exact title.
package tools

import (
	"fmt"
	"strings"

	"librarian/internal/domain"
	"librarian/internal/llm"
)

// ToolGetSummary is the registered name of the summary lookup tool.
const ToolGetSummary = "get_summary_by_title"

// Fixed tool outputs. Tool execution never fails: its output is spliced
// straight into the next model turn, so every outcome is plain text.
const (
	MsgEmptyTitle  = "The title is empty."
	MsgUnknownTool = "Unknown tool."
)

// Registry maps every known title, plus a lowercased/trimmed fallback key,
// to its record. Both keys point at the same record, so a catalog of N books
// holds at most 2N entries.
type Registry struct {
	books map[string]domain.Book
}

// NewRegistry builds the lookup table from the catalog.
func NewRegistry(books []domain.Book) *Registry {
	idx := make(map[string]domain.Book, 2*len(books))
	for _, b := range books {
		idx[b.Title] = b
	}
	for _, b := range books {
		idx[strings.ToLower(strings.TrimSpace(b.Title))] = b
	}
	return &Registry{books: idx}
}

// GetSummaryByTitle returns the full long-form summary for an exact title,
// tolerating case and surrounding whitespace.
func (r *Registry) GetSummaryByTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return MsgEmptyTitle
	}
	if b, ok := r.books[title]; ok {
		return b.LongSummary
	}
	if b, ok := r.books[strings.ToLower(strings.TrimSpace(title))]; ok {
		return b.LongSummary
	}
	return fmt.Sprintf("I could not find %q in the local catalog.", title)
}

// Spec returns the declarative schema for the model's function-calling
// interface.
func (r *Registry) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Type: "function",
		Function: llm.FunctionSpec{
			Name:        ToolGetSummary,
			Description: "Returns the full summary (paragraphs) for an exact book title.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "The exact title of the book to fetch the full summary for.",
					},
				},
				"required": []string{"title"},
			},
		},
	}
}

// Call dispatches a tool invocation by name. Unknown names and missing
// arguments degrade to fixed messages.
func (r *Registry) Call(name string, args map[string]any) string {
	switch name {
	case ToolGetSummary:
		title, _ := args["title"].(string)
		return r.GetSummaryByTitle(title)
	default:
		return MsgUnknownTool
	}
}
