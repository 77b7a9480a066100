// Package catalog loads the static book catalog and derives indexable
// documents from it.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"librarian/internal/domain"
)

// Load reads the catalog file and validates it. Titles must be non-empty
// and unique; the records are treated as immutable afterwards.
func Load(path string) ([]domain.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var books []domain.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(books))
	for i, b := range books {
		title := strings.TrimSpace(b.Title)
		if title == "" {
			return nil, fmt.Errorf("catalog: record %d has an empty title", i)
		}
		if _, dup := seen[title]; dup {
			return nil, fmt.Errorf("catalog: duplicate title %q", title)
		}
		seen[title] = struct{}{}
		books[i].Title = title
	}
	return books, nil
}

// Slug derives the stable document id for a title: lowercase, alphanumeric
// runs kept, everything else collapsed to a single separator, trimmed.
func Slug(title string) string {
	var b strings.Builder
	lastDash := true // suppress a leading separator
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BuildDocuments derives one Document per Book. Two titles mapping to the
// same slug would silently overwrite each other at insert time, so id
// collisions are rejected here instead.
func BuildDocuments(books []domain.Book) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(books))
	byID := make(map[string]string, len(books))
	for _, b := range books {
		id := Slug(b.Title)
		if other, ok := byID[id]; ok {
			return nil, fmt.Errorf("catalog: titles %q and %q collide on id %q", other, b.Title, id)
		}
		byID[id] = b.Title
		docs = append(docs, domain.Document{
			ID:   id,
			Text: DocumentText(b),
			Metadata: map[string]string{
				"title":  b.Title,
				"themes": strings.Join(b.Themes, ", "),
			},
		})
	}
	return docs, nil
}

// DocumentText concatenates the searchable fields of a record.
func DocumentText(b domain.Book) string {
	return fmt.Sprintf("Title: %s\nThemes: %s\nShort: %s\nLong: %s",
		b.Title, strings.Join(b.Themes, ", "), b.ShortSummary, b.LongSummary)
}
