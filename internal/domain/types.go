package domain

// Book is a single catalog record. Loaded once from the catalog file and
// never mutated afterwards.
type Book struct {
	Title        string   `json:"title"`
	ShortSummary string   `json:"short_summary"`
	LongSummary  string   `json:"long_summary"`
	Themes       []string `json:"themes"`
}

// Document is an indexable derivation of a Book: a stable id, the full
// searchable text, and flat string metadata. Metadata values are always
// plain strings; structured catalog fields are serialized before they get
// here (themes become a comma-separated list).
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Passage is a single retrieval hit, ordered nearest-first by Distance
// (cosine distance, lower is closer).
type Passage struct {
	ID       string            `json:"id"`
	Text     string            `json:"document"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// Answer is the final result of one orchestration turn.
type Answer struct {
	Assistant  string    `json:"assistant"`
	UsedTool   string    `json:"used_tool,omitempty"`
	ToolResult string    `json:"tool_result,omitempty"`
	Candidates []Passage `json:"candidates,omitempty"`
}
