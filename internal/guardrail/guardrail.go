// Package guardrail is the pre-flight content filter. It runs before any
// remote call, so a match costs nothing beyond the regexp scan.
package guardrail

import (
	"fmt"
	"regexp"
)

// DefaultMessage is the fixed apology returned for blocked input.
const DefaultMessage = "Let's keep the conversation friendly. Please rephrase your question."

// DefaultPatterns matches obviously hostile or offensive phrasing.
var DefaultPatterns = []string{
	`\bidiot\b`,
	`\bmoron\b`,
	`\bstupid\b`,
	`\bdumbass\b`,
	`\bshut up\b`,
	`\bgo to hell\b`,
	`\bf+u+c*k+\w*\b`,
}

// Filter tests input against an ordered set of case-insensitive rules.
type Filter struct {
	rules   []*regexp.Regexp
	message string
}

// New compiles the pattern set. A pattern that fails to compile is an error
// here rather than a silently skipped rule: a filter that drops rules on bad
// input stops filtering exactly when it matters.
func New(patterns []string, message string) (*Filter, error) {
	if message == "" {
		message = DefaultMessage
	}
	rules := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("guardrail: compile pattern %q: %w", p, err)
		}
		rules = append(rules, re)
	}
	return &Filter{rules: rules, message: message}, nil
}

// Default returns a filter with the built-in pattern set.
func Default() *Filter {
	f, err := New(DefaultPatterns, DefaultMessage)
	if err != nil {
		panic(err) // built-in patterns are compile-tested
	}
	return f
}

// Check reports whether the text is blocked and, if so, the fixed apology.
// Empty text is never blocked.
func (f *Filter) Check(text string) (bool, string) {
	if text == "" {
		return false, ""
	}
	for _, re := range f.rules {
		if re.MatchString(text) {
			return true, f.message
		}
	}
	return false, ""
}
