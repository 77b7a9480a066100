package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBlocksOffensiveInput(t *testing.T) {
	f := Default()

	cases := []string{
		"you are an idiot",
		"You are an IDIOT",
		"shut up and recommend something",
		"what the fuck do you know about books",
		"fuuuuck this catalog",
	}
	for _, in := range cases {
		blocked, msg := f.Check(in)
		assert.True(t, blocked, "input %q should be blocked", in)
		assert.Equal(t, DefaultMessage, msg)
	}
}

func TestCheckPassesFriendlyInput(t *testing.T) {
	f := Default()

	cases := []string{
		"I want a book about friendship and magic",
		"something set in a desert with political intrigue",
		"", // empty input is never blocked
	}
	for _, in := range cases {
		blocked, msg := f.Check(in)
		assert.False(t, blocked, "input %q should pass", in)
		assert.Empty(t, msg)
	}
}

func TestCheckWordBoundaries(t *testing.T) {
	f := Default()

	// Substrings inside larger words do not trigger word-bounded rules.
	blocked, _ := f.Check("a story about the moronic comedy of manners")
	assert.False(t, blocked)
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New([]string{`\b(unclosed`}, "")
	require.Error(t, err)
}

func TestNewUsesDefaultMessage(t *testing.T) {
	f, err := New([]string{`\bspam\b`}, "")
	require.NoError(t, err)

	blocked, msg := f.Check("this is spam")
	assert.True(t, blocked)
	assert.Equal(t, DefaultMessage, msg)
}

func TestNewCustomMessage(t *testing.T) {
	f, err := New([]string{`\bspam\b`}, "Please be nice.")
	require.NoError(t, err)

	blocked, msg := f.Check("pure spam")
	assert.True(t, blocked)
	assert.Equal(t, "Please be nice.", msg)
}
