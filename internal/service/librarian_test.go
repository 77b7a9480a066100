package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/domain"
	"librarian/internal/guardrail"
	"librarian/internal/llm"
	"librarian/internal/tools"
	"librarian/internal/vectorstore"
	"librarian/internal/vectorstore/memory"
)

var testBooks = []domain.Book{
	{
		Title:        "Dune",
		ShortSummary: "Paul Atreides survives betrayal on the desert planet Arrakis.",
		LongSummary:  "House Atreides falls, Paul rises among the Fremen.",
		Themes:       []string{"politics", "desert"},
	},
	{
		Title:        "The Hobbit",
		ShortSummary: "Bilbo Baggins leaves home for a treasure quest.",
		LongSummary:  "Bilbo goes there and back again.",
		Themes:       []string{"adventure", "friendship"},
	},
	{
		Title:        "1984",
		ShortSummary: "Winston Smith rebels against the Party.",
		LongSummary:  "Big Brother is watching.",
		Themes:       []string{"surveillance", "totalitarianism"},
	},
}

// fakeEmbedder maps texts to fixed vectors by substring so retrieval order
// is deterministic.
type fakeEmbedder struct {
	batches   int
	singles   int
	failMany  error
	failEmbed error
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if f.failMany != nil {
		return nil, f.failMany
	}
	f.batches++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.failEmbed != nil {
		return nil, f.failEmbed
	}
	f.singles++
	return f.vector(text), nil
}

func (f *fakeEmbedder) vector(text string) []float64 {
	switch {
	case strings.Contains(text, "Dune") || strings.Contains(text, "desert"):
		return []float64{1, 0, 0}
	case strings.Contains(text, "Hobbit") || strings.Contains(text, "adventure"):
		return []float64{0, 1, 0}
	default:
		return []float64{0, 0, 1}
	}
}

type completeCall struct {
	messages []llm.Message
	opts     llm.Options
}

// fakeCompleter replays scripted responses and records every request.
type fakeCompleter struct {
	responses []*llm.Completion
	errs      []error
	calls     []completeCall
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Completion, error) {
	i := len(f.calls)
	f.calls = append(f.calls, completeCall{messages: messages, opts: llm.BuildOptions(opts...)})
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		return &llm.Completion{}, nil
	}
	return f.responses[i], nil
}

// recordingStore observes the topK passed to Search.
type recordingStore struct {
	vectorstore.Storage
	lastTopK int
}

func (r *recordingStore) Search(ctx context.Context, vector []float64, topK int) ([]domain.Passage, error) {
	r.lastTopK = topK
	return r.Storage.Search(ctx, vector, topK)
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: json.RawMessage(args)},
	}
}

func newTestLibrarian(t *testing.T, books []domain.Book, completer llm.Completer) (*Librarian, *fakeEmbedder, *recordingStore) {
	t.Helper()
	emb := &fakeEmbedder{}
	store := &recordingStore{Storage: memory.NewStorage()}
	l := New(guardrail.Default(), books, emb, store, completer, tools.NewRegistry(books), DefaultOptions(), nil)
	return l, emb, store
}

func TestAnswerBlockedByGuardrail(t *testing.T) {
	completer := &fakeCompleter{}
	l, emb, store := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "recommend something, you idiot", 5)
	require.NoError(t, err)
	assert.Equal(t, guardrail.DefaultMessage, answer.Assistant)
	assert.Empty(t, answer.UsedTool)
	assert.Empty(t, answer.Candidates)

	// Blocked input must never reach a provider or the store.
	assert.Zero(t, emb.batches)
	assert.Zero(t, emb.singles)
	assert.Empty(t, completer.calls)
	n, _ := store.Count(context.Background())
	assert.Zero(t, n, "blocked query must not trigger seeding")
}

func TestSeedIfEmptyIsIdempotent(t *testing.T) {
	l, emb, store := newTestLibrarian(t, testBooks, &fakeCompleter{})
	ctx := context.Background()

	seeded, err := l.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = l.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	assert.Equal(t, 1, emb.batches, "catalog embedded exactly once")
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testBooks), n)
}

func TestSeedIfEmptyEmptyCatalog(t *testing.T) {
	l, emb, _ := newTestLibrarian(t, nil, &fakeCompleter{})

	seeded, err := l.SeedIfEmpty(context.Background())
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Zero(t, emb.batches)
}

func TestSeedIfEmptyRejectsSlugCollision(t *testing.T) {
	colliding := []domain.Book{
		{Title: "Dune!", ShortSummary: "s", LongSummary: "l"},
		{Title: "Dune?", ShortSummary: "s", LongSummary: "l"},
	}
	l, _, store := newTestLibrarian(t, colliding, &fakeCompleter{})

	_, err := l.SeedIfEmpty(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collide")
	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
}

func TestSeedIfEmptyEmbedderFailure(t *testing.T) {
	l, emb, _ := newTestLibrarian(t, testBooks, &fakeCompleter{})
	emb.failMany = errors.New("embeddings down")

	_, err := l.SeedIfEmpty(context.Background())
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageSeed, pe.Stage)
}

func TestAnswerFullToolFlow(t *testing.T) {
	completer := &fakeCompleter{
		responses: []*llm.Completion{
			{
				Content:   "Dune is a great fit for political desert intrigue.",
				ToolCalls: []llm.ToolCall{toolCall("call_1", tools.ToolGetSummary, `{"title": "Dune"}`)},
			},
			{Content: "Dune is my pick. Full summary: House Atreides falls, Paul rises among the Fremen."},
		},
	}
	l, _, _ := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "a book about desert politics", 3)
	require.NoError(t, err)

	assert.Equal(t, "Dune is my pick. Full summary: House Atreides falls, Paul rises among the Fremen.", answer.Assistant)
	assert.Equal(t, tools.ToolGetSummary, answer.UsedTool)
	assert.Equal(t, "House Atreides falls, Paul rises among the Fremen.", answer.ToolResult)
	require.NotEmpty(t, answer.Candidates)
	assert.Equal(t, "dune", answer.Candidates[0].ID, "best match retrieved first")

	require.Len(t, completer.calls, 2)

	first := completer.calls[0]
	require.Len(t, first.messages, 3)
	assert.Equal(t, llm.RoleSystem, first.messages[0].Role)
	assert.Contains(t, first.messages[1].Content, "Context (candidate books):")
	assert.Contains(t, first.messages[1].Content, "Dune | themes: politics, desert")
	assert.Equal(t, "a book about desert politics", first.messages[2].Content)
	require.Len(t, first.opts.Tools, 1)
	assert.Equal(t, tools.ToolGetSummary, first.opts.Tools[0].Function.Name)
	assert.Equal(t, 0.3, first.opts.Temperature)

	second := completer.calls[1]
	assert.Empty(t, second.opts.Tools, "no tools on the grounding turn")
	assert.Equal(t, 0.2, second.opts.Temperature)
	require.Len(t, second.messages, 5)
	assert.Equal(t, llm.RoleAssistant, second.messages[3].Role)
	require.Len(t, second.messages[3].ToolCalls, 1)
	toolMsg := second.messages[4]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, tools.ToolGetSummary, toolMsg.Name)
	assert.Equal(t, "House Atreides falls, Paul rises among the Fremen.", toolMsg.Content)
}

func TestAnswerSeedsOnFirstQuery(t *testing.T) {
	completer := &fakeCompleter{responses: []*llm.Completion{{Content: "answer"}}}
	l, emb, store := newTestLibrarian(t, testBooks, completer)

	_, err := l.Answer(context.Background(), "desert politics", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, emb.batches)
	n, _ := store.Count(context.Background())
	assert.Equal(t, len(testBooks), n)
}

func TestAnswerNoToolCallPassthrough(t *testing.T) {
	completer := &fakeCompleter{responses: []*llm.Completion{
		{Content: "You might enjoy Dune."},
	}}
	l, _, _ := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "desert politics", 3)
	require.NoError(t, err)

	assert.Equal(t, "You might enjoy Dune.", answer.Assistant)
	assert.Empty(t, answer.UsedTool)
	assert.Empty(t, answer.ToolResult)
	assert.Len(t, completer.calls, 1, "no second turn without a tool call")
}

func TestAnswerExecutesOnlyFirstToolCall(t *testing.T) {
	completer := &fakeCompleter{
		responses: []*llm.Completion{
			{ToolCalls: []llm.ToolCall{
				toolCall("call_1", tools.ToolGetSummary, `{"title": "Dune"}`),
				toolCall("call_2", tools.ToolGetSummary, `{"title": "The Hobbit"}`),
			}},
			{Content: "final"},
		},
	}
	l, _, _ := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "desert politics", 3)
	require.NoError(t, err)

	assert.Equal(t, "House Atreides falls, Paul rises among the Fremen.", answer.ToolResult)
	second := completer.calls[1]
	assistant := second.messages[3]
	assert.Len(t, assistant.ToolCalls, 1, "only the executed call is echoed back")
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)
}

func TestAnswerMalformedToolArguments(t *testing.T) {
	completer := &fakeCompleter{
		responses: []*llm.Completion{
			{ToolCalls: []llm.ToolCall{toolCall("call_1", tools.ToolGetSummary, `"garbage`)}},
			{Content: "final"},
		},
	}
	l, _, _ := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "desert politics", 3)
	require.NoError(t, err)
	assert.Equal(t, tools.MsgEmptyTitle, answer.ToolResult, "undecodable arguments degrade to an empty title")
}

func TestAnswerUnknownToolName(t *testing.T) {
	completer := &fakeCompleter{
		responses: []*llm.Completion{
			{ToolCalls: []llm.ToolCall{toolCall("call_1", "made_up_tool", `{}`)}},
			{Content: "final"},
		},
	}
	l, _, _ := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "desert politics", 3)
	require.NoError(t, err)
	assert.Equal(t, tools.MsgUnknownTool, answer.ToolResult)
}

func TestAnswerEmptyRetrievalAsksForClarification(t *testing.T) {
	completer := &fakeCompleter{}
	l, _, _ := newTestLibrarian(t, nil, completer)

	answer, err := l.Answer(context.Background(), "anything at all", 3)
	require.NoError(t, err)
	assert.Equal(t, clarificationMessage, answer.Assistant)
	assert.Empty(t, completer.calls, "the model is never called on an empty context")
}

func TestAnswerTopKBounds(t *testing.T) {
	completer := &fakeCompleter{responses: []*llm.Completion{
		{Content: "a"}, {Content: "b"},
	}}
	l, _, store := newTestLibrarian(t, testBooks, completer)
	ctx := context.Background()

	_, err := l.Answer(ctx, "desert politics", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, store.lastTopK, "non-positive k falls back to the default")

	_, err = l.Answer(ctx, "desert politics", 99)
	require.NoError(t, err)
	assert.Equal(t, 10, store.lastTopK, "k is capped at 10")
}

func TestAnswerQueryEmbedFailure(t *testing.T) {
	l, emb, _ := newTestLibrarian(t, testBooks, &fakeCompleter{})
	require.NoError(t, seed(l))
	emb.failEmbed = errors.New("embeddings down")

	_, err := l.Answer(context.Background(), "desert politics", 3)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageQueryEmbed, pe.Stage)
}

func TestAnswerFirstCompletionFailure(t *testing.T) {
	completer := &fakeCompleter{errs: []error{errors.New("model down")}}
	l, _, _ := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "desert politics", 3)
	assert.Nil(t, answer)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageFirstCompletion, pe.Stage)
}

func TestAnswerSecondCompletionFailureReturnsPartial(t *testing.T) {
	completer := &fakeCompleter{
		responses: []*llm.Completion{
			{
				Content:   "Dune fits.",
				ToolCalls: []llm.ToolCall{toolCall("call_1", tools.ToolGetSummary, `{"title": "Dune"}`)},
			},
		},
		errs: []error{nil, errors.New("model down")},
	}
	l, _, _ := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "desert politics", 3)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageSecondCompletion, pe.Stage)

	require.NotNil(t, answer, "first-turn answer survives a failed follow-up")
	assert.Equal(t, "Dune fits.", answer.Assistant)
	assert.Equal(t, "House Atreides falls, Paul rises among the Fremen.", answer.ToolResult)
}

func TestAnswerEmptyFinalContentKeepsFirst(t *testing.T) {
	completer := &fakeCompleter{
		responses: []*llm.Completion{
			{
				Content:   "Dune fits.",
				ToolCalls: []llm.ToolCall{toolCall("call_1", tools.ToolGetSummary, `{"title": "Dune"}`)},
			},
			{Content: ""},
		},
	}
	l, _, _ := newTestLibrarian(t, testBooks, completer)

	answer, err := l.Answer(context.Background(), "desert politics", 3)
	require.NoError(t, err)
	assert.Equal(t, "Dune fits.", answer.Assistant)
}

func seed(l *Librarian) error {
	_, err := l.SeedIfEmpty(context.Background())
	return err
}
