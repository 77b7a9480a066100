// Package service orchestrates the recommendation pipeline: guardrail gate,
// index seeding, retrieval, and the two-turn completion protocol with a
// single tool call.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"librarian/internal/catalog"
	"librarian/internal/domain"
	"librarian/internal/embedding"
	"librarian/internal/guardrail"
	"librarian/internal/llm"
	"librarian/internal/tools"
	"librarian/internal/vectorstore"
)

const systemPrompt = `You are the Smart Librarian.
You receive reading intentions, search the collection by themes and context, and recommend EXACTLY ONE suitable book.
Explain in 2-4 sentences WHY it fits.
Then call the ` + "`get_summary_by_title`" + ` tool to return the FULL SUMMARY.
Avoid major spoilers unless the user explicitly asks for them.
Respond in the language the question was asked in.`

// clarificationMessage is returned when retrieval comes back empty; the
// model is never called on an empty context.
const clarificationMessage = "I could not find anything relevant in the collection. Could you mention a genre, a theme, or a book you enjoyed?"

// Options tunes the orchestration.
type Options struct {
	// TopK is the default number of candidates, bounded to 1-10.
	TopK int
	// FirstTemperature is used for the tool-selection turn, kept low to
	// favour consistent recommendations over creativity.
	FirstTemperature float64
	// FinalTemperature is used for the grounding turn.
	FinalTemperature float64
}

// DefaultOptions returns the temperatures and top-k the pipeline was tuned
// with.
func DefaultOptions() Options {
	return Options{TopK: 5, FirstTemperature: 0.3, FinalTemperature: 0.2}
}

// Librarian owns every collaborator explicitly; nothing here reaches for
// process-wide state.
type Librarian struct {
	guard    *guardrail.Filter
	books    []domain.Book
	embedder embedding.Embedder
	store    vectorstore.Storage
	llm      llm.Completer
	registry *tools.Registry
	opts     Options
	logger   *zap.Logger

	seedMu sync.Mutex
}

// New assembles the orchestrator.
func New(guard *guardrail.Filter, books []domain.Book, embedder embedding.Embedder, store vectorstore.Storage, completer llm.Completer, registry *tools.Registry, opts Options, logger *zap.Logger) *Librarian {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.FirstTemperature == 0 {
		opts.FirstTemperature = 0.3
	}
	if opts.FinalTemperature == 0 {
		opts.FinalTemperature = 0.2
	}
	return &Librarian{
		guard:    guard,
		books:    books,
		embedder: embedder,
		store:    store,
		llm:      completer,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

// Close releases the vector store.
func (l *Librarian) Close() error { return l.store.Close() }

// SeedIfEmpty populates the index from the catalog once. It returns false
// without writing anything when the collection already holds documents; it
// never appends to or updates a non-empty collection. The mutex rules out
// two concurrent first requests both observing an empty collection.
func (l *Librarian) SeedIfEmpty(ctx context.Context) (bool, error) {
	l.seedMu.Lock()
	defer l.seedMu.Unlock()

	count, err := l.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("seed: count: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	docs, err := catalog.BuildDocuments(l.books)
	if err != nil {
		return false, fmt.Errorf("seed: %w", err)
	}
	if len(docs) == 0 {
		return false, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := l.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return false, &ProviderError{Stage: StageSeed, Err: err}
	}
	if err := l.store.Add(ctx, docs, vectors); err != nil {
		return false, fmt.Errorf("seed: add: %w", err)
	}
	l.logger.Info("seeded vector index", zap.Int("documents", len(docs)))
	return true, nil
}

// Answer runs the full pipeline for one user query. Every terminal state
// yields a well-formed Answer; only provider failures also return an error.
// If the second completion fails, the first-turn answer is returned
// alongside the typed error so the caller can degrade gracefully.
func (l *Librarian) Answer(ctx context.Context, userQuery string, topK int) (*domain.Answer, error) {
	if blocked, msg := l.guard.Check(userQuery); blocked {
		l.logger.Info("query blocked by guardrail")
		return &domain.Answer{Assistant: msg}, nil
	}

	if _, err := l.SeedIfEmpty(ctx); err != nil {
		return nil, err
	}

	if topK <= 0 {
		topK = l.opts.TopK
	}
	if topK > 10 {
		topK = 10
	}

	queryVec, err := l.embedder.Embed(ctx, userQuery)
	if err != nil {
		return nil, &ProviderError{Stage: StageQueryEmbed, Err: err}
	}
	passages, err := l.store.Search(ctx, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	l.logger.Debug("retrieved candidates", zap.Int("count", len(passages)))
	if len(passages) == 0 {
		return &domain.Answer{Assistant: clarificationMessage}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleSystem, Content: "Context (candidate books):\n" + formatContext(passages)},
		{Role: llm.RoleUser, Content: userQuery},
	}

	first, err := l.llm.Complete(ctx, messages,
		llm.WithTools(l.registry.Spec()),
		llm.WithTemperature(l.opts.FirstTemperature),
	)
	if err != nil {
		return nil, &ProviderError{Stage: StageFirstCompletion, Err: err}
	}

	answer := &domain.Answer{
		Assistant:  first.Content,
		Candidates: passages,
	}
	if len(first.ToolCalls) == 0 {
		return answer, nil
	}

	// One tool call per turn: execute the first request, discard the rest.
	call := first.ToolCalls[0]
	result := l.registry.Call(call.Function.Name, call.Args())
	answer.UsedTool = call.Function.Name
	answer.ToolResult = result
	l.logger.Info("executed tool", zap.String("tool", call.Function.Name))

	messages = append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: first.Content, ToolCalls: []llm.ToolCall{call}},
		llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: call.ID, Name: call.Function.Name},
	)

	final, err := l.llm.Complete(ctx, messages,
		llm.WithTemperature(l.opts.FinalTemperature),
	)
	if err != nil {
		return answer, &ProviderError{Stage: StageSecondCompletion, Err: err}
	}
	if final.Content != "" {
		answer.Assistant = final.Content
	}
	return answer, nil
}

// formatContext lists each candidate's title and themes for the grounding
// system message.
func formatContext(passages []domain.Passage) string {
	lines := make([]string, 0, len(passages))
	for _, p := range passages {
		lines = append(lines, fmt.Sprintf("- %s | themes: %s", p.Metadata["title"], p.Metadata["themes"]))
	}
	return strings.Join(lines, "\n")
}
