package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTopK matches the usual retriever default of four fragments.
const DefaultTopK = 4

// SystemPrompt frames every tool answer.
const SystemPrompt = "You are a helpful assistant for doctors. Provide a detailed patient summary based on available data."

// ErrorPrefix starts the placeholder text that replaces a failed tool answer.
const ErrorPrefix = "⚠️ Error retrieving data: "

var errNoContext = errors.New("no indexed fragments")

// Tool answers questions from a single source's store.
type Tool struct {
	Name        string
	Label       string
	Description string

	store     *InMemoryStore
	embedder  Embedder
	generator Generator
	topK      int
}

func NewTool(name, label, description string, store *InMemoryStore, embedder Embedder, generator Generator, topK int) *Tool {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Tool{
		Name:        name,
		Label:       label,
		Description: description,
		store:       store,
		embedder:    embedder,
		generator:   generator,
		topK:        topK,
	}
}

// ToolResult is either an answer or the error that replaced it.
type ToolResult struct {
	Answer string
	Err    error
}

func (r ToolResult) OK() bool { return r.Err == nil }

// Text is the answer, or the warning placeholder when the call failed.
func (r ToolResult) Text() string {
	if r.Err != nil {
		return ErrorPrefix + r.Err.Error()
	}
	return r.Answer
}

// Answer retrieves the closest fragments and asks the generator to answer
// query from them.
func (t *Tool) Answer(ctx context.Context, query string) (string, error) {
	if t.store == nil || t.store.Len() == 0 {
		return "", errNoContext
	}
	vectors, err := t.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}

	results := t.store.Search(vectors[0], t.topK)
	answer, err := t.generator.Generate(ctx, SystemPrompt, BuildPrompt(query, results))
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// Run is Answer that never fails: errors and panics from the backend come
// back inside the result.
func (t *Tool) Run(ctx context.Context, query string) (res ToolResult) {
	logger := zerolog.Ctx(ctx).With().Str("tool", t.Name).Logger()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res = ToolResult{Err: fmt.Errorf("%v", p)}
		}
		if res.Err != nil {
			logger.Warn().Err(res.Err).Dur("took", time.Since(start)).Msg("tool failed")
			return
		}
		logger.Debug().Dur("took", time.Since(start)).Int("answer_len", len(res.Answer)).Msg("tool answered")
	}()

	answer, err := t.Answer(ctx, query)
	if err != nil {
		return ToolResult{Err: err}
	}
	return ToolResult{Answer: answer}
}

// BuildPrompt stuffs the retrieved fragments ahead of the question.
func BuildPrompt(query string, results []SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}

	var sb strings.Builder
	sb.WriteString("Use the following pieces of context to answer the question at the end. ")
	sb.WriteString("If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\nHelpful Answer:")
	return sb.String()
}
