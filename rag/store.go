package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	chunks []Chunk
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chunks: []Chunk{},
	}
}

// BuildStore embeds chunks in one batch and returns a store holding them.
func BuildStore(ctx context.Context, embedder Embedder, chunks []Chunk) (*InMemoryStore, error) {
	store := NewInMemoryStore()
	if len(chunks) == 0 {
		return store, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d fragments: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d fragments", len(vectors), len(chunks))
	}

	embedded := make([]Chunk, len(chunks))
	for i, ch := range chunks {
		ch.Embedding = vectors[i]
		embedded[i] = ch
	}
	store.Add(embedded...)
	return store, nil
}

func (s *InMemoryStore) Add(chunks ...Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// naive cosine similarity
func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Search returns up to topK chunks by descending cosine score. Equal scores
// keep insertion order.
func (s *InMemoryStore) Search(queryEmbedding []float64, topK int) []SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.chunks))
	for _, ch := range s.chunks {
		results = append(results, SearchResult{
			Chunk: ch,
			Score: cosine(queryEmbedding, ch.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < 0 {
		topK = 0
	}
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK]
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
}
