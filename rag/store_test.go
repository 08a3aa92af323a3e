package rag

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStore_AddAndSearch(t *testing.T) {
	store := NewInMemoryStore()

	// 2D toy embeddings so we can reason easily
	chunks := []Chunk{
		{ID: "1", Content: "A", Embedding: []float64{1, 0}},
		{ID: "2", Content: "B", Embedding: []float64{0, 1}},
	}
	store.Add(chunks...)

	// query close to {1,0}
	query := []float64{0.9, 0.1}
	results := store.Search(query, 1)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if results[0].Chunk.ID != "1" {
		t.Fatalf("expected best match to be chunk 1, got %s", results[0].Chunk.ID)
	}
}

func TestCosineSimilarity_Basic(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{1, 0}
	c := []float64{0, 1}

	if got := cosine(a, b); got < 0.99 {
		t.Fatalf("expected cosine(a,b) ~ 1, got %f", got)
	}

	if got := cosine(a, c); got > 0.01 {
		t.Fatalf("expected cosine(a,c) ~ 0, got %f", got)
	}

	if got := cosine(a, []float64{1, 0, 0}); got != 0 {
		t.Fatalf("expected 0 for mismatched dimensions, got %f", got)
	}
}

func TestInMemoryStore_SearchTopKBounds(t *testing.T) {
	store := NewInMemoryStore()
	store.Add(
		Chunk{ID: "1", Embedding: []float64{1, 0}},
		Chunk{ID: "2", Embedding: []float64{0, 1}},
	)

	res := store.Search([]float64{1, 0}, 10)
	if len(res) != 2 {
		t.Fatalf("expected 2 results when topK > len(chunks), got %d", len(res))
	}

	if res := store.Search([]float64{1, 0}, -1); len(res) != 0 {
		t.Fatalf("expected no results for negative topK, got %d", len(res))
	}
}

func TestInMemoryStore_TiesKeepInsertionOrder(t *testing.T) {
	store := NewInMemoryStore()
	store.Add(
		Chunk{ID: "first", Embedding: []float64{1, 0}},
		Chunk{ID: "second", Embedding: []float64{2, 0}},
		Chunk{ID: "third", Embedding: []float64{0, 1}},
	)

	res := store.Search([]float64{1, 0}, 3)
	if res[0].Chunk.ID != "first" || res[1].Chunk.ID != "second" {
		t.Fatalf("expected tie order first, second; got %s, %s", res[0].Chunk.ID, res[1].Chunk.ID)
	}
	if res[2].Chunk.ID != "third" {
		t.Fatalf("expected lowest score last, got %s", res[2].Chunk.ID)
	}
}

func TestInMemoryStore_Clear(t *testing.T) {
	store := NewInMemoryStore()
	store.Add(Chunk{ID: "1", Embedding: []float64{1}})
	store.Clear()

	if store.Len() != 0 {
		t.Fatalf("expected empty store after Clear, got %d", store.Len())
	}
	if res := store.Search([]float64{1}, 4); len(res) != 0 {
		t.Fatalf("expected no results from empty store, got %d", len(res))
	}
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(context.Context, []string) ([][]float64, error) {
	return nil, f.err
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(context.Context, []string) ([][]float64, error) {
	return [][]float64{{1}}, nil
}

func TestBuildStore_EmbedsChunks(t *testing.T) {
	chunks := []Chunk{{ID: "a", Content: "aaa"}, {ID: "b", Content: "b b"}}

	store, err := BuildStore(context.Background(), NewSimpleEmbedder(), chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 chunks, got %d", store.Len())
	}
	for _, r := range store.Search([]float64{1, 1, 0, 0, 0, 0}, 2) {
		if len(r.Chunk.Embedding) == 0 {
			t.Fatalf("chunk %s stored without embedding", r.Chunk.ID)
		}
	}
	if chunks[0].Embedding != nil {
		t.Fatalf("input chunks must not be mutated")
	}
}

func TestBuildStore_Errors(t *testing.T) {
	boom := errors.New("rate limited")
	chunks := []Chunk{{ID: "a", Content: "x"}, {ID: "b", Content: "y"}}

	if _, err := BuildStore(context.Background(), failingEmbedder{err: boom}, chunks); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped embedder error, got %v", err)
	}
	if _, err := BuildStore(context.Background(), shortEmbedder{}, chunks); err == nil {
		t.Fatalf("expected error for vector count mismatch")
	}

	store, err := BuildStore(context.Background(), failingEmbedder{err: boom}, nil)
	if err != nil {
		t.Fatalf("empty input must not call the embedder: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}
