package rag

// Document is one record produced by a loader: a CSV row or a PDF page.
type Document struct {
	Content  string
	Metadata map[string]any
}

// Chunk of a document
type Chunk struct {
	ID        string
	Content   string
	Source    string // source label or file path
	Metadata  map[string]any
	Embedding []float64
}

// Simple query result
type SearchResult struct {
	Chunk Chunk
	Score float64
}
