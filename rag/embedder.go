package rag

import "context"

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Generator produces a completion for a system message and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// SimpleEmbedder is a deterministic offline embedder based on rune classes.
// It needs no credentials and is only good enough for demos and tests.
type SimpleEmbedder struct{}

func NewSimpleEmbedder() *SimpleEmbedder {
	return &SimpleEmbedder{}
}

func (e *SimpleEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// 6D vector: length, vowels, consonants, spaces, digits, punctuation
func (e *SimpleEmbedder) vector(text string) []float64 {
	var length, vowels, consonants, spaces, digits, punct float64
	for _, r := range text {
		length++
		switch {
		case r == 'a' || r == 'e' || r == 'i' || r == 'o' || r == 'u' ||
			r == 'A' || r == 'E' || r == 'I' || r == 'O' || r == 'U':
			vowels++
		case r == ' ' || r == '\n' || r == '\t':
			spaces++
		case r >= '0' && r <= '9':
			digits++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			consonants++
		default:
			punct++
		}
	}
	return []float64{length, vowels, consonants, spaces, digits, punct}
}
