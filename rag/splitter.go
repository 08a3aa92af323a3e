package rag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Default sizing for tabular sources. PDF pages use DefaultPDFChunkSize.
const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 200
	DefaultPDFChunkSize = 500
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter cuts text on the first separator that occurs in it and
// recurses into pieces that are still longer than ChunkSize. Sizes are
// measured in runes.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewRecursiveSplitter(chunkSize, chunkOverlap int) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", chunkOverlap, chunkSize)
	}
	return &RecursiveSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Separators:   defaultSeparators,
	}, nil
}

// SplitText returns the fragments of text in order.
func (s *RecursiveSplitter) SplitText(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	return s.split(text, seps)
}

// SplitDocuments splits every document and tags each fragment with its
// document's metadata. source labels the chunk IDs.
func (s *RecursiveSplitter) SplitDocuments(docs []Document, source string) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for _, piece := range s.SplitText(doc.Content) {
			chunks = append(chunks, Chunk{
				ID:       source + "-" + strconv.Itoa(len(chunks)+1),
				Content:  piece,
				Source:   source,
				Metadata: copyMetadata(doc.Metadata),
			})
		}
	}
	return chunks
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs small pieces into fragments of at most ChunkSize runes,
// carrying up to ChunkOverlap runes of the previous fragment forward.
// Pieces already carry their separator so they are joined with "".
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > s.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator splits text on sep and glues the separator to the
// front of the following piece. An empty sep splits into runes.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func copyMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
