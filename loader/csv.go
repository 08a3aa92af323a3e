package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"patient-rag-assistant/rag"
)

// CSVLoader turns every data row into a document of "column: value" lines.
type CSVLoader struct {
	Comma rune
}

func NewCSVLoader() *CSVLoader {
	return &CSVLoader{Comma: ','}
}

func (l *CSVLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	if l.Comma != 0 {
		r.Comma = l.Comma
	}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var docs []rag.Document
	for row := 0; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		lines := make([]string, len(header))
		for i, col := range header {
			lines[i] = strings.TrimSpace(col) + ": " + strings.TrimSpace(record[i])
		}
		docs = append(docs, rag.Document{
			Content: strings.Join(lines, "\n"),
			Metadata: map[string]any{
				"source": path,
				"row":    row,
			},
		})
	}
	return docs, nil
}
