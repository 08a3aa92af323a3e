package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"patient-rag-assistant/rag"
)

// PDFLoader extracts the plain text of each page as its own document.
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

func (l *PDFLoader) Load(ctx context.Context, path string) (docs []rag.Document, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// the pdf package panics on some malformed inputs
	defer func() {
		if p := recover(); p != nil {
			docs, err = nil, fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	rdr, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	for i := 1; i <= rdr.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("reading page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		docs = append(docs, rag.Document{
			Content: text,
			Metadata: map[string]any{
				"source": path,
				"page":   i - 1,
			},
		})
	}
	return docs, nil
}
