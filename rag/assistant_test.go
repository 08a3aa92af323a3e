package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLoader map[string][]Document

func (m mapLoader) Load(_ context.Context, path string) ([]Document, error) {
	docs, ok := m[path]
	if !ok {
		return nil, errors.New("cannot parse " + path)
	}
	return docs, nil
}

// routedGenerator fails whenever the prompt contains failOn.
type routedGenerator struct {
	failOn string
}

func (g routedGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	if g.failOn != "" && strings.Contains(prompt, g.failOn) {
		return "", errors.New("upstream 500")
	}
	return "answer text", nil
}

func newTestAssistant(t *testing.T, loader mapLoader, gen Generator) *Assistant {
	t.Helper()
	csvSplit, err := NewRecursiveSplitter(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	pdfSplit, err := NewRecursiveSplitter(DefaultPDFChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	return &Assistant{
		CSVLoader:   loader,
		PDFLoader:   loader,
		CSVSplitter: csvSplit,
		PDFSplitter: pdfSplit,
		Embedder:    NewSimpleEmbedder(),
		Generator:   gen,
	}
}

func fullLoader() mapLoader {
	return mapLoader{
		"appointments.csv": {{Content: "patient_id: 7\ndate: 2024-03-01\nstatus: booked", Metadata: map[string]any{"row": 0}}},
		"history.csv":      {{Content: "patient_id: 7\ncondition: hypertension", Metadata: map[string]any{"row": 0}}},
		"summary.pdf":      {{Content: "Last visit: BP 150/95, start lisinopril.", Metadata: map[string]any{"page": 0}}},
	}
}

var fullUploads = Uploads{Appointments: "appointments.csv", History: "history.csv", Summary: "summary.pdf"}

func TestAssistant_ThreeSectionsInOrder(t *testing.T) {
	a := newTestAssistant(t, fullLoader(), routedGenerator{})

	ix, errs := a.Index(context.Background(), fullUploads)
	require.Empty(t, errs)

	report, err := ix.Compose(context.Background(), "7", "What is the current treatment?")
	require.NoError(t, err)

	require.Len(t, report.Sections, 3)
	assert.Equal(t, "Appointments Tool", report.Sections[0].Label)
	assert.Equal(t, "Patient History Tool", report.Sections[1].Label)
	assert.Equal(t, "Summary Tool", report.Sections[2].Label)
	assert.Equal(t, "Patient ID: 7. What is the current treatment?", report.Query)

	text := report.Text()
	i1 := strings.Index(text, "**Appointments Tool**: ")
	i2 := strings.Index(text, "**Patient History Tool**: ")
	i3 := strings.Index(text, "**Summary Tool**: ")
	assert.True(t, i1 == 0 && i1 < i2 && i2 < i3, "sections out of order: %q", text)
	assert.Equal(t, 2, strings.Count(text, "\n\n"))
}

func TestAssistant_PDFFailureDropsSummary(t *testing.T) {
	loader := fullLoader()
	delete(loader, "summary.pdf")
	a := newTestAssistant(t, loader, routedGenerator{})

	ix, errs := a.Index(context.Background(), fullUploads)
	require.Len(t, errs, 1)
	assert.Equal(t, StageLoadPDF, errs[0].Stage)
	assert.True(t, strings.HasPrefix(errs[0].Error(), "Error loading PDF file: "))

	report, err := ix.Compose(context.Background(), "7", "status?")
	require.NoError(t, err)
	require.Len(t, report.Sections, 2)
	assert.NotContains(t, report.Text(), "Summary Tool")
}

func TestAssistant_CSVFailureNamesStage(t *testing.T) {
	loader := fullLoader()
	delete(loader, "history.csv")
	a := newTestAssistant(t, loader, routedGenerator{})

	ix, errs := a.Index(context.Background(), fullUploads)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error loading CSV files: history: cannot parse history.csv", errs[0].Error())

	var stageErr *StageError
	assert.True(t, errors.As(error(errs[0]), &stageErr))
	assert.Len(t, ix.Tools(), 2)
}

func TestAssistant_EmptyDocumentIsLoadError(t *testing.T) {
	loader := fullLoader()
	loader["summary.pdf"] = []Document{{Content: "   "}}
	a := newTestAssistant(t, loader, routedGenerator{})

	_, errs := a.Index(context.Background(), fullUploads)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNoText)
}

func TestAssistant_IndexErrorOnEmbedFailure(t *testing.T) {
	a := newTestAssistant(t, fullLoader(), routedGenerator{})
	a.Embedder = failingEmbedder{err: errors.New("quota exceeded")}

	ix, errs := a.Index(context.Background(), fullUploads)
	require.Len(t, errs, 3)
	for _, e := range errs {
		assert.Equal(t, StageIndex, e.Stage)
		assert.Contains(t, e.Error(), "quota exceeded")
	}
	assert.Empty(t, ix.Tools())
}

func TestAssistant_OneToolFailureIsIsolated(t *testing.T) {
	a := newTestAssistant(t, fullLoader(), routedGenerator{failOn: "hypertension"})

	ix, errs := a.Index(context.Background(), fullUploads)
	require.Empty(t, errs)

	report, err := ix.Compose(context.Background(), "7", "conditions?")
	require.NoError(t, err)
	require.Len(t, report.Sections, 3)

	assert.True(t, report.Sections[0].Result.OK())
	assert.False(t, report.Sections[1].Result.OK())
	assert.True(t, strings.HasPrefix(report.Sections[1].Result.Text(), ErrorPrefix))
	assert.True(t, report.Sections[2].Result.OK())
	assert.Equal(t, "answer text", report.Sections[2].Result.Text())
}

func TestIndex_ComposeRequiresPatientAndQuestion(t *testing.T) {
	gen := &fakeGenerator{answer: "x"}
	a := newTestAssistant(t, fullLoader(), gen)
	ix, _ := a.Index(context.Background(), fullUploads)

	_, err := ix.Compose(context.Background(), "", "question")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = ix.Compose(context.Background(), "7", "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, gen.prompts)
}

func TestIndex_ToolsDeclared(t *testing.T) {
	a := newTestAssistant(t, fullLoader(), routedGenerator{})
	ix, _ := a.Index(context.Background(), fullUploads)

	var names []string
	for _, tool := range ix.Tools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"appointments_tool", "patient_history_tool", "summary_tool"}, names)
}

func TestIndex_ReleaseClearsStores(t *testing.T) {
	a := newTestAssistant(t, fullLoader(), routedGenerator{})

	ix, errs := a.Index(context.Background(), fullUploads)
	require.Empty(t, errs)
	for _, tool := range ix.Tools() {
		require.Positive(t, tool.store.Len())
	}

	ix.Release()

	for _, tool := range ix.Tools() {
		assert.Zero(t, tool.store.Len(), tool.Name)
	}
	report, err := ix.Compose(context.Background(), "7", "Anything?")
	require.NoError(t, err)
	for _, sec := range report.Sections {
		assert.False(t, sec.Result.OK(), sec.Label)
	}
}

func TestQuery(t *testing.T) {
	q, ok := Query(" 42 ", "Any allergies?")
	assert.True(t, ok)
	assert.Equal(t, "Patient ID: 42. Any allergies?", q)

	_, ok = Query("42", "")
	assert.False(t, ok)
}
