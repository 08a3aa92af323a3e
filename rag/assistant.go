package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Stage names the step of index building that failed.
type Stage int

const (
	StageLoadCSV Stage = iota
	StageLoadPDF
	StageIndex
)

func (s Stage) String() string {
	switch s {
	case StageLoadCSV:
		return "CSV files"
	case StageLoadPDF:
		return "PDF file"
	case StageIndex:
		return "index"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError reports a source that could not be loaded or indexed.
type StageError struct {
	Stage  Stage
	Source string
	Err    error
}

func (e *StageError) Error() string {
	switch e.Stage {
	case StageLoadCSV:
		return fmt.Sprintf("Error loading CSV files: %s: %v", e.Source, e.Err)
	case StageLoadPDF:
		return fmt.Sprintf("Error loading PDF file: %v", e.Err)
	default:
		return fmt.Sprintf("Error indexing %s: %v", e.Source, e.Err)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrNoText is returned for a document that yields no fragments.
var ErrNoText = errors.New("no extractable text")

// ErrEmptyQuery is returned by Compose when the patient ID or question is blank.
var ErrEmptyQuery = errors.New("patient id and question are required")

// Loader reads a file at path into documents.
type Loader interface {
	Load(ctx context.Context, path string) ([]Document, error)
}

// Source describes one uploaded document and the tool built over it.
type Source struct {
	Key         string
	ToolName    string
	Label       string
	Description string
	PDF         bool
}

// Sources in the order their answers are composed.
var Sources = []Source{
	{Key: "appointments", ToolName: "appointments_tool", Label: "Appointments Tool", Description: "Search appointments"},
	{Key: "history", ToolName: "patient_history_tool", Label: "Patient History Tool", Description: "Search patient history"},
	{Key: "summary", ToolName: "summary_tool", Label: "Summary Tool", Description: "Search last appointment summary", PDF: true},
}

// Uploads holds the materialized file path of every source.
type Uploads struct {
	Appointments string
	History      string
	Summary      string
}

func (u Uploads) path(key string) string {
	switch key {
	case "appointments":
		return u.Appointments
	case "history":
		return u.History
	case "summary":
		return u.Summary
	}
	return ""
}

// Assistant builds a fresh set of per-source tools for every submission.
type Assistant struct {
	CSVLoader   Loader
	PDFLoader   Loader
	CSVSplitter *RecursiveSplitter
	PDFSplitter *RecursiveSplitter
	Embedder    Embedder
	Generator   Generator
	TopK        int
}

// Index loads, splits and embeds each source in turn. A source that fails
// is reported and left out; the others are still indexed.
func (a *Assistant) Index(ctx context.Context, uploads Uploads) (*Index, []*StageError) {
	logger := zerolog.Ctx(ctx)
	ix := &Index{}
	var errs []*StageError

	for _, src := range Sources {
		start := time.Now()
		loader, splitter, stage := a.CSVLoader, a.CSVSplitter, StageLoadCSV
		if src.PDF {
			loader, splitter, stage = a.PDFLoader, a.PDFSplitter, StageLoadPDF
		}

		docs, err := loader.Load(ctx, uploads.path(src.Key))
		if err != nil {
			errs = append(errs, &StageError{Stage: stage, Source: src.Key, Err: err})
			continue
		}
		chunks := splitter.SplitDocuments(docs, src.Key)
		if len(chunks) == 0 {
			errs = append(errs, &StageError{Stage: stage, Source: src.Key, Err: ErrNoText})
			continue
		}

		store, err := BuildStore(ctx, a.Embedder, chunks)
		if err != nil {
			errs = append(errs, &StageError{Stage: StageIndex, Source: src.Key, Err: err})
			continue
		}

		logger.Debug().
			Str("source", src.Key).
			Int("documents", len(docs)).
			Int("fragments", len(chunks)).
			Dur("took", time.Since(start)).
			Msg("source indexed")

		ix.tools = append(ix.tools, NewTool(src.ToolName, src.Label, src.Description, store, a.Embedder, a.Generator, a.TopK))
	}

	for _, e := range errs {
		logger.Warn().Err(e.Err).Str("source", e.Source).Stringer("stage", e.Stage).Msg("source skipped")
	}
	return ix, errs
}

// Index is the set of tools built for one submission.
type Index struct {
	tools []*Tool
}

// Tools lists the tools in composition order.
func (ix *Index) Tools() []*Tool {
	return ix.tools
}

// Release drops the indexed fragments of every tool. The index answers
// nothing afterwards.
func (ix *Index) Release() {
	for _, t := range ix.tools {
		t.store.Clear()
	}
}

// Query scopes a question to a patient. ok is false if either part is blank.
func Query(patientID, question string) (query string, ok bool) {
	patientID = strings.TrimSpace(patientID)
	question = strings.TrimSpace(question)
	if patientID == "" || question == "" {
		return "", false
	}
	return fmt.Sprintf("Patient ID: %s. %s", patientID, question), true
}

// Section is one tool's contribution to a report.
type Section struct {
	Tool   string
	Label  string
	Result ToolResult
}

// Report is the composed answer of one submission.
type Report struct {
	Query    string
	Sections []Section
}

// Text joins the labeled sections with blank lines.
func (r Report) Text() string {
	parts := make([]string, len(r.Sections))
	for i, s := range r.Sections {
		parts[i] = fmt.Sprintf("**%s**: %s", s.Label, s.Result.Text())
	}
	return strings.Join(parts, "\n\n")
}

// Compose runs every tool, one after another, with the patient-scoped query.
func (ix *Index) Compose(ctx context.Context, patientID, question string) (Report, error) {
	query, ok := Query(patientID, question)
	if !ok {
		return Report{}, ErrEmptyQuery
	}

	report := Report{Query: query, Sections: make([]Section, 0, len(ix.tools))}
	for _, t := range ix.tools {
		report.Sections = append(report.Sections, Section{
			Tool:   t.Name,
			Label:  t.Label,
			Result: t.Run(ctx, query),
		})
	}
	return report, nil
}
