package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"patient-rag-assistant/config"
	"patient-rag-assistant/loader"
	"patient-rag-assistant/rag"
)

// BackendFactory builds the embedding and chat backend for one credential.
type BackendFactory func(apiKey string) (rag.Embedder, rag.Generator, error)

type Server struct {
	cfg        *config.AppConfig
	newBackend BackendFactory
	csvSplit   *rag.RecursiveSplitter
	pdfSplit   *rag.RecursiveSplitter
	csvLoader  rag.Loader
	pdfLoader  rag.Loader
	page       *template.Template
}

func NewServer(cfg *config.AppConfig, newBackend BackendFactory) (*Server, error) {
	csvSplit, err := rag.NewRecursiveSplitter(cfg.Splitter.ChunkSize, cfg.Splitter.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("csv splitter: %w", err)
	}
	pdfSplit, err := rag.NewRecursiveSplitter(cfg.Splitter.PDFChunkSize, cfg.Splitter.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("pdf splitter: %w", err)
	}
	return &Server{
		cfg:        cfg,
		newBackend: newBackend,
		csvSplit:   csvSplit,
		pdfSplit:   pdfSplit,
		csvLoader:  loader.NewCSVLoader(),
		pdfLoader:  loader.NewPDFLoader(),
		page:       pageTemplate,
	}, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/summary", s.apiSummaryHandler)
	mux.HandleFunc("/", s.formHandler)
	return loggingMiddleware(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

// Form field names shared by the page and the JSON API.
const (
	fieldAPIKey       = "api_key"
	fieldAppointments = "appointments"
	fieldHistory      = "history"
	fieldSummary      = "summary"
	fieldPatientID    = "patient_id"
	fieldQuestion     = "question"
)

var (
	errMissingKey   = errors.New("an OpenAI API key is required")
	errMissingFiles = errors.New("upload the appointments CSV, the patient history CSV and the last appointment summary PDF")
)

// submission is the outcome of one form post.
type submission struct {
	ID        string
	MaskedKey string
	PatientID string
	Question  string
	Errors    []*rag.StageError
	Report    *rag.Report
}

// requestError carries the HTTP status for a rejected form.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// GET / renders the form, POST / processes it
func (s *Server) formHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.render(w, http.StatusOK, pageData{})
	case http.MethodPost:
		sub, err := s.submit(w, r)
		data := newPageData(sub)
		status := http.StatusOK
		if err != nil {
			var reqErr *requestError
			if errors.As(err, &reqErr) {
				status = reqErr.status
			}
			data.Notice = err.Error()
		}
		s.render(w, status, data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// POST /api/summary  (multipart, same fields as the form)
func (s *Server) apiSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sub, err := s.submit(w, r)
	if err != nil {
		status := http.StatusInternalServerError
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			status = reqErr.status
		}
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	if sub.Report == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": rag.ErrEmptyQuery.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(sub))
}

// submit validates the form and, when it is complete, indexes the uploads
// and composes the answer. A nil Report with a nil error means the form was
// accepted but the patient ID or question was blank, so nothing ran.
func (s *Server) submit(w http.ResponseWriter, r *http.Request) (*submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, err: fmt.Errorf("upload exceeds %d MB", s.cfg.Server.MaxUploadMB)}
		}
		return nil, &requestError{status: http.StatusBadRequest, err: fmt.Errorf("failed to parse form: %w", err)}
	}
	defer r.MultipartForm.RemoveAll()

	sub := &submission{
		ID:        uuid.NewString(),
		PatientID: strings.TrimSpace(r.FormValue(fieldPatientID)),
		Question:  strings.TrimSpace(r.FormValue(fieldQuestion)),
	}

	apiKey := strings.TrimSpace(r.FormValue(fieldAPIKey))
	if apiKey == "" {
		apiKey = s.cfg.OpenAI.APIKey
	}
	if apiKey == "" {
		return sub, &requestError{status: http.StatusBadRequest, err: errMissingKey}
	}
	sub.MaskedKey = MaskAPIKey(apiKey)

	files := make(map[string]*multipart.FileHeader, 3)
	for _, field := range []string{fieldAppointments, fieldHistory, fieldSummary} {
		fhs := r.MultipartForm.File[field]
		if len(fhs) == 0 {
			return sub, &requestError{status: http.StatusBadRequest, err: errMissingFiles}
		}
		files[field] = fhs[0]
	}

	if _, ok := rag.Query(sub.PatientID, sub.Question); !ok {
		return sub, nil
	}

	logger := log.With().Str("submission_id", sub.ID).Str("api_key", sub.MaskedKey).Logger()
	ctx, cancel := context.WithTimeout(logger.WithContext(r.Context()), s.cfg.Server.RequestTimeout)
	defer cancel()

	var temps loader.TempFiles
	defer func() {
		if err := temps.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("removing temp files")
		}
	}()

	var uploads rag.Uploads
	for field, dst := range map[string]*string{
		fieldAppointments: &uploads.Appointments,
		fieldHistory:      &uploads.History,
		fieldSummary:      &uploads.Summary,
	} {
		path, err := saveUpload(&temps, files[field], suffixFor(field))
		if err != nil {
			return sub, fmt.Errorf("saving %s upload: %w", field, err)
		}
		*dst = path
	}

	embedder, generator, err := s.newBackend(apiKey)
	if err != nil {
		return sub, &requestError{status: http.StatusBadRequest, err: err}
	}

	assistant := &rag.Assistant{
		CSVLoader:   s.csvLoader,
		PDFLoader:   s.pdfLoader,
		CSVSplitter: s.csvSplit,
		PDFSplitter: s.pdfSplit,
		Embedder:    embedder,
		Generator:   generator,
		TopK:        s.cfg.Retrieval.TopK,
	}

	index, stageErrs := assistant.Index(ctx, uploads)
	defer index.Release()
	sub.Errors = stageErrs

	report, err := index.Compose(ctx, sub.PatientID, sub.Question)
	if err != nil {
		return sub, err
	}
	sub.Report = &report

	zerolog.Ctx(ctx).Info().
		Int("sections", len(report.Sections)).
		Int("stage_errors", len(stageErrs)).
		Msg("summary composed")
	return sub, nil
}

func saveUpload(temps *loader.TempFiles, fh *multipart.FileHeader, suffix string) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return temps.Save(f, suffix)
}

func suffixFor(field string) string {
	if field == fieldSummary {
		return ".pdf"
	}
	return ".csv"
}

// MaskAPIKey keeps the first and last four characters of a key. Keys too
// short to hide anything are masked entirely.
func MaskAPIKey(key string) string {
	n := utf8.RuneCountInString(key)
	if n == 0 {
		return ""
	}
	if n <= 8 {
		return strings.Repeat("*", n)
	}
	runes := []rune(key)
	return string(runes[:4]) + strings.Repeat("*", n-8) + string(runes[n-4:])
}

type sectionResponse struct {
	Tool  string `json:"tool"`
	Label string `json:"label"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

type summaryResponse struct {
	SubmissionID string            `json:"submission_id"`
	Query        string            `json:"query"`
	Sections     []sectionResponse `json:"sections"`
	Errors       []string          `json:"errors"`
	Text         string            `json:"text"`
}

func newSummaryResponse(sub *submission) summaryResponse {
	resp := summaryResponse{
		SubmissionID: sub.ID,
		Query:        sub.Report.Query,
		Sections:     make([]sectionResponse, 0, len(sub.Report.Sections)),
		Errors:       make([]string, 0, len(sub.Errors)),
		Text:         sub.Report.Text(),
	}
	for _, sec := range sub.Report.Sections {
		sr := sectionResponse{Tool: sec.Tool, Label: sec.Label, Text: sec.Result.Text()}
		if sec.Result.Err != nil {
			sr.Error = sec.Result.Err.Error()
		}
		resp.Sections = append(resp.Sections, sr)
	}
	for _, e := range sub.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}
