package main

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

type sectionView struct {
	Label  string
	Text   string
	Failed bool
}

type pageData struct {
	MaskedKey string
	PatientID string
	Question  string
	Notice    string
	Errors    []string
	Sections  []sectionView
	Submitted bool
}

func newPageData(sub *submission) pageData {
	if sub == nil {
		return pageData{}
	}
	data := pageData{
		MaskedKey: sub.MaskedKey,
		PatientID: sub.PatientID,
		Question:  sub.Question,
	}
	for _, e := range sub.Errors {
		data.Errors = append(data.Errors, e.Error())
	}
	if sub.Report != nil {
		data.Submitted = true
		for _, sec := range sub.Report.Sections {
			data.Sections = append(data.Sections, sectionView{
				Label:  sec.Label,
				Text:   sec.Result.Text(),
				Failed: !sec.Result.OK(),
			})
		}
	}
	return data
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("rendering page")
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>RAG-based Medical Assistant</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 760px; margin: 2rem auto; padding: 0 1rem; }
        label { display: block; margin-top: 1rem; font-weight: 600; }
        input[type=text], input[type=password], textarea { width: 100%; padding: .4rem; }
        .notice { background: #eef4ff; padding: .6rem; margin-top: 1rem; }
        .error { background: #fdecea; color: #8a1c14; padding: .6rem; margin-top: .5rem; }
        .warning { color: #8a5a00; }
        .key { color: #17692f; }
        section.summary p { white-space: pre-wrap; }
    </style>
</head>
<body>
    <h1>🩺 RAG-based Medical Assistant</h1>
    <form method="post" action="/" enctype="multipart/form-data">
        <label for="api_key">🔑 Enter your OpenAI API Key</label>
        <input type="password" id="api_key" name="api_key" autocomplete="off">
        {{- if .MaskedKey}}
        <p class="key">✅ OpenAI Key Loaded: {{.MaskedKey}}</p>
        {{- end}}

        <h2>📂 Upload Patient Data</h2>
        <label for="appointments">📅 Upload Appointments CSV</label>
        <input type="file" id="appointments" name="appointments" accept=".csv">
        <label for="history">📜 Upload Patient History CSV</label>
        <input type="file" id="history" name="history" accept=".csv">
        <label for="summary">📄 Upload Last Appointment Summary PDF</label>
        <input type="file" id="summary" name="summary" accept=".pdf">

        <label for="patient_id">🆔 Enter Patient ID</label>
        <input type="text" id="patient_id" name="patient_id" value="{{.PatientID}}">
        <label for="question">❓ Enter your question about the patient (e.g., medical conditions, appointment status, etc.)</label>
        <textarea id="question" name="question" rows="4">{{.Question}}</textarea>

        <p><button type="submit">📝 Generate Summary</button></p>
    </form>
    {{- if .Notice}}
    <div class="notice">{{.Notice}}</div>
    {{- end}}
    {{- range .Errors}}
    <div class="error">{{.}}</div>
    {{- end}}
    {{- if .Submitted}}
    <section class="summary">
        <h2>📋 Patient Summary</h2>
        {{- range .Sections}}
        <p{{if .Failed}} class="warning"{{end}}><strong>{{.Label}}</strong>: {{.Text}}</p>
        {{- end}}
    </section>
    {{- end}}
</body>
</html>
`))
