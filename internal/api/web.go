package api

import (
	"bytes"
	"html/template"
	"net/http"

	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/kalambet/parley/internal/chat"
)

var transcriptTmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>parley: {{.Mode}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
nav a { margin-right: 1rem; }
nav a.active { font-weight: bold; }
.msg { padding: .75rem 1rem; margin: .5rem 0; border-radius: .5rem; }
.user { background: #e8f0fe; white-space: pre-wrap; }
.assistant { background: #f4f4f4; }
.error { background: #fdecea; color: #611a15; }
</style>
</head>
<body>
<nav>{{range .Modes}}<a href="/?mode={{.}}"{{if eq . $.Mode}} class="active"{{end}}>{{.}}</a>{{end}}</nav>
{{if .Failed}}<div class="msg error">Something went wrong. Please try again later.</div>{{end}}
{{range .Rows}}<div class="msg {{.Role}}">{{if .HTML}}{{.HTML}}{{else}}{{.Text}}{{end}}</div>
{{end}}
</body>
</html>
`))

type transcriptRow struct {
	Role string
	Text string
	HTML template.HTML
}

type transcriptPage struct {
	Mode   chat.Mode
	Modes  []chat.Mode
	Rows   []transcriptRow
	Failed bool
}

// handleTranscript renders the stored conversation of ?mode= (general by
// default). Assistant messages are rendered as markdown.
func handleTranscript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := chat.ModeGeneral
		if q := r.URL.Query().Get("mode"); q != "" {
			m, err := chat.ParseMode(q)
			if err != nil {
				httpError(w, http.StatusNotFound, "not_found", "%v", err)
				return
			}
			mode = m
		}

		page := transcriptPage{Mode: mode, Modes: chat.Modes()}
		entries, err := deps.Turns.History(r.Context(), mode)
		if err != nil {
			deps.logger().Error("loading transcript", "mode", mode, "error", err)
			page.Failed = true
		}
		for _, e := range entries {
			row := transcriptRow{Role: string(e.Role), Text: e.Content}
			if e.Role == chat.RoleAssistant {
				row.HTML = renderMarkdown(e.Content)
			}
			page.Rows = append(page.Rows, row)
		}

		var buf bytes.Buffer
		if err := transcriptTmpl.Execute(&buf, page); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "rendering page: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

// renderMarkdown converts markdown to HTML. Raw HTML in the source is dropped.
func renderMarkdown(md string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	doc := p.Parse([]byte(md))
	return template.HTML(gomarkdown.Render(doc, r))
}
