package gate

import (
	"fmt"
	"html"
	"html/template"
	"io"
	"time"

	"go_maintenance/internal/model"
)

// Page is the data handed to the maintenance page template
type Page struct {
	Reason    string
	Mode      string
	StartTime *time.Time
	EndTime   *time.Time
	RequestID string
}

// Renderer writes the human-facing 503 page
type Renderer interface {
	Render(w io.Writer, page Page) error
}

const defaultTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Service Unavailable</title>
</head>
<body>
<h1>Service Unavailable</h1>
<p>{{.Reason}}</p>
{{if .EndTime}}<p>Expected back at {{.EndTime.Format "2006-01-02 15:04 MST"}}.</p>{{end}}
{{if .RequestID}}<p><small>Request ID: {{.RequestID}}</small></p>{{end}}
</body>
</html>
`

// TemplateRenderer renders Page with an html/template
type TemplateRenderer struct {
	tmpl *template.Template
	err  error
}

// NewTemplateRenderer loads the template at path, or the built-in page when path
// is empty. A template that fails to load is reported on every Render so the gate
// falls back to its inline body.
func NewTemplateRenderer(path string) *TemplateRenderer {
	if path == "" {
		return &TemplateRenderer{tmpl: template.Must(template.New("503").Parse(defaultTemplate))}
	}
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return &TemplateRenderer{err: fmt.Errorf("failed to load maintenance template %s: %w", path, err)}
	}
	return &TemplateRenderer{tmpl: tmpl}
}

// Err reports a template load failure
func (r *TemplateRenderer) Err() error {
	return r.err
}

// Render implements Renderer
func (r *TemplateRenderer) Render(w io.Writer, page Page) error {
	if r.err != nil {
		return r.err
	}
	return r.tmpl.Execute(w, page)
}

func pageFor(w *model.MaintenanceWindow, requestID string) Page {
	return Page{
		Reason:    w.Reason,
		Mode:      w.Mode.Display(),
		StartTime: w.StartTime,
		EndTime:   w.EndTime,
		RequestID: requestID,
	}
}

// fallbackBody is served when the page cannot be rendered
func fallbackBody(reason string) []byte {
	return []byte("<h1>Service Unavailable</h1><p>" + html.EscapeString(reason) + "</p>")
}
