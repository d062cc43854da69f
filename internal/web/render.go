package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer holds the parsed page templates.
type Renderer struct {
	pages map[string]*template.Template
	md    goldmark.Markdown
}

// NewRenderer parses the embedded templates. Each page template is parsed
// against the shared layout so blocks resolve per page. Templates are
// compiled into the binary, so parse failures panic like template.Must.
func NewRenderer() *Renderer {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "unknown"
			}
			return t.Format("2006-01-02 15:04")
		},
	}

	pages := map[string]*template.Template{}
	for _, name := range []string{"list.html", "detail.html", "error.html"} {
		pages[name] = template.Must(template.New("layout.html").Funcs(funcs).ParseFS(
			templateFS, "templates/layout.html", "templates/"+name))
	}

	return &Renderer{pages: pages, md: goldmark.New()}
}

// Render writes the named page to w with the given data.
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown template %q", page)
	}
	return tmpl.ExecuteTemplate(w, "layout.html", data)
}

// Markdown converts markdown source to sanitizable HTML. GPT instructions
// are author-controlled text, so the output renders inside the page CSP.
func (r *Renderer) Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
