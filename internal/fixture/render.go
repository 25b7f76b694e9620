package fixture

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.html
var templateFS embed.FS

// renderer holds one parsed template set per page, each combined with
// base.html.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	base, err := fs.ReadFile(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read base template: %w", err)
	}

	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	r := &renderer{pages: make(map[string]*template.Template)}
	for _, name := range names {
		page := strings.TrimPrefix(name, "templates/")
		if page == "base.html" {
			continue
		}
		content, err := fs.ReadFile(templateFS, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", page, err)
		}
		tmpl, err := template.New("base").Funcs(funcMap()).Parse(string(base))
		if err != nil {
			return nil, fmt.Errorf("failed to parse base template for %s: %w", page, err)
		}
		if tmpl, err = tmpl.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// render executes page into a buffer first so a template error never
// leaves a half-written response.
func (r *renderer) render(w http.ResponseWriter, page string, data any) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatDate": formatDate,
		"markdown":   renderMarkdown,
		"money":      money,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

// renderMarkdown converts user-entered markdown to sanitized HTML.
func renderMarkdown(s string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(s))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	out := markdown.Render(doc, renderer)
	return template.HTML(bluemonday.UGCPolicy().SanitizeBytes(out))
}

// wildcardHelp is the markdown shown next to the line item fields.
func wildcardHelp() string {
	var b strings.Builder
	b.WriteString("**Comodines disponibles:** ")
	for i, name := range WildcardNames {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("`" + name + "`")
	}
	b.WriteString("\n\nEjemplos de fórmulas:\n\n")
	b.WriteString("- Precio fijo: `1000`\n")
	b.WriteString("- Con tipo de cambio: `600*{tcfixed}`\n")
	b.WriteString("- Con operaciones: `(500+100)*{tcfixed}`\n")
	b.WriteString("- Descripción: `Servicios de {mes_texto} {añoactual}`\n")
	return b.String()
}
