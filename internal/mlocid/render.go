package mlocid

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

//go:embed web
var webFS embed.FS

// RenderMarkdown converts a card answer to sanitized HTML.
func RenderMarkdown(md string) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	})
	out := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	policy.AllowElements("pre", "code")
	policy.AllowAttrs("class").OnElements("code", "pre")
	return strings.TrimSpace(string(policy.SanitizeBytes(out)))
}

// pageData is what every page template receives.
type pageData struct {
	Title    string
	Page     string
	Username string
}

// Renderer executes page templates wrapped in base.html.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses base.html together with each page template in fsys.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	base, err := fs.ReadFile(fsys, "base.html")
	if err != nil {
		return nil, fmt.Errorf("read base template: %w", err)
	}
	pages, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, name := range pages {
		if name == "base.html" {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tmpl, err := template.New("base").Parse(string(base))
		if err != nil {
			return nil, fmt.Errorf("parse base template for %s: %w", name, err)
		}
		if tmpl, err = tmpl.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render writes the named page. The page is executed into a buffer first so a
// template failure never produces a half-written 200.
func (r *Renderer) Render(w http.ResponseWriter, name string, data pageData) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("execute template %q: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

func templatesFS() fs.FS {
	sub, err := fs.Sub(webFS, path.Join("web", "templates"))
	if err != nil {
		panic(err)
	}
	return sub
}

func staticFS() fs.FS {
	sub, err := fs.Sub(webFS, path.Join("web", "static"))
	if err != nil {
		panic(err)
	}
	return sub
}
