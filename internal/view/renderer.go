// Package view renders the server-side pages.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/middleware"
)

//go:embed templates/*.html
var templatesFS embed.FS

const layoutFile = "templates/layout.html"

// Data is what every page template receives: the request locals and the
// handler's own page data.
type Data struct {
	Locals middleware.Locals
	Page   any
}

// Renderer implements echo.Renderer over embedded templates. Each page is
// parsed together with the layout into its own set.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses every embedded page.
func New() (*Renderer, error) {
	files, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template, len(files))}
	for _, f := range files {
		if f == layoutFile {
			continue
		}
		name := strings.TrimSuffix(path.Base(f), ".html")
		t, err := template.New(name).ParseFS(templatesFS, layoutFile, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes page name inside the layout. The output is buffered so a
// failing template never leaves a half-written response.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", Data{Locals: middleware.LocalsFrom(c), Page: data}); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// Has reports whether a page exists.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}
