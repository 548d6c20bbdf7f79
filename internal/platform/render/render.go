// Package render turns page view models into HTML. Pages share a layout
// and a set of partials; fragments are partials rendered on their own, for
// live updates and inline panels.
package render

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
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// shared are parsed into every page set, in this order.
var shared = []string{"templates/layout.html", "templates/partials.html"}

// Renderer implements echo.Renderer. Each page is its own template set so
// that pages can define the same block names ("content", "title").
type Renderer struct {
	pages     map[string]*template.Template
	fragments *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	return newRenderer(templateFS)
}

func newRenderer(files fs.FS) (*Renderer, error) {
	names, err := fs.Glob(files, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template)}

	r.fragments, err = template.New("fragments").Funcs(Funcs()).ParseFS(files, shared...)
	if err != nil {
		return nil, fmt.Errorf("parse shared templates: %w", err)
	}

	for _, name := range names {
		if isShared(name) {
			continue
		}
		patterns := append(append([]string{}, shared...), name)
		t, err := template.New(path.Base(name)).Funcs(Funcs()).ParseFS(files, patterns...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[strings.TrimSuffix(path.Base(name), ".html")] = t
	}
	return r, nil
}

func isShared(name string) bool {
	for _, s := range shared {
		if s == name {
			return true
		}
	}
	return false
}

// Render writes the named page. Names without a page of their own are looked
// up among the fragments.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	if t, ok := r.pages[name]; ok {
		return t.ExecuteTemplate(w, name+".html", data)
	}
	if r.fragments.Lookup(name) != nil {
		return r.fragments.ExecuteTemplate(w, name, data)
	}
	return fmt.Errorf("render: unknown template %q", name)
}

// Fragment renders a partial into a string.
func (r *Renderer) Fragment(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Has reports whether a page or fragment with the given name exists.
func (r *Renderer) Has(name string) bool {
	if _, ok := r.pages[name]; ok {
		return true
	}
	return r.fragments.Lookup(name) != nil
}

// Static returns the embedded static assets rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
