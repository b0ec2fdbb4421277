package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"moneta/internal/backend"
	"moneta/internal/core"
	"moneta/internal/log"
)

// Layout shells. Each page renders inside exactly one of them.
const (
	layoutAuth       = "auth_layout"
	layoutOnboarding = "onboarding_layout"
	layoutApp        = "app_layout"
)

var pageLayouts = map[string]string{
	"login":        layoutAuth,
	"signup":       layoutAuth,
	"onboarding":   layoutOnboarding,
	"dashboard":    layoutApp,
	"accounts":     layoutApp,
	"transactions": layoutApp,
}

// View is the data every page template receives.
type View struct {
	Title string
	Theme string
	User  backend.User
	Nav   string
	Flash string
	Error string
	Data  any
}

type renderer struct {
	pages map[string]*template.Template
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money":     func(m core.Money) string { return m.Format() },
		"monthName": core.MonthName,
		"date":      func(t time.Time) string { return t.Format("02 Jan 2006") },
		"isoDate":   func(t time.Time) string { return t.Format("2006-01-02") },
		"categoryLabel": func(id string) string {
			if c, ok := core.LookupCategory(id); ok {
				return c.Label
			}
			return id
		},
		"categoryColor": func(id string) string {
			if c, ok := core.LookupCategory(id); ok {
				return c.Color
			}
			return "#64748b"
		},
		"kindLabel": func(k core.AccountKind) string { return k.Label() },
		"percent": func(part, total core.Money) int {
			if total.Cents <= 0 {
				return 0
			}
			return int(part.Cents * 100 / total.Cents)
		},
		"signed": func(t core.Transaction) core.Money { return core.Money{Cents: t.Signed()} },
	}
}

// newRenderer parses the layouts and shared partials once, then clones that
// base for every page so each page can define its own "content".
func newRenderer(fsys fs.FS) (*renderer, error) {
	base, err := template.New("base").Funcs(templateFuncs()).
		ParseFS(fsys, "templates/layout_*.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("parse layouts: %w", err)
	}

	r := &renderer{pages: make(map[string]*template.Template, len(pageLayouts))}
	for page := range pageLayouts {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(fsys, "templates/page_"+page+".html"); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

func (r *renderer) execute(page, name string, data any) ([]byte, error) {
	t, ok := r.pages[page]
	if !ok {
		return nil, fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderPage writes page inside its layout with the given status.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, v View) {
	if s.renderer == nil {
		s.templateError(w, r, page, fmt.Errorf("templates not loaded"))
		return
	}
	if v.Theme == "" {
		v.Theme = themeFrom(r)
	}
	body, err := s.renderer.execute(page, pageLayouts[page], v)
	if err != nil {
		s.templateError(w, r, page, err)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(string(body)).Write(w)
}

// renderPartial writes the named template of page without a layout, for
// htmx swaps.
func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, page, name string, data any) {
	if s.renderer == nil {
		s.templateError(w, r, name, fmt.Errorf("templates not loaded"))
		return
	}
	body, err := s.renderer.execute(page, name, data)
	if err != nil {
		s.templateError(w, r, name, err)
		return
	}
	b.BodyHTML(string(body)).Write(w)
}

func (s *Server) templateError(w http.ResponseWriter, r *http.Request, name string, err error) {
	log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
		log.FieldOperation, log.OpRender,
		"template", name,
		log.FieldError, err,
		"error_type", log.ErrorTypeInternal)
	InternalServerError("Something went wrong while rendering the page").Write(w)
}

func themeFrom(r *http.Request) string {
	if ck, err := r.Cookie(themeCookie); err == nil && ck.Value == "dark" {
		return "dark"
	}
	return "light"
}
