package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"

	"sortly/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageNames = []string{"index.html", "preferences.html", "history.html"}

type pages struct {
	byName map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"formatDate": func(l domain.EmailLog) string {
		return l.HistoryEntry().Date
	},
	"isProductive": func(category string) bool {
		return category == domain.CategoryProductive
	},
}

func loadPages() (*pages, error) {
	p := &pages{byName: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		p.byName[name] = t
	}
	return p, nil
}

type pageData struct {
	Title            string
	Active           string
	CredentialHeader string
	Logs             []domain.EmailLog
}

// render executes into a buffer first so a template error never leaves a
// half-written page.
func (p *pages) render(w http.ResponseWriter, name string, data pageData) {
	t, ok := p.byName[name]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Printf("render %s error: %v", name, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, "index.html", pageData{Title: "Analisar email", Active: "index", CredentialHeader: s.cfg.CredentialHeader})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, "preferences.html", pageData{Title: "Configurações", Active: "preferences", CredentialHeader: s.cfg.CredentialHeader})
}

func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, "history.html", pageData{
		Title:            "Histórico",
		Active:           "history",
		CredentialHeader: s.cfg.CredentialHeader,
		Logs:             s.store.History(r.Context()),
	})
}

func staticHandler() http.Handler {
	if _, err := fs.Stat(staticFS, "static/js/functions.js"); err != nil {
		log.Printf("static assets missing: %v", err)
	}
	return http.FileServer(http.FS(staticFS))
}
