// Package website renders the server's HTML landing page.
package website

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templates embed.FS

var endpoints = []string{
	"POST /api/auth/register",
	"POST /api/auth/login",
	"POST /api/auth/logout",
	"GET /api/auth/me",
	"POST /api/auth/change-password",
	"GET /health",
}

type Website struct {
	tmpl    *template.Template
	title   string
	version string
}

func New(title, version string) (*Website, error) {
	tmpl, err := template.ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Website{
		tmpl:    tmpl,
		title:   title,
		version: version,
	}, nil
}

// IndexHandler renders the landing page.
func (s *Website) IndexHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":     s.title,
		"Version":   s.version,
		"Endpoints": endpoints,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index", data); err != nil {
		log.Error().Err(err).Msg("Failed to render template")
	}
}
