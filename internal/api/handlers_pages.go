package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/wrapgate/pkg/models"
)

// SecretFormHandler handles GET / and GET /secret.
func (s *Server) SecretFormHandler(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, http.StatusOK, "secret_form.html", nil)
}

// FileFormHandler handles GET /file and advertises the upload ceiling.
func (s *Server) FileFormHandler(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, http.StatusOK, "file_form.html", map[string]any{
		"MaxKiB": s.cfg.MaxFileBytes / 1024,
	})
}

// LinkPageHandler handles GET /link/{token}. It is pure presentation: the
// page references the token textually and never triggers an unwrap, so
// chat and mail link-preview fetchers cannot burn the token.
func (s *Server) LinkPageHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !models.ValidToken(token) {
		writeError(w, r, http.StatusBadRequest, "malformed token")
		return
	}
	renderHTML(w, http.StatusOK, "link.html", map[string]any{"Token": token})
}

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFoundHandler is the catch-all for unmatched routes.
func (s *Server) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writePlain(w, http.StatusNotFound, "not found")
}
