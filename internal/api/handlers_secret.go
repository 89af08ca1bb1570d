package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/wrapgate/internal/vault"
	"github.com/org/wrapgate/pkg/models"
	"github.com/rs/zerolog/log"
)

// CreateSecretHandler handles POST /secret. It wraps the submitted text
// secret at the backend and renders the resulting one-time token in the
// negotiated representation.
func (s *Server) CreateSecretHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form data")
		return
	}

	secret := r.PostFormValue("secret")
	if secret == "" {
		writeError(w, r, http.StatusBadRequest, "secret is required")
		return
	}

	days, err := models.ParseTTLDays(r.PostFormValue("time"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sub := &models.SecretSubmission{Payload: []byte(secret), TTLDays: days}
	token, err := s.backend.Wrap(r.Context(), sub.WrapFields(), sub.TTL())
	if err != nil {
		wrapsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("wrap failed")
		writeError(w, r, http.StatusInternalServerError, "could not create secret")
		return
	}
	wrapsTotal.WithLabelValues("ok").Inc()

	switch negotiate(r) {
	case reprJSON:
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	case reprHTML:
		renderHTML(w, http.StatusOK, "share_secret.html", map[string]any{
			"Token":   token,
			"Days":    days,
			"BaseURL": baseURL(r),
		})
	default:
		writePlain(w, http.StatusOK, token)
	}
}

// ResolveSecretHandler handles GET /secret/{token}: one unwrap call, one
// render. A token that yields no data is reported with a single generic
// message regardless of whether it expired, was consumed, or never
// existed.
func (s *Server) ResolveSecretHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !models.ValidToken(token) {
		writeError(w, r, http.StatusBadRequest, "malformed token")
		return
	}

	data, err := s.backend.Unwrap(r.Context(), token)
	if err != nil {
		s.unwrapError(w, r, err)
		return
	}
	unwrapsTotal.WithLabelValues("ok").Inc()

	switch negotiate(r) {
	case reprJSON:
		writeJSON(w, http.StatusOK, data)
	case reprHTML:
		renderHTML(w, http.StatusOK, "secret_view.html", map[string]any{
			"Secret": data["secret"],
		})
	default:
		writePlain(w, http.StatusOK, data["secret"])
	}
}

// unwrapError maps backend unwrap failures onto the error taxonomy:
// invalid tokens are the client's problem, everything else is ours.
func (s *Server) unwrapError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, vault.ErrInvalidToken) {
		unwrapsTotal.WithLabelValues("invalid").Inc()
		writeError(w, r, http.StatusBadRequest, "invalid token")
		return
	}
	unwrapsTotal.WithLabelValues("error").Inc()
	log.Error().Err(err).Msg("unwrap failed")
	writeError(w, r, http.StatusInternalServerError, "could not resolve secret")
}
