package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/wrapgate/pkg/models"
	"github.com/rs/zerolog/log"
)

// multipartOverhead is headroom on top of the file ceiling for the
// multipart boundary lines, part headers and the time field.
const multipartOverhead = 4096

// CreateFileHandler handles POST /file. The request body is capped just
// above the file ceiling so an oversized upload is cut off at the cap
// instead of being read to the end; the exact size check runs before
// any backend call. The payload is base64-encoded into the wrap body
// alongside its content type and filename, and wrapped like a text
// secret.
func (s *Server) CreateFileHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.cfg.MaxFileBytes + multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusBadRequest,
				fmt.Sprintf("file too large (max %d KiB)", s.cfg.MaxFileBytes/1024))
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("secret")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// Read one byte past the ceiling so the boundary case is exact.
	payload, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxFileBytes+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "could not read file")
		return
	}
	if int64(len(payload)) > s.cfg.MaxFileBytes {
		writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("file too large (max %d KiB)", s.cfg.MaxFileBytes/1024))
		return
	}

	days, err := models.ParseTTLDays(r.PostFormValue("time"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	sub := &models.SecretSubmission{
		Payload:     payload,
		ContentType: contentType,
		Filename:    header.Filename,
		TTLDays:     days,
	}
	token, err := s.backend.Wrap(r.Context(), sub.WrapFields(), sub.TTL())
	if err != nil {
		wrapsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("file wrap failed")
		writeError(w, r, http.StatusInternalServerError, "could not create file secret")
		return
	}
	wrapsTotal.WithLabelValues("ok").Inc()

	switch negotiate(r) {
	case reprJSON:
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	case reprHTML:
		renderHTML(w, http.StatusOK, "share_file.html", map[string]any{
			"Token":   token,
			"Days":    days,
			"BaseURL": baseURL(r),
		})
	default:
		writePlain(w, http.StatusOK, token)
	}
}

// ResolveFileHandler handles GET /file/{token}: unwraps, decodes the
// transport encoding and serves the original bytes inline with the
// stored content type.
func (s *Server) ResolveFileHandler(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, false)
}

// ResolveFileDownloadHandler handles GET /dfile/{token}: same as
// ResolveFileHandler but forces a download with the stored filename.
func (s *Server) ResolveFileDownloadHandler(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, true)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, download bool) {
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

	sec, err := models.FileFromData(data)
	if err != nil {
		// The token resolved, but not to a file secret.
		unwrapsTotal.WithLabelValues("invalid").Inc()
		writeError(w, r, http.StatusBadRequest, "invalid token")
		return
	}
	unwrapsTotal.WithLabelValues("ok").Inc()

	contentType := sec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if download {
		name := sec.Filename
		if name == "" {
			name = "secret"
		}
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(sec.Payload) //nolint:errcheck
}
