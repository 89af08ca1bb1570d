package api

import (
	"net/http"
	"strings"

	"github.com/org/wrapgate/web"
	"github.com/rs/zerolog/log"
)

// representation is the negotiated response encoding. Each operation
// produces exactly one internal result and renders it through exactly
// one of these.
type representation int

const (
	reprPlain representation = iota
	reprHTML
	reprJSON
)

// negotiate picks the response representation from the Accept header.
// The first recognized media type wins; anything else falls back to
// plain text.
func negotiate(r *http.Request) representation {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType := strings.TrimSpace(part)
		if i := strings.IndexByte(mediaType, ';'); i >= 0 {
			mediaType = mediaType[:i]
		}
		switch mediaType {
		case "application/json":
			return reprJSON
		case "text/html", "application/xhtml+xml":
			return reprHTML
		}
	}
	return reprPlain
}

// renderHTML executes an embedded template with status code.
func renderHTML(w http.ResponseWriter, code int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := web.Render(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("template render failed")
	}
}

// baseURL reconstructs the externally visible origin for share links.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
