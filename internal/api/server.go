package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr   string
	TLSCertFile  string
	TLSKeyFile   string
	MaxFileBytes int64
}

// Backend is the interface the server needs from the wrapping backend.
// No handler issues more than one call through it per request.
type Backend interface {
	Wrap(ctx context.Context, fields map[string]string, ttl time.Duration) (string, error)
	Unwrap(ctx context.Context, token string) (map[string]string, error)
}

// Server is the gateway HTTP server. It holds no mutable state shared
// between requests: just the backend handle and configuration.
type Server struct {
	backend Backend
	cfg     Config
	httpSrv *http.Server
}

// NewServer creates a Server over the given backend. The http.Server is
// built here, not in Start, so a shutdown signal arriving before the
// listener is up still drains through Shutdown instead of finding nil.
func NewServer(backend Backend, cfg Config) *Server {
	s := &Server{backend: backend, cfg: cfg}
	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.BuildRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(chimiddleware.Recoverer)

	// Observability (unauthenticated)
	r.Handle("/metrics", MetricsHandler())
	r.Get("/healthz", s.HealthHandler)

	// Creation forms
	r.Get("/", s.SecretFormHandler)
	r.Get("/secret", s.SecretFormHandler)
	r.Get("/file", s.FileFormHandler)

	// Creation
	r.Post("/secret", s.CreateSecretHandler)
	r.Post("/file", s.CreateFileHandler)

	// Token-bearing routes
	r.Get("/link/{token}", s.LinkPageHandler)
	r.Get("/secret/{token}", s.ResolveSecretHandler)
	r.Get("/file/{token}", s.ResolveFileHandler)
	r.Get("/dfile/{token}", s.ResolveFileDownloadHandler)

	r.NotFound(s.NotFoundHandler)

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		s.httpSrv.TLSConfig = tlsCfg
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server. Safe to call before Start: a
// subsequent Start returns http.ErrServerClosed without listening.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
