package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/org/wrapgate/internal/vault"
	"github.com/org/wrapgate/pkg/models"
)

// --- In-memory wrap backend for tests ---

type memBackend struct {
	wrapped  map[string]map[string]string // token → fields
	consumed map[string]bool
	lastTTL  time.Duration
	wraps    int
	unwraps  int
	wrapErr  error
}

func newMemBackend() *memBackend {
	return &memBackend{
		wrapped:  map[string]map[string]string{},
		consumed: map[string]bool{},
	}
}

func (m *memBackend) Wrap(ctx context.Context, fields map[string]string, ttl time.Duration) (string, error) {
	m.wraps++
	if m.wrapErr != nil {
		return "", m.wrapErr
	}
	m.lastTTL = ttl
	token := fmt.Sprintf("tok.%d", m.wraps)
	m.wrapped[token] = fields
	return token, nil
}

func (m *memBackend) Unwrap(ctx context.Context, token string) (map[string]string, error) {
	m.unwraps++
	fields, ok := m.wrapped[token]
	if !ok || m.consumed[token] {
		return nil, vault.ErrInvalidToken
	}
	m.consumed[token] = true
	return fields, nil
}

// --- test helpers ---

func newTestServer() (*Server, *memBackend) {
	backend := newMemBackend()
	srv := NewServer(backend, Config{MaxFileBytes: models.DefaultMaxFileBytes})
	return srv, backend
}

func postForm(t *testing.T, handler http.Handler, path, body, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, handler http.Handler, path, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func postFile(t *testing.T, handler http.Handler, content []byte, filename, contentType, days string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="secret"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("creating multipart part: %v", err)
	}
	part.Write(content) //nolint:errcheck
	if days != "" {
		mw.WriteField("time", days) //nolint:errcheck
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, w.Body.String())
	}
	return result
}

// --- tests ---

func TestMalformedTokenRejectedWithoutBackendCall(t *testing.T) {
	srv, backend := newTestServer()
	handler := srv.BuildRouter()

	paths := []string{
		"/secret/not%20a%20token",
		"/secret/bad!token",
		"/file/bad_token",
		"/dfile/bad-token",
		"/link/bad$token",
	}
	for _, path := range paths {
		w := get(t, handler, path, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: expected 400, got %d", path, w.Code)
		}
	}
	if backend.unwraps != 0 {
		t.Errorf("expected no backend calls, got %d", backend.unwraps)
	}
}

func TestCreateSecretTTLMapping(t *testing.T) {
	tests := []struct {
		name     string
		time     string
		wantCode int
		wantTTL  time.Duration
	}{
		{"in range", "5", http.StatusOK, 5 * 24 * time.Hour},
		{"lower bound", "1", http.StatusOK, 24 * time.Hour},
		{"upper bound", "30", http.StatusOK, 30 * 24 * time.Hour},
		{"clamped", "45", http.StatusOK, 30 * 24 * time.Hour},
		{"zero", "0", http.StatusBadRequest, 0},
		{"negative", "-3", http.StatusBadRequest, 0},
		{"non-numeric", "soon", http.StatusBadRequest, 0},
		{"absent", "", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, backend := newTestServer()
			handler := srv.BuildRouter()

			body := "secret=hello"
			if tt.time != "" {
				body += "&time=" + tt.time
			}
			w := postForm(t, handler, "/secret", body, "application/json")
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d (body: %s)", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				if backend.wraps != 0 {
					t.Errorf("expected no wrap call, got %d", backend.wraps)
				}
				return
			}
			if backend.lastTTL != tt.wantTTL {
				t.Errorf("expected TTL %v, got %v", tt.wantTTL, backend.lastTTL)
			}
		})
	}
}

func TestSecretEndToEnd(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.BuildRouter()

	w := postForm(t, handler, "/secret", "secret=hello&time=5", "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	token := decodeBody(t, w)["token"]
	if !models.ValidToken(token) {
		t.Fatalf("token %q does not match the token syntax", token)
	}

	// First resolve yields the secret
	w2 := get(t, handler, "/secret/"+token, "application/json")
	if w2.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", w2.Code, w2.Body.String())
	}
	if got := decodeBody(t, w2)["secret"]; got != "hello" {
		t.Errorf("expected secret=hello, got %q", got)
	}

	// Second resolve gets the generic invalid-token error
	w3 := get(t, handler, "/secret/"+token, "application/json")
	if w3.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on second resolve, got %d", w3.Code)
	}
	if !strings.Contains(w3.Body.String(), "invalid token") {
		t.Errorf("expected generic invalid-token message, got %s", w3.Body.String())
	}
}

func TestSecretRepresentations(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.BuildRouter()

	// HTML render of the share page
	w := postForm(t, handler, "/secret", "secret=hi&time=1", "text/html")
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected HTML content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "/link/tok.1") {
		t.Errorf("expected share page to contain the link route, got %s", w.Body.String())
	}

	// Plain text fallback: the body is the bare token
	w2 := postForm(t, handler, "/secret", "secret=hi&time=1", "")
	if got := strings.TrimSpace(w2.Body.String()); got != "tok.2" {
		t.Errorf("expected bare token body, got %q", got)
	}
}

func TestInvalidTokenIdempotent(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.BuildRouter()

	first := get(t, handler, "/secret/no.such.token", "application/json")
	second := get(t, handler, "/secret/no.such.token", "application/json")
	if first.Code != http.StatusBadRequest || second.Code != http.StatusBadRequest {
		t.Fatalf("expected 400/400, got %d/%d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("expected identical responses, got %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestFileRoundTrip(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.BuildRouter()

	content := []byte("PDF-ish \x00\x01\x02 binary content")
	w := postFile(t, handler, content, "report.pdf", "application/pdf", "3")
	if w.Code != http.StatusOK {
		t.Fatalf("upload failed: %d %s", w.Code, w.Body.String())
	}
	token := decodeBody(t, w)["token"]

	w2 := get(t, handler, "/file/"+token, "")
	if w2.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", w2.Code, w2.Body.String())
	}
	if got, _ := io.ReadAll(w2.Body); !bytes.Equal(got, content) {
		t.Error("resolved bytes differ from uploaded bytes")
	}
	if ct := w2.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("expected original content type, got %q", ct)
	}
	if cd := w2.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("inline resolve must not set a disposition, got %q", cd)
	}
}

func TestFileDownloadDisposition(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.BuildRouter()

	w := postFile(t, handler, []byte("data"), "notes.txt", "text/plain", "1")
	token := decodeBody(t, w)["token"]

	w2 := get(t, handler, "/dfile/"+token, "")
	if w2.Code != http.StatusOK {
		t.Fatalf("download failed: %d", w2.Code)
	}
	cd := w2.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "notes.txt") {
		t.Errorf("expected attachment disposition with filename, got %q", cd)
	}
}

func TestFileSizeBoundary(t *testing.T) {
	srv, backend := newTestServer()
	handler := srv.BuildRouter()

	// Exactly at the ceiling succeeds
	atLimit := bytes.Repeat([]byte("a"), models.DefaultMaxFileBytes)
	w := postFile(t, handler, atLimit, "big.bin", "application/octet-stream", "1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected upload at ceiling to succeed, got %d %s", w.Code, w.Body.String())
	}

	// One byte over is rejected before the backend is called
	wrapsBefore := backend.wraps
	over := bytes.Repeat([]byte("a"), models.DefaultMaxFileBytes+1)
	w2 := postFile(t, handler, over, "big.bin", "application/octet-stream", "1")
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized upload, got %d", w2.Code)
	}
	if backend.wraps != wrapsBefore {
		t.Errorf("oversized upload must not reach the backend")
	}
}

// countingReader tracks how much of the request body a handler consumes.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func TestOversizedUploadBodyIsNotDrained(t *testing.T) {
	srv, backend := newTestServer()
	handler := srv.BuildRouter()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("secret", "huge.bin")
	if err != nil {
		t.Fatalf("creating multipart part: %v", err)
	}
	part.Write(bytes.Repeat([]byte("a"), 8*1024*1024)) //nolint:errcheck
	mw.WriteField("time", "1")                         //nolint:errcheck
	mw.Close()

	cr := &countingReader{r: &buf}
	req := httptest.NewRequest("POST", "/file", cr)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", w.Code)
	}
	if backend.wraps != 0 {
		t.Errorf("oversized upload must not reach the backend")
	}
	// The body must be cut off at the request cap, not read to the end.
	bodyCap := srv.cfg.MaxFileBytes + multipartOverhead
	if cr.n > bodyCap+32*1024 {
		t.Errorf("handler consumed %d bytes of an oversized body (cap %d)", cr.n, bodyCap)
	}
}

func TestTextTokenOnFileRouteIsInvalid(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.BuildRouter()

	w := postForm(t, handler, "/secret", "secret=not base64!&time=1", "application/json")
	token := decodeBody(t, w)["token"]

	w2 := get(t, handler, "/file/"+token, "")
	if w2.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-file token on the file route, got %d", w2.Code)
	}
}

func TestLinkPageMakesNoBackendCall(t *testing.T) {
	srv, backend := newTestServer()
	handler := srv.BuildRouter()

	w := get(t, handler, "/link/ABC.123", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ABC.123") {
		t.Error("link page must reference the token textually")
	}
	if backend.unwraps != 0 {
		t.Errorf("link page must not unwrap, got %d unwrap calls", backend.unwraps)
	}
}

func TestBackendFailureOnCreate(t *testing.T) {
	srv, backend := newTestServer()
	backend.wrapErr = vault.ErrBackendUnavailable
	handler := srv.BuildRouter()

	w := postForm(t, handler, "/secret", "secret=hello&time=5", "application/json")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when backend yields no token, got %d", w.Code)
	}
}

func TestFormsAndNotFound(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.BuildRouter()

	for _, path := range []string{"/", "/secret", "/file"} {
		w := get(t, handler, path, "text/html")
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("GET %s: expected HTML, got %q", path, ct)
		}
	}

	w := get(t, handler, "/nope/nothing/here", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 fallback, got %d", w.Code)
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv, _ := newTestServer()

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown before start: %v", err)
	}
	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("expected ErrServerClosed after shutdown, got %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.BuildRouter()

	w := get(t, handler, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
