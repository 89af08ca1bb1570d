package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// MaxTTLDays is the longest lifetime a wrap token may be requested with.
// Larger values are clamped, not rejected.
const MaxTTLDays = 30

// DefaultMaxFileBytes is the upload ceiling for file secrets (768 KiB).
const DefaultMaxFileBytes = 768 * 1024

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9.]+$`)

// ErrBadTTL is returned when the requested lifetime is absent, non-numeric
// or not a positive number of days. There is no default lifetime.
var ErrBadTTL = errors.New("lifetime must be a positive number of days")

// ValidToken reports whether s is syntactically acceptable as a wrap
// token. The gateway never inspects tokens beyond this check; anything
// failing it is rejected before a backend call is made.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// ParseTTLDays parses a requested lifetime in days. Values above
// MaxTTLDays are clamped silently; zero, negative, or unparseable input
// is ErrBadTTL.
func ParseTTLDays(s string) (int, error) {
	days, err := strconv.Atoi(s)
	if err != nil || days <= 0 {
		return 0, ErrBadTTL
	}
	if days > MaxTTLDays {
		days = MaxTTLDays
	}
	return days, nil
}

// SecretSubmission is the transient, request-scoped form of a secret on
// its way to the backend wrap call. Nothing here outlives the request.
type SecretSubmission struct {
	Payload     []byte
	ContentType string
	Filename    string
	TTLDays     int
}

// IsFile reports whether the submission carries file metadata and thus
// needs the transport-encoded body shape.
func (s *SecretSubmission) IsFile() bool {
	return s.ContentType != "" || s.Filename != ""
}

// WrapFields builds the field set sent as the wrap request body. Text
// secrets travel as-is under "secret"; file payloads are base64-encoded
// into "secret" with content_type and file_name as sibling fields.
func (s *SecretSubmission) WrapFields() map[string]string {
	if !s.IsFile() {
		return map[string]string{"secret": string(s.Payload)}
	}
	return map[string]string{
		"secret":       base64.StdEncoding.EncodeToString(s.Payload),
		"content_type": s.ContentType,
		"file_name":    s.Filename,
	}
}

// TTL converts the requested day count into the wrap TTL duration.
func (s *SecretSubmission) TTL() time.Duration {
	return time.Duration(s.TTLDays) * 24 * time.Hour
}

// UnwrappedSecret is the decoded form of a file secret returned by the
// backend unwrap call. It exists only for the duration of one response.
type UnwrappedSecret struct {
	Payload     []byte
	ContentType string
	Filename    string
}

// FileFromData decodes the unwrap data map of a file secret back into
// binary form. A payload that is not valid base64 means the token did
// not reference a file secret.
func FileFromData(data map[string]string) (*UnwrappedSecret, error) {
	payload, err := base64.StdEncoding.DecodeString(data["secret"])
	if err != nil {
		return nil, fmt.Errorf("decoding file payload: %w", err)
	}
	return &UnwrappedSecret{
		Payload:     payload,
		ContentType: data["content_type"],
		Filename:    data["file_name"],
	}, nil
}
