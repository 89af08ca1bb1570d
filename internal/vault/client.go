package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrInvalidToken means the backend answered but returned no data for
	// the token: expired, already consumed, or never issued. The three
	// cases are deliberately indistinguishable to callers.
	ErrInvalidToken = errors.New("invalid token")

	// ErrBackendUnavailable covers transport failures and wrap responses
	// missing the expected token field.
	ErrBackendUnavailable = errors.New("secret backend unavailable")
)

// Config holds the backend connection settings, read once at startup and
// passed by reference. The Token is an administrative credential scoped
// to creating wrap tokens only.
type Config struct {
	Address    string
	Token      string
	Timeout    time.Duration
	WrapPath   string
	UnwrapPath string
}

// Client talks to the backend's wrapping API. It issues at most one HTTP
// call per method and never retries: an unwrap retry could consume a
// token whose first response was merely lost in transit.
type Client struct {
	http       *resty.Client
	token      string
	wrapPath   string
	unwrapPath string
}

// New creates a Client from cfg, applying defaults for timeout and the
// wrap/unwrap endpoint paths.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.WrapPath == "" {
		cfg.WrapPath = "/v1/sys/wrapping/wrap"
	}
	if cfg.UnwrapPath == "" {
		cfg.UnwrapPath = "/v1/sys/wrapping/unwrap"
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Address, "/")).
		SetTimeout(cfg.Timeout)

	return &Client{
		http:       cli,
		token:      cfg.Token,
		wrapPath:   cfg.WrapPath,
		unwrapPath: cfg.UnwrapPath,
	}
}

// Wrap stores fields at the backend and returns the single-use wrap
// token referencing them. The TTL travels in the X-Vault-Wrap-TTL header
// as whole seconds; authentication uses the administrative credential.
func (c *Client) Wrap(ctx context.Context, fields map[string]string, ttl time.Duration) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Vault-Token", c.token).
		SetHeader("X-Vault-Wrap-TTL", strconv.Itoa(int(ttl/time.Second))).
		SetBody(fields).
		Post(c.wrapPath)
	if err != nil {
		return "", fmt.Errorf("%w: wrap request: %v", ErrBackendUnavailable, err)
	}

	var body struct {
		WrapInfo struct {
			Token string `json:"token"`
		} `json:"wrap_info"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.WrapInfo.Token == "" {
		return "", fmt.Errorf("%w: no wrap token in response (http %d)", ErrBackendUnavailable, resp.StatusCode())
	}
	return body.WrapInfo.Token, nil
}

// Unwrap redeems token for the original field set, consuming it at the
// backend. The wrap token itself is the bearer credential here, not the
// administrative one: the capability to read exactly this secret rides
// entirely on the token.
func (c *Client) Unwrap(ctx context.Context, token string) (map[string]string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Vault-Token", token).
		Post(c.unwrapPath)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap request: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: unwrap http %d", ErrBackendUnavailable, resp.StatusCode())
	}

	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || len(body.Data) == 0 {
		return nil, ErrInvalidToken
	}
	return body.Data, nil
}
