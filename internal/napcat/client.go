// Package napcat is a minimal client for the Napcat gateway's auth and
// status endpoints.
package napcat

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("napcat not configured")

// ErrParse marks a response that arrived but had no recognizable shape.
// Callers distinguish it from transport failure: a parse error does not
// invalidate the session credential.
var ErrParse = errors.New("napcat response unparseable")

// Config holds the gateway connection settings. Credential, when set, skips
// the login exchange entirely.
type Config struct {
	BaseURL       string
	Token         string
	Credential    string
	AllowInsecure bool
	Timeout       time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{}
	if cfg.AllowInsecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (c *Client) Configured() bool { return strings.TrimSpace(c.cfg.BaseURL) != "" }

// BaseURL returns the configured gateway address for reports and alerts.
func (c *Client) BaseURL() string { return strings.TrimSpace(c.cfg.BaseURL) }

// ConfiguredCredential returns the statically configured credential, if any.
func (c *Client) ConfiguredCredential() string { return strings.TrimSpace(c.cfg.Credential) }

// Token reports whether a shared secret is available for login.
func (c *Client) HasToken() bool { return strings.TrimSpace(c.cfg.Token) != "" }

// Login exchanges the shared secret for a session credential. The secret is
// never sent in cleartext: the request carries its SHA-256 over
// token + ".napcat" alongside the token field, as the gateway expects.
func (c *Client) Login(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	token := strings.TrimSpace(c.cfg.Token)
	if token == "" {
		return "", errors.New("napcat token not configured")
	}
	sum := sha256.Sum256([]byte(token + ".napcat"))
	body, err := c.post(ctx, "/api/auth/login", map[string]any{
		"token": token,
		"hash":  hex.EncodeToString(sum[:]),
	}, "")
	if err != nil {
		return "", err
	}
	cred, ok := extractCredential(body)
	if !ok {
		return "", fmt.Errorf("%w: login response has no recognizable credential", ErrParse)
	}
	return cred, nil
}

// Status queries the gateway's online flag using credential as the bearer
// token.
func (c *Client) Status(ctx context.Context, credential string) (bool, error) {
	if !c.Configured() {
		return false, ErrNotConfigured
	}
	body, err := c.post(ctx, "/api/status", map[string]any{}, credential)
	if err != nil {
		return false, err
	}
	online, ok := extractOnline(body)
	if !ok {
		return false, fmt.Errorf("%w: status response has no online field", ErrParse)
	}
	return online, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, bearer string) (map[string]any, error) {
	url := strings.TrimRight(strings.TrimSpace(c.cfg.BaseURL), "/") + path
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", path, err)
	}
	return body, nil
}
