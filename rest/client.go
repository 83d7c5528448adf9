// Package rest is the outbound request pipeline. Every call gets a
// pre-flight stage that attaches a fresh bearer token and a post-flight
// stage that replays exactly once on an authorization failure. Failures are
// normalized to the apperrors taxonomy before they reach callers.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/restomate/restokit/apperrors"
	"github.com/restomate/restokit/internal/envelope"
	"github.com/restomate/restokit/session"
)

const (
	// defaultExpiryMargin is how close to expiry a token may get before a
	// request proactively refreshes instead of racing the backend clock.
	defaultExpiryMargin = 30 * time.Second

	// defaultTimeout bounds every outbound request. A timeout surfaces as
	// a TransportError, never as an authorization failure, so it can
	// never trigger a refresh.
	defaultTimeout = 15 * time.Second
)

// TokenRefresher is the slice of the auth service the pipeline needs.
type TokenRefresher interface {
	EnsureFreshToken(ctx context.Context) (string, error)
}

// Client wraps an http.Client with the pre/post-flight token handling.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      session.Store
	refresher  TokenRefresher
	margin     time.Duration
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithExpiryMargin overrides the proactive refresh window.
func WithExpiryMargin(d time.Duration) Option {
	return func(cl *Client) { cl.margin = d }
}

// WithTimeout overrides the per-request upper bound.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// NewClient creates a request pipeline bound to the given backend.
func NewClient(baseURL string, store session.Store, refresher TokenRefresher, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		store:      store,
		refresher:  refresher,
		margin:     defaultExpiryMargin,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do issues one request through the pipeline. body is marshaled to JSON
// when non-nil; the envelope's data field is unmarshaled into out when
// non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		// Buffered up front so a post-flight replay re-sends the exact
		// same bytes.
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.preflightToken(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return &apperrors.TransportError{Err: err}
	}

	// Reactive safety net: expiry-based preemption can race clock skew or
	// backend-side early invalidation, so one 401 earns one replay with a
	// freshly minted token. A second 401 is surfaced as-is.
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		resp.Body.Close() //nolint:errcheck

		log.Ctx(ctx).Debug().
			Str("method", method).
			Str("path", path).
			Msg("unauthorized response, refreshing and replaying once")

		token, err = c.refresher.EnsureFreshToken(ctx)
		if err != nil {
			return err
		}

		resp, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			return &apperrors.TransportError{Err: err}
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	env, err := envelope.Decode(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return env.Error(resp.StatusCode)
	}

	return env.Bind(out)
}

// Get issues a GET through the pipeline.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST through the pipeline.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT through the pipeline.
func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE through the pipeline.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// preflightToken picks the access token to attach. No stored credential
// means the request goes out unauthenticated; a credential near expiry is
// refreshed first so the request does not knowingly carry a dead token.
func (c *Client) preflightToken(ctx context.Context) (string, error) {
	cred, err := c.store.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	if cred == nil || cred.AccessToken == "" {
		return "", nil
	}

	if cred.ExpiresWithin(c.margin) {
		return c.refresher.EnsureFreshToken(ctx)
	}

	return cred.AccessToken, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}
