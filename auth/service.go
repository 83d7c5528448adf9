// Package auth implements the credential lifecycle: login, logout and the
// single-flight refresh coordinator every outbound request funnels through.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/restomate/restokit/apperrors"
	"github.com/restomate/restokit/internal/envelope"
	"github.com/restomate/restokit/session"
)

const defaultTimeout = 15 * time.Second

// Service performs the token exchanges against the auth endpoints and
// coordinates concurrent refreshes. Construct one per process and inject it
// wherever requests are issued; it holds no global state.
type Service struct {
	baseURL    string
	httpClient *http.Client
	store      session.Store
	onLogout   func()

	mu       sync.Mutex
	inflight bool
	waiters  []chan refreshResult
}

type refreshResult struct {
	accessToken string
	err         error
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client used for token exchanges.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithLogoutHook registers a callback fired once whenever the session is
// force-cleared (failed refresh or explicit logout).
func WithLogoutHook(fn func()) Option {
	return func(s *Service) { s.onLogout = fn }
}

// NewService creates an auth service bound to the given backend and store.
func NewService(baseURL string, store session.Store, opts ...Option) *Service {
	s := &Service{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      store,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// User is the profile returned by the login endpoint.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	RestaurantID string `json:"restaurantId"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges credentials for a token pair and seeds the store.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body loginResponse
	if err := s.roundTrip(req, &body); err != nil {
		return nil, err
	}

	if err := s.store.Set(ctx, body.AccessToken, body.RefreshToken); err != nil {
		return nil, fmt.Errorf("storing credential: %w", err)
	}

	log.Ctx(ctx).Info().Str("user_id", body.User.ID).Msg("logged in")

	return &body.User, nil
}

// Logout clears the stored credential and fires the logout hook.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	if s.onLogout != nil {
		s.onLogout()
	}

	log.Ctx(ctx).Info().Msg("logged out")

	return nil
}

// roundTrip sends the request and decodes the response envelope's data
// field into out, normalizing failures to the apperrors taxonomy.
func (s *Service) roundTrip(req *http.Request, out interface{}) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &apperrors.TransportError{Err: err}
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
