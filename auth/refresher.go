package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/restomate/restokit/apperrors"
)

// EnsureFreshToken returns a currently valid access token, performing at
// most one refresh exchange no matter how many goroutines call it
// concurrently. The first caller to observe no refresh in flight becomes
// the driver and performs the exchange; everyone else is queued and
// resumed, in arrival order, with the driver's outcome.
//
// On a failed exchange every queued caller gets ErrAuthExpired and the
// credential store is cleared exactly once.
func (s *Service) EnsureFreshToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.inflight {
		// A refresh is already running: queue up. The channel is
		// buffered so the driver's fan-out never blocks on a caller
		// that gave up waiting.
		ch := make(chan refreshResult, 1)
		s.waiters = append(s.waiters, ch)
		s.mu.Unlock()

		select {
		case res := <-ch:
			return res.accessToken, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// Became the driver. The flag is set while still holding the lock, so
	// no other caller can slip between the check and the set.
	s.inflight = true
	s.mu.Unlock()

	accessToken, err := s.refresh(ctx)

	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.inflight = false
	s.mu.Unlock()

	// Resume in arrival order. Appends happen under the same lock that
	// guards the drain above, so nobody is enqueued after this point.
	for _, ch := range waiters {
		ch <- refreshResult{accessToken: accessToken, err: err}
	}

	return accessToken, err
}

// refresh performs the actual refresh-token exchange. Only ever called by
// the driver.
func (s *Service) refresh(ctx context.Context) (string, error) {
	cred, err := s.store.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	if cred == nil || cred.RefreshToken == "" {
		return "", s.expireSession(ctx, fmt.Errorf("no refresh token available"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/refresh", nil)
	if err != nil {
		return "", s.expireSession(ctx, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.RefreshToken)

	var body refreshResponse
	if err := s.roundTrip(req, &body); err != nil {
		return "", s.expireSession(ctx, err)
	}
	if body.AccessToken == "" {
		return "", s.expireSession(ctx, fmt.Errorf("refresh response carried no access token"))
	}

	if err := s.store.Set(ctx, body.AccessToken, body.RefreshToken); err != nil {
		return "", s.expireSession(ctx, err)
	}

	log.Ctx(ctx).Debug().Msg("access token refreshed")

	return body.AccessToken, nil
}

// expireSession is the uniform failure path of a refresh: clear the store,
// fire the logout hook once, and return ErrAuthExpired with the cause
// attached.
func (s *Service) expireSession(ctx context.Context, cause error) error {
	if err := s.store.Clear(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to clear credential store")
	}
	if s.onLogout != nil {
		s.onLogout()
	}

	log.Ctx(ctx).Warn().Err(cause).Msg("session expired, forcing logout")

	return fmt.Errorf("%w: %v", apperrors.ErrAuthExpired, cause)
}
