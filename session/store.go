// Package session owns the credential pair the SDK authenticates with.
// The store is the single source of truth: the request pipeline, the
// refresh coordinator and the realtime channel all read from it and only
// the coordinator and login flow write to it.
package session

import (
	"context"
	"time"
)

// Credential holds the current token pair. ExpiresAt is always derived from
// the access token's exp claim at the moment the pair is stored; it is never
// mutated independently of the token itself.
type Credential struct {
	AccessToken   string    `json:"accessToken" redis:"accessToken"`
	RefreshToken  string    `json:"refreshToken" redis:"refreshToken"`
	ExpiresAt     time.Time `json:"accessTokenExp" redis:"accessTokenExp"`
	Authenticated bool      `json:"isAuthenticated" redis:"isAuthenticated"`
}

// ExpiresWithin reports whether the access token expires inside the given
// margin from now. An already expired token trivially does.
func (c *Credential) ExpiresWithin(margin time.Duration) bool {
	return time.Until(c.ExpiresAt) <= margin
}

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type Store interface {
	// Current returns the stored credential, or nil when none is stored.
	Current(ctx context.Context) (*Credential, error)

	// Set atomically overwrites the whole credential with a new token
	// pair, deriving the expiry instant from the access token.
	Set(ctx context.Context, accessToken, refreshToken string) error

	// Clear removes the credential entirely. Clearing an empty store is
	// a no-op.
	Clear(ctx context.Context) error
}
