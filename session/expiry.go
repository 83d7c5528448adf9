package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry decodes the exp claim of an access token without verifying
// the signature. The SDK never validates tokens, it only needs the expiry
// instant to schedule proactive refreshes; verification is the backend's
// job.
func tokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()

	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("decoding access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token carries no exp claim")
	}

	return claims.ExpiresAt.Time, nil
}
