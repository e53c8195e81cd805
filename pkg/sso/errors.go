package sso

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrProviderUnavailable marks a transient provider failure
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrTokenRevoked marks a refresh token the provider refused (invalid_grant)
	// or an access token Graph rejected
	ErrTokenRevoked = errors.New("token expired or revoked")
)

// classifyTokenError maps a token endpoint failure to ErrTokenRevoked or
// ErrProviderUnavailable, keeping the cause in the chain
func classifyTokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
		return fmt.Errorf("%s: %w: %w", op, ErrTokenRevoked, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProviderUnavailable, err)
}
