package sso

import (
	"context"
	"time"

	"github.com/platinummonkey/rollcall/pkg/identity"
)

// DefaultRefreshMargin is how close to expiry an access token gets refreshed
const DefaultRefreshMargin = 30 * time.Second

// TokenRefresher exchanges a refresh token for a new token pair
type TokenRefresher interface {
	Refresh(ctx context.Context, token identity.OAuthToken) (identity.OAuthToken, error)
}

// TokenManager keeps token pairs usable
type TokenManager struct {
	refresher TokenRefresher
	margin    time.Duration
	now       func() time.Time
}

// NewTokenManager creates a manager refreshing tokens within margin of expiry
func NewTokenManager(refresher TokenRefresher, margin time.Duration) *TokenManager {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &TokenManager{
		refresher: refresher,
		margin:    margin,
		now:       time.Now,
	}
}

// EnsureFresh returns token unchanged while its access token is valid for
// longer than the margin, and a refreshed pair otherwise. Errors wrap
// ErrProviderUnavailable or ErrTokenRevoked.
func (m *TokenManager) EnsureFresh(ctx context.Context, token identity.OAuthToken) (identity.OAuthToken, bool, error) {
	if m.now().Add(m.margin).Before(token.AccessExpiresAt) {
		return token, false, nil
	}

	refreshed, err := m.refresher.Refresh(ctx, token)
	if err != nil {
		return token, false, err
	}
	return refreshed, true, nil
}
