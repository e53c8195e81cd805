// Package sso integrates the OAuth2 identity provider used to verify
// subjects.
//
// # Overview
//
// Provider is the narrow contract the login flow and the sync jobs depend
// on: issue a login URL bound to a CSRF state, exchange a callback code for
// a token pair, refresh a token pair and fetch the profile (name, email and
// group memberships) behind an access token.
//
// AzureProvider implements Provider against Azure AD and Microsoft Graph.
// Endpoints are either derived from a tenant id or discovered through
// OpenID Connect from an issuer URL.
//
// # Errors
//
// Provider failures are classified into two kinds:
//
//	ErrProviderUnavailable: transient, retry later
//	ErrTokenRevoked: the refresh token is expired or revoked, or Graph
//	answered 401, the subject must log in again
//
// # Token lifecycle
//
// TokenManager refreshes a token pair only when its access token is about
// to expire:
//
//	tm := sso.NewTokenManager(provider, sso.DefaultRefreshMargin)
//	token, refreshed, err := tm.EnsureFresh(ctx, ident.Token)
//	if errors.Is(err, sso.ErrTokenRevoked) {
//		ident.CohortID = ""
//	}
package sso
