// Package auth implements the login flow that turns a provider login into
// an identity, and the administrative operations around identities.
//
// # Login flow
//
// Per subject the flow moves from no request, to a pending request bound
// to a CSRF token, to a confirmed request:
//
//	loginURL, err := flow.Begin(ctx, subjectID)
//	// the subject logs in and the provider calls back with code and state
//	result, err := flow.Confirm(ctx, state, code)
//
// Confirm fails with ErrRequestNotFound for an unknown state,
// ErrAlreadyConfirmed for a replayed callback and ErrTemporaryUnavailable
// for anything the subject may retry by logging in again.
//
// When the confirmed email belongs to another subject's identity, that
// identity is archived and deleted and a role sync is queued for its
// subject.
package auth
