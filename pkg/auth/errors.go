package auth

import "errors"

var (
	// ErrRequestNotFound is returned for an unknown CSRF token
	ErrRequestNotFound = errors.New("authentication request not found")
	// ErrAlreadyConfirmed is returned when a request was already confirmed
	ErrAlreadyConfirmed = errors.New("authentication request already confirmed")
	// ErrTemporaryUnavailable is returned for failures worth retrying
	ErrTemporaryUnavailable = errors.New("authentication temporarily unavailable")
	// ErrCohortNotResolved is wrapped when the profile names no cohort group
	ErrCohortNotResolved = errors.New("no cohort group in profile")
)
