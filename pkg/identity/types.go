package identity

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyConfirmed is returned when confirming a confirmed request
	ErrAlreadyConfirmed = errors.New("authentication request already confirmed")
)

// OAuthToken is an access and refresh token pair. It is replaced as a
// whole on refresh.
type OAuthToken struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// Identity binds a subject to a verified provider profile
type Identity struct {
	SubjectID       string
	DisplayName     string
	Email           string
	Token           OAuthToken
	CohortID        string // empty when the cohort is unknown
	AuthenticatedAt time.Time
	UpdatedAt       time.Time
}

// HasCohort reports whether the cohort is resolved
func (i *Identity) HasCohort() bool {
	return i.CohortID != ""
}

// ArchivedIdentity is a snapshot of an identity that lost its email to
// another subject. Tokens are not kept.
type ArchivedIdentity struct {
	SubjectID       string
	DisplayName     string
	Email           string
	CohortID        string
	AuthenticatedAt time.Time
	ArchivedAt      time.Time
}

// AuthenticationRequest is a pending or confirmed login
type AuthenticationRequest struct {
	CSRFToken   string
	SubjectID   string
	RequestedAt time.Time
	ConfirmedAt *time.Time
}

// Confirmed reports whether the request was confirmed
func (r *AuthenticationRequest) Confirmed() bool {
	return r.ConfirmedAt != nil
}
