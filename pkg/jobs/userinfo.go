package jobs

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rollcall/pkg/cohort"
	"github.com/platinummonkey/rollcall/pkg/identity"
	"github.com/platinummonkey/rollcall/pkg/queue"
	"github.com/platinummonkey/rollcall/pkg/sso"
)

// IdentityStore loads and saves identities
type IdentityStore interface {
	IdentityGetter
	SaveIdentity(ctx context.Context, ident *identity.Identity) error
}

// TokenFreshener keeps tokens usable
type TokenFreshener interface {
	EnsureFresh(ctx context.Context, token identity.OAuthToken) (identity.OAuthToken, bool, error)
}

// ProfileFetcher loads a profile from the identity provider
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*sso.Profile, error)
}

// UserInfoSync refreshes the stored profile of one subject per tick
type UserInfoSync struct {
	source     Source
	identities IdentityStore
	tokens     TokenFreshener
	profiles   ProfileFetcher
	catalog    *cohort.Catalog
	roleQueue  queue.Enqueuer
	logger     logrus.FieldLogger
}

// UserInfoSyncConfig holds the collaborators of a UserInfoSync
type UserInfoSyncConfig struct {
	Source     Source
	Identities IdentityStore
	Tokens     TokenFreshener
	Profiles   ProfileFetcher
	Catalog    *cohort.Catalog
	RoleQueue  queue.Enqueuer
	Logger     logrus.FieldLogger
}

// NewUserInfoSync creates a UserInfoSync ticker
func NewUserInfoSync(cfg UserInfoSyncConfig) *UserInfoSync {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UserInfoSync{
		source:     cfg.Source,
		identities: cfg.Identities,
		tokens:     cfg.Tokens,
		profiles:   cfg.Profiles,
		catalog:    cfg.Catalog,
		roleQueue:  cfg.RoleQueue,
		logger:     logger.WithField("kind", string(cfg.Source.Kind())),
	}
}

// Tick pops the next request and refreshes its subject
func (u *UserInfoSync) Tick(ctx context.Context) (Outcome, error) {
	req, err := popNext(ctx, u.source)
	if errors.Is(err, errNoRequest) {
		return NoRequestToHandle, nil
	}
	if err != nil {
		return TemporaryUnavailable, err
	}
	return u.Sync(ctx, req.SubjectID)
}

// Sync refreshes the token and profile of a subject. A revoked token marks
// the cohort unknown. The identity is saved whenever the token changed, even
// if the profile could not be fetched, and a role sync is queued after every
// save.
func (u *UserInfoSync) Sync(ctx context.Context, subjectID string) (Outcome, error) {
	logger := u.logger.WithField("subject_id", subjectID)

	ident, err := u.identities.GetIdentity(ctx, subjectID)
	if errors.Is(err, identity.ErrNotFound) {
		// roles of a removed or archived subject still need reconciling
		if err := u.roleQueue.Enqueue(ctx, subjectID, true); err != nil {
			return TemporaryUnavailable, err
		}
		return Success, nil
	}
	if err != nil {
		return TemporaryUnavailable, err
	}

	var providerErr error
	token, refreshed, err := u.tokens.EnsureFresh(ctx, ident.Token)
	switch {
	case errors.Is(err, sso.ErrTokenRevoked):
		logger.Warn("Refresh token revoked, cohort marked unknown until the subject logs in again")
		ident.CohortID = ""

	case err != nil:
		return TemporaryUnavailable, err

	default:
		ident.Token = token
		providerErr = u.refreshProfile(ctx, ident)
		if errors.Is(providerErr, sso.ErrTokenRevoked) {
			logger.Warn("Access token rejected, cohort marked unknown until the subject logs in again")
			ident.CohortID = ""
			providerErr = nil
		}
		if providerErr != nil && !refreshed {
			return TemporaryUnavailable, providerErr
		}
	}

	if err := u.identities.SaveIdentity(ctx, ident); err != nil {
		return TemporaryUnavailable, err
	}
	if err := u.roleQueue.Enqueue(ctx, subjectID, false); err != nil {
		return TemporaryUnavailable, err
	}
	if providerErr != nil {
		return TemporaryUnavailable, providerErr
	}

	logger.WithField("cohort_id", ident.CohortID).Debug("User info synchronized")
	return Success, nil
}

func (u *UserInfoSync) refreshProfile(ctx context.Context, ident *identity.Identity) error {
	profile, err := u.profiles.FetchProfile(ctx, ident.Token.AccessToken)
	if err != nil {
		return err
	}

	if name := strings.TrimSpace(profile.Name); name != "" {
		ident.DisplayName = name
	}
	if profile.Email != "" {
		ident.Email = profile.Email
	}
	cohortID, ok := u.catalog.Resolve(profile.Groups)
	if !ok {
		cohortID = ""
	}
	ident.CohortID = cohortID
	return nil
}
