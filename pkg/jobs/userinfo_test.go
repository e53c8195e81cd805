package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rollcall/pkg/cohort"
	"github.com/platinummonkey/rollcall/pkg/identity"
	"github.com/platinummonkey/rollcall/pkg/queue"
	"github.com/platinummonkey/rollcall/pkg/sso"
)

type fakeTokens struct {
	token     identity.OAuthToken
	refreshed bool
	err       error
}

func (f *fakeTokens) EnsureFresh(ctx context.Context, token identity.OAuthToken) (identity.OAuthToken, bool, error) {
	if f.err != nil {
		return identity.OAuthToken{}, false, f.err
	}
	if f.refreshed {
		return f.token, true, nil
	}
	return token, false, nil
}

type fakeProfiles struct {
	profile *sso.Profile
	err     error
	tokens  []string
}

func (f *fakeProfiles) FetchProfile(ctx context.Context, accessToken string) (*sso.Profile, error) {
	f.tokens = append(f.tokens, accessToken)
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type userInfoFixture struct {
	sync     *UserInfoSync
	idents   *fakeIdentities
	tokens   *fakeTokens
	profiles *fakeProfiles
	roles    *recordingQueue
}

func newUserInfoFixture() *userInfoFixture {
	f := &userInfoFixture{
		idents: newFakeIdentities(&identity.Identity{
			SubjectID:   "1",
			DisplayName: "Old Name",
			Email:       "old@school.example",
			Token: identity.OAuthToken{
				AccessToken:     "old-access",
				RefreshToken:    "old-refresh",
				AccessExpiresAt: time.Now().Add(time.Hour),
			},
			CohortID: "2a",
		}),
		tokens: &fakeTokens{},
		profiles: &fakeProfiles{profile: &sso.Profile{
			Name:   "New Name",
			Email:  "new@school.example",
			Groups: []cohort.Group{{Mail: "3b@school.example"}},
		}},
		roles: &recordingQueue{},
	}
	f.sync = NewUserInfoSync(UserInfoSyncConfig{
		Source:     &fakeSource{kind: queue.UserInfoSync},
		Identities: f.idents,
		Tokens:     f.tokens,
		Profiles:   f.profiles,
		Catalog:    cohort.DefaultCatalog("school.example"),
		RoleQueue:  f.roles,
	})
	return f
}

func TestUserInfoSync_UpdatesProfile(t *testing.T) {
	f := newUserInfoFixture()

	outcome, err := f.sync.Sync(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)

	ident := f.idents.identities["1"]
	assert.Equal(t, "New Name", ident.DisplayName)
	assert.Equal(t, "new@school.example", ident.Email)
	assert.Equal(t, "3b", ident.CohortID)
	assert.Equal(t, []string{"old-access"}, f.profiles.tokens)
	assert.Equal(t, []enqueued{{"1", false}}, f.roles.calls)
}

func TestUserInfoSync_UsesRefreshedToken(t *testing.T) {
	f := newUserInfoFixture()
	f.tokens.refreshed = true
	f.tokens.token = identity.OAuthToken{AccessToken: "new-access", RefreshToken: "new-refresh"}

	_, err := f.sync.Sync(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, []string{"new-access"}, f.profiles.tokens)
	assert.Equal(t, "new-refresh", f.idents.identities["1"].Token.RefreshToken)
}

func TestUserInfoSync_UnresolvedCohortBecomesUnknown(t *testing.T) {
	f := newUserInfoFixture()
	f.profiles.profile.Groups = nil

	outcome, err := f.sync.Sync(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)
	assert.False(t, f.idents.identities["1"].HasCohort())
}

func TestUserInfoSync_RevokedTokenKeepsIdentity(t *testing.T) {
	f := newUserInfoFixture()
	f.tokens.err = fmt.Errorf("refresh: %w", sso.ErrTokenRevoked)

	outcome, err := f.sync.Sync(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)

	ident, ok := f.idents.identities["1"]
	require.True(t, ok)
	assert.Empty(t, ident.CohortID)
	assert.Equal(t, "Old Name", ident.DisplayName)
	assert.Empty(t, f.profiles.tokens)
	assert.Equal(t, []enqueued{{"1", false}}, f.roles.calls)
}

func TestUserInfoSync_ProviderUnavailable(t *testing.T) {
	f := newUserInfoFixture()
	f.tokens.err = fmt.Errorf("refresh: %w", sso.ErrProviderUnavailable)

	outcome, err := f.sync.Sync(context.Background(), "1")
	assert.ErrorIs(t, err, sso.ErrProviderUnavailable)
	assert.Equal(t, TemporaryUnavailable, outcome)
	assert.Empty(t, f.idents.saved)
	assert.Empty(t, f.roles.calls)
}

func TestUserInfoSync_ProfileFailureAfterRefreshSavesToken(t *testing.T) {
	f := newUserInfoFixture()
	f.tokens.refreshed = true
	f.tokens.token = identity.OAuthToken{AccessToken: "new-access", RefreshToken: "new-refresh"}
	f.profiles.err = fmt.Errorf("%w: graph down", sso.ErrProviderUnavailable)

	outcome, err := f.sync.Sync(context.Background(), "1")
	assert.ErrorIs(t, err, sso.ErrProviderUnavailable)
	assert.Equal(t, TemporaryUnavailable, outcome)

	require.Len(t, f.idents.saved, 1)
	assert.Equal(t, "new-refresh", f.idents.saved[0].Token.RefreshToken)
	assert.Equal(t, "2a", f.idents.saved[0].CohortID)
}

func TestUserInfoSync_ProfileFailureWithoutRefresh(t *testing.T) {
	f := newUserInfoFixture()
	f.profiles.err = fmt.Errorf("%w: graph down", sso.ErrProviderUnavailable)

	outcome, err := f.sync.Sync(context.Background(), "1")
	assert.Error(t, err)
	assert.Equal(t, TemporaryUnavailable, outcome)
	assert.Empty(t, f.idents.saved)
}

func TestUserInfoSync_NoIdentity(t *testing.T) {
	f := newUserInfoFixture()

	outcome, err := f.sync.Sync(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)
	assert.Equal(t, []enqueued{{"missing", true}}, f.roles.calls)
	assert.Empty(t, f.idents.saved)
}

func TestUserInfoSync_RejectedAccessTokenMarksCohortUnknown(t *testing.T) {
	f := newUserInfoFixture()
	f.profiles.err = fmt.Errorf("failed to fetch profile: %w", sso.ErrTokenRevoked)

	outcome, err := f.sync.Sync(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)

	require.Len(t, f.idents.saved, 1)
	assert.Empty(t, f.idents.saved[0].CohortID)
	assert.Equal(t, "Old Name", f.idents.saved[0].DisplayName)
	assert.Equal(t, []enqueued{{"1", false}}, f.roles.calls)
}
