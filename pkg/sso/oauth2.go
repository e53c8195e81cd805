package sso

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/rollcall/pkg/identity"
)

// DefaultTokenLifetime is assumed when the token response has no expires_in
const DefaultTokenLifetime = 5 * time.Minute

// AzureProvider implements Provider with OAuth2 against Azure AD and
// profile lookups against Microsoft Graph
type AzureProvider struct {
	config       Config
	oauth2Config *oauth2.Config
	httpClient   *http.Client
	now          func() time.Time
}

// NewAzureProvider creates a provider. With an issuer URL the endpoints are
// discovered through OpenID Connect. httpClient may be nil.
func NewAzureProvider(ctx context.Context, config Config, httpClient *http.Client) (*AzureProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	p := &AzureProvider{
		config:     config,
		httpClient: httpClient,
		now:        time.Now,
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  config.AuthURL,
		TokenURL: config.TokenURL,
	}
	if config.IssuerURL != "" {
		discovered, err := oidc.NewProvider(p.clientContext(ctx), config.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
		}
		endpoint = discovered.Endpoint()
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	p.oauth2Config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  config.RedirectURL,
		Scopes:       config.Scopes,
	}
	return p, nil
}

func (p *AzureProvider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// BeginLogin returns the authorization URL for a fresh CSRF state
func (p *AzureProvider) BeginLogin(ctx context.Context) (string, string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", "", err
	}
	authURL := p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	return authURL, state, nil
}

// ExchangeCode trades a callback code for a token pair
func (p *AzureProvider) ExchangeCode(ctx context.Context, code string) (identity.OAuthToken, error) {
	token, err := p.oauth2Config.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return identity.OAuthToken{}, classifyTokenError("failed to exchange code", err)
	}
	return p.convert(token), nil
}

// Refresh trades the refresh token for a new token pair
func (p *AzureProvider) Refresh(ctx context.Context, current identity.OAuthToken) (identity.OAuthToken, error) {
	if current.RefreshToken == "" {
		return identity.OAuthToken{}, fmt.Errorf("failed to refresh token: %w", ErrTokenRevoked)
	}

	// An expired token makes the source go straight to the token endpoint
	expired := &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}
	token, err := p.oauth2Config.TokenSource(p.clientContext(ctx), expired).Token()
	if err != nil {
		return identity.OAuthToken{}, classifyTokenError("failed to refresh token", err)
	}

	refreshed := p.convert(token)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = current.RefreshToken
	}
	return refreshed, nil
}

func (p *AzureProvider) convert(token *oauth2.Token) identity.OAuthToken {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = p.now().Add(DefaultTokenLifetime)
	}
	return identity.OAuthToken{
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		AccessExpiresAt: expiry.UTC(),
	}
}
