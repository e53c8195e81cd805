package sso

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/rollcall/pkg/cohort"
	"github.com/platinummonkey/rollcall/pkg/identity"
)

// Provider is the identity provider used for logins and profile sync
type Provider interface {
	// BeginLogin returns a login URL and the CSRF state bound to it
	BeginLogin(ctx context.Context) (loginURL, state string, err error)
	// ExchangeCode trades a callback code for a token pair
	ExchangeCode(ctx context.Context, code string) (identity.OAuthToken, error)
	// Refresh trades a refresh token for a new token pair
	Refresh(ctx context.Context, token identity.OAuthToken) (identity.OAuthToken, error)
	// FetchProfile returns the profile behind an access token
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Profile is the provider profile of a subject
type Profile struct {
	Name   string
	Email  string
	Groups []cohort.Group
}

// Config configures an AzureProvider
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// TenantID derives the Azure AD v2 endpoints
	TenantID string
	// AuthURL and TokenURL override the derived endpoints
	AuthURL  string
	TokenURL string
	// IssuerURL enables OpenID Connect discovery of the endpoints
	IssuerURL string

	// GraphURL is the Microsoft Graph base URL
	GraphURL string
}

const (
	azureLoginURL   = "https://login.microsoftonline.com"
	defaultGraphURL = "https://graph.microsoft.com"
)

// DefaultScopes are requested when Config.Scopes is empty
var DefaultScopes = []string{
	"openid", "profile", "email", "offline_access", "User.Read", "GroupMember.Read.All",
}

// Validate checks the config and fills defaults
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if c.IssuerURL == "" {
		if c.TenantID != "" {
			base := fmt.Sprintf("%s/%s/oauth2/v2.0", azureLoginURL, c.TenantID)
			if c.AuthURL == "" {
				c.AuthURL = base + "/authorize"
			}
			if c.TokenURL == "" {
				c.TokenURL = base + "/token"
			}
		}
		if c.AuthURL == "" || c.TokenURL == "" {
			return fmt.Errorf("tenant_id, issuer_url or auth_url and token_url are required")
		}
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.GraphURL == "" {
		c.GraphURL = defaultGraphURL
	}
	c.GraphURL = strings.TrimRight(c.GraphURL, "/")
	return nil
}
