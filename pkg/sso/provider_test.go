package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rollcall/pkg/identity"
)

type fakeAzure struct {
	server        *httptest.Server
	tokenRequests int32
	graphStatus   int
}

func newFakeAzure(t *testing.T) *fakeAzure {
	t.Helper()
	f := &fakeAzure{graphStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 f.server.URL,
			"authorization_endpoint": f.server.URL + "/authorize",
			"token_endpoint":         f.server.URL + "/token",
			"jwks_uri":               f.server.URL + "/keys",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenRequests, 1)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant","error_description":"AADSTS70000"}`)
				return
			}
			fmt.Fprint(w, `{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`)
		case "refresh_token":
			switch r.PostForm.Get("refresh_token") {
			case "revoked":
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant","error_description":"AADSTS700082"}`)
			case "flaky":
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"error":"temporarily_unavailable"}`)
			default:
				fmt.Fprint(w, `{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`)
			}
		}
	})
	mux.HandleFunc("/v1.0/me", func(w http.ResponseWriter, r *http.Request) {
		if f.graphStatus != http.StatusOK {
			w.WriteHeader(f.graphStatus)
			return
		}
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"displayName":"Jan Novak","mail":"jan@school.example"}`)
	})
	mux.HandleFunc("/v1.0/me/memberOf", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"value":[{"id":"g2","displayName":"2.A","mail":"2a@school.example"}]}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]string{
				{"id": "g1", "displayName": "All students", "mail": "students@school.example"},
			},
			"@odata.nextLink": f.server.URL + "/v1.0/me/memberOf?page=2",
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAzure) config() Config {
	return Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://rollcall.example/oauth/callback",
		AuthURL:      f.server.URL + "/authorize",
		TokenURL:     f.server.URL + "/token",
		GraphURL:     f.server.URL,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:     "missing client id",
			config:   Config{ClientSecret: "s", RedirectURL: "r", TenantID: "t"},
			errorMsg: "client_id is required",
		},
		{
			name:     "missing client secret",
			config:   Config{ClientID: "c", RedirectURL: "r", TenantID: "t"},
			errorMsg: "client_secret is required",
		},
		{
			name:     "missing redirect",
			config:   Config{ClientID: "c", ClientSecret: "s", TenantID: "t"},
			errorMsg: "redirect_url is required",
		},
		{
			name:     "no endpoints",
			config:   Config{ClientID: "c", ClientSecret: "s", RedirectURL: "r"},
			errorMsg: "tenant_id, issuer_url or auth_url and token_url are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestConfig_Validate_TenantDefaults(t *testing.T) {
	c := Config{ClientID: "c", ClientSecret: "s", RedirectURL: "r", TenantID: "contoso"}
	require.NoError(t, c.Validate())

	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/authorize", c.AuthURL)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", c.TokenURL)
	assert.Equal(t, DefaultScopes, c.Scopes)
	assert.Equal(t, "https://graph.microsoft.com", c.GraphURL)
}

func TestAzureProvider_BeginLogin(t *testing.T) {
	f := newFakeAzure(t)
	p, err := NewAzureProvider(context.Background(), f.config(), f.server.Client())
	require.NoError(t, err)

	loginURL, state, err := p.BeginLogin(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, state)

	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, state, u.Query().Get("state"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.Equal(t, "https://rollcall.example/oauth/callback", u.Query().Get("redirect_uri"))

	_, other, err := p.BeginLogin(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, state, other)
}

func TestAzureProvider_OIDCDiscovery(t *testing.T) {
	f := newFakeAzure(t)
	cfg := f.config()
	cfg.AuthURL = ""
	cfg.TokenURL = ""
	cfg.IssuerURL = f.server.URL

	p, err := NewAzureProvider(context.Background(), cfg, f.server.Client())
	require.NoError(t, err)

	token, err := p.ExchangeCode(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)
}

func TestAzureProvider_ExchangeCode(t *testing.T) {
	f := newFakeAzure(t)
	p, err := NewAzureProvider(context.Background(), f.config(), f.server.Client())
	require.NoError(t, err)

	before := time.Now()
	token, err := p.ExchangeCode(context.Background(), "good-code")
	require.NoError(t, err)

	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, "refresh-1", token.RefreshToken)
	assert.WithinDuration(t, before.Add(time.Hour), token.AccessExpiresAt, time.Minute)
}

func TestAzureProvider_ExchangeCode_InvalidGrant(t *testing.T) {
	f := newFakeAzure(t)
	p, err := NewAzureProvider(context.Background(), f.config(), f.server.Client())
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), "bad-code")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenRevoked))
}

func TestAzureProvider_Refresh(t *testing.T) {
	f := newFakeAzure(t)
	p, err := NewAzureProvider(context.Background(), f.config(), f.server.Client())
	require.NoError(t, err)

	tests := []struct {
		name    string
		refresh string
		wantErr error
	}{
		{name: "success keeps refresh token", refresh: "refresh-1"},
		{name: "revoked", refresh: "revoked", wantErr: ErrTokenRevoked},
		{name: "provider down", refresh: "flaky", wantErr: ErrProviderUnavailable},
		{name: "no refresh token", refresh: "", wantErr: ErrTokenRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := p.Refresh(context.Background(), identity.OAuthToken{
				AccessToken:  "old",
				RefreshToken: tt.refresh,
			})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "access-2", token.AccessToken)
			assert.Equal(t, "refresh-1", token.RefreshToken)
		})
	}
}

func TestAzureProvider_FetchProfile(t *testing.T) {
	f := newFakeAzure(t)
	p, err := NewAzureProvider(context.Background(), f.config(), f.server.Client())
	require.NoError(t, err)

	profile, err := p.FetchProfile(context.Background(), "access-1")
	require.NoError(t, err)

	assert.Equal(t, "Jan Novak", profile.Name)
	assert.Equal(t, "jan@school.example", profile.Email)
	require.Len(t, profile.Groups, 2)
	assert.Equal(t, "2a@school.example", profile.Groups[1].Mail)
}

func TestAzureProvider_FetchProfile_GraphDown(t *testing.T) {
	f := newFakeAzure(t)
	f.graphStatus = http.StatusBadGateway
	p, err := NewAzureProvider(context.Background(), f.config(), f.server.Client())
	require.NoError(t, err)

	_, err = p.FetchProfile(context.Background(), "access-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
	assert.True(t, strings.Contains(err.Error(), "502"))
}

func TestAzureProvider_FetchProfile_Unauthorized(t *testing.T) {
	f := newFakeAzure(t)
	f.graphStatus = http.StatusUnauthorized
	p, err := NewAzureProvider(context.Background(), f.config(), f.server.Client())
	require.NoError(t, err)

	_, err = p.FetchProfile(context.Background(), "access-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenRevoked))
	assert.False(t, errors.Is(err, ErrProviderUnavailable))
}

func TestGenerateState(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		state, err := GenerateState()
		require.NoError(t, err)
		assert.Len(t, state, 43)
		assert.False(t, seen[state])
		seen[state] = true
	}
}
