package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/rollcall/pkg/cohort"
)

const maxGroupPages = 20

type graphUser struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type graphGroupPage struct {
	Value    []cohort.Group `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// FetchProfile loads the user and their group memberships from Microsoft Graph
func (p *AzureProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	ctx = p.clientContext(ctx)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	var user graphUser
	if err := p.graphGet(ctx, client, p.config.GraphURL+"/v1.0/me?$select=displayName,mail,userPrincipalName", &user); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	profile := &Profile{
		Name:  strings.TrimSpace(user.DisplayName),
		Email: strings.TrimSpace(user.Mail),
	}
	if profile.Email == "" {
		profile.Email = strings.TrimSpace(user.UserPrincipalName)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("failed to fetch profile: %w: profile has no email", ErrProviderUnavailable)
	}

	next := p.config.GraphURL + "/v1.0/me/memberOf?$select=id,displayName,mail"
	for page := 0; next != "" && page < maxGroupPages; page++ {
		var groups graphGroupPage
		if err := p.graphGet(ctx, client, next, &groups); err != nil {
			return nil, fmt.Errorf("failed to fetch group memberships: %w", err)
		}
		profile.Groups = append(profile.Groups, groups.Value...)
		next = groups.NextLink
	}

	return profile, nil
}

func (p *AzureProvider) graphGet(ctx context.Context, client *http.Client, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: graph rejected the access token", ErrTokenRevoked)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: graph request failed with status %d: %s",
			ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: failed to decode graph response: %w", ErrProviderUnavailable, err)
	}
	return nil
}
