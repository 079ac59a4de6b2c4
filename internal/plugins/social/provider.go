// Package social implements OAuth2 social login against Google and
// WordPress.com. It only brokers identity: the authorization redirect, the
// code-for-token exchange, and the userinfo fetch live here, while account
// lookup and creation are delegated to the auth plugin. Every failure on
// the callback path degrades to an error flash and a redirect to the login
// page -- a broken provider must never take the site down with it.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider names accepted in the pr_social_login parameter and embedded
// in the state token.
const (
	ProviderGoogle    = "google"
	ProviderWordPress = "wordpress"
)

// callbackTimeout bounds each server-to-server call on the callback path.
const callbackTimeout = 10 * time.Second

// provider describes one OAuth2 endpoint set and how to read its
// userinfo response.
type provider struct {
	name         string
	authorizeURL string
	tokenURL     string
	userinfoURL  string
	scopes       string
}

// providers is the fixed endpoint registry.
var providers = map[string]provider{
	ProviderGoogle: {
		name:         ProviderGoogle,
		authorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL:     "https://oauth2.googleapis.com/token",
		userinfoURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
		scopes:       "openid email profile",
	},
	ProviderWordPress: {
		name:         ProviderWordPress,
		authorizeURL: "https://public-api.wordpress.com/oauth2/authorize",
		tokenURL:     "https://public-api.wordpress.com/oauth2/token",
		userinfoURL:  "https://public-api.wordpress.com/rest/v1/me",
		scopes:       "auth",
	},
}

// Identity is the normalized result of a userinfo fetch. Email is the
// only mandatory field.
type Identity struct {
	Email     string
	FirstName string
	LastName  string
	Display   string
}

// tokenResponse is the common shape of both providers' token endpoints.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
}

// exchangeCode trades an authorization code for an access token.
func (p provider) exchangeCode(ctx context.Context, client *http.Client, clientID, clientSecret, code, redirectURI string) (string, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"redirect_uri":  {redirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	var token tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&token); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token (error=%q, status=%d)", token.Error, resp.StatusCode)
	}

	return token.AccessToken, nil
}

// fetchIdentity retrieves and normalizes the provider's userinfo.
func (p provider) fetchIdentity(ctx context.Context, client *http.Client, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, fmt.Errorf("reading userinfo: %w", err)
	}

	switch p.name {
	case ProviderGoogle:
		var info struct {
			Email      string `json:"email"`
			GivenName  string `json:"given_name"`
			FamilyName string `json:"family_name"`
			Name       string `json:"name"`
		}
		if err := json.Unmarshal(body, &info); err != nil {
			return Identity{}, fmt.Errorf("decoding userinfo: %w", err)
		}
		return Identity{
			Email:     info.Email,
			FirstName: info.GivenName,
			LastName:  info.FamilyName,
			Display:   info.Name,
		}, nil
	case ProviderWordPress:
		var info struct {
			Email       string `json:"email"`
			DisplayName string `json:"display_name"`
		}
		if err := json.Unmarshal(body, &info); err != nil {
			return Identity{}, fmt.Errorf("decoding userinfo: %w", err)
		}
		return Identity{
			Email:   info.Email,
			Display: info.DisplayName,
		}, nil
	}

	return Identity{}, fmt.Errorf("unknown provider %q", p.name)
}
