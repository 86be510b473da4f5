package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gogotex/usersync/internal/config"
	"github.com/spf13/cast"
	"golang.org/x/oauth2"
)

// Grant is the result of a successful refresh-token grant.
type Grant struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	// ExpiresIn is the reported access token lifetime in seconds, 0 when absent.
	ExpiresIn int64
}

// IdentityProvider is the subset of the provider's token endpoints the manager uses.
// Refresh returns *RefreshError when the provider answers with a non-2xx status;
// any other error is a transport or decoding failure.
type IdentityProvider interface {
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
	Introspect(ctx context.Context, token string) (map[string]any, error)
}

// KeycloakClient talks to a Keycloak realm's token and introspection endpoints.
type KeycloakClient struct {
	oauth         *oauth2.Config
	introspectURL string
	httpClient    *http.Client
}

// NewKeycloakClient builds a client for the realm. Every call is bounded by timeout.
func NewKeycloakClient(cfg config.KeycloakConfig, timeout time.Duration) *KeycloakClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &KeycloakClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		introspectURL: cfg.IntrospectURL(),
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Refresh performs grant_type=refresh_token with the client credentials in the form body.
func (k *KeycloakClient) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, k.httpClient)
	tok, err := k.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			desc := re.ErrorDescription
			if desc == "" {
				desc = strings.TrimSpace(string(re.Body))
			}
			return nil, &RefreshError{StatusCode: re.Response.StatusCode, Description: desc}
		}
		return nil, fmt.Errorf("refresh grant: %w", err)
	}
	return &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      cast.ToString(tok.Extra("id_token")),
		ExpiresIn:    cast.ToInt64(tok.Extra("expires_in")),
	}, nil
}

// Introspect posts the token to the introspection endpoint and returns the raw response.
func (k *KeycloakClient) Introspect(ctx context.Context, token string) (map[string]any, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", k.oauth.ClientID)
	form.Set("client_secret", k.oauth.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.introspectURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("introspection endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode introspection response: %w", err)
	}
	return claims, nil
}
