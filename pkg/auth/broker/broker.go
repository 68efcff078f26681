// Package broker exchanges authorization codes with the upstream identity
// broker and retrieves the ID token and userinfo produced by the federated
// sign-in.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoIDToken is returned when the token endpoint response does not carry
// an id_token, which means the broker did not complete an OIDC sign-in.
var ErrNoIDToken = errors.New("token response missing id_token")

// Config holds the OAuth2 client registration for the broker.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// Client drives the authorization-code flow against the broker.
type Client struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a broker client from the given registration.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.TokenURL == "" {
		return nil, errors.New("token URL is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AuthCodeURL returns the broker authorization URL for the given state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Tokens are the products of a successful authorization-code exchange.
type Tokens struct {
	// IDToken is the raw OIDC ID token from the token response.
	IDToken string

	// AccessToken authorizes userinfo requests.
	AccessToken string
}

// ExchangeCode redeems an authorization code at the token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, ErrNoIDToken
	}
	return &Tokens{IDToken: idToken, AccessToken: token.AccessToken}, nil
}

// HasUserInfo reports whether a userinfo endpoint is configured.
func (c *Client) HasUserInfo() bool {
	return c.userInfoURL != ""
}

// UserInfo fetches the userinfo document with the given access token.
// The broker is free to add claims here that are absent from the ID token.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	if c.userInfoURL == "" {
		return nil, errors.New("userinfo URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, string(body))
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	return claims, nil
}
