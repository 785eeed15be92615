// Package oauth2client is a small client for the authorization server: it
// builds authorization URLs, redeems codes and resource-owner credentials at
// the token endpoint, and calls protected resources with a bearer token.
package oauth2client

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

// Token is a bearer credential issued by the token endpoint.
type Token struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope,omitempty"`
}

// Error is a protocol failure reported by the server, either as a JSON error
// body or inside a WWW-Authenticate challenge.
type Error struct {
	Status      int
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Scope       string `json:"scope,omitempty"`
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth2: %s: %s", e.Code, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("oauth2: %s", e.Code)
	}
	return fmt.Sprintf("oauth2: unexpected status %d", e.Status)
}

// Config locates the server and identifies the client.
type Config struct {
	// AuthorizeURL is the server's authorization endpoint.
	AuthorizeURL string

	// TokenURL is the server's token endpoint.
	TokenURL string

	// ClientID and ClientSecret are the registered credentials.
	ClientID     string
	ClientSecret string

	// RedirectURI is where the server sends the user back.
	RedirectURI string

	// HTTPClient overrides the transport. Nil uses a 10 second timeout
	// client.
	HTTPClient *http.Client
}

// Client talks to one authorization server on behalf of one registered
// client. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client from the config.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// AuthorizeURL builds the URL to send the end user to. responseType is
// "code" or "token"; scope and state may be empty.
func (c *Client) AuthorizeURL(responseType, scope, state string) string {
	query := url.Values{}
	query.Set("response_type", responseType)
	query.Set("client_id", c.cfg.ClientID)
	query.Set("redirect_uri", c.cfg.RedirectURI)
	if scope != "" {
		query.Set("scope", scope)
	}
	if state != "" {
		query.Set("state", state)
	}

	separator := "?"
	if strings.Contains(c.cfg.AuthorizeURL, "?") {
		separator = "&"
	}
	return c.cfg.AuthorizeURL + separator + query.Encode()
}

// Exchange redeems an authorization code for an access token. The redirect
// URI sent here must match the one used on the authorization request.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	return c.requestToken(ctx, form)
}

// PasswordGrant trades resource-owner credentials for an access token.
func (c *Client) PasswordGrant(ctx context.Context, username, password, scope string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	if scope != "" {
		form.Set("scope", scope)
	}
	return c.requestToken(ctx, form)
}

func (c *Client) requestToken(ctx context.Context, form url.Values) (*Token, error) {
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		oerr := &Error{Status: resp.StatusCode}
		if err := json.Unmarshal(body, oerr); err != nil || oerr.Code == "" {
			oerr.Code = "server_error"
			oerr.Description = strings.TrimSpace(string(body))
		}
		return nil, oerr
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response carries no access token")
	}
	return &token, nil
}

// Do sends the request with the token attached and turns challenge responses
// into *Error values. Any other response is returned as is.
func (c *Client) Do(req *http.Request, token string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if oerr := parseChallenge(resp.Header.Get("WWW-Authenticate"), resp.StatusCode); oerr != nil {
			resp.Body.Close()
			return nil, oerr
		}
	}
	return resp, nil
}

// Get fetches a protected resource.
func (c *Client) Get(ctx context.Context, target, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req, token)
}

// parseChallenge extracts the error, description and scope parameters from
// an OAuth WWW-Authenticate challenge. A challenge without an error code
// (the server's way of saying "bring a token") yields a bare Error carrying
// just the status.
func parseChallenge(header string, status int) *Error {
	scheme, params, found := strings.Cut(header, " ")
	if !found && scheme == "" {
		return nil
	}
	if !strings.EqualFold(scheme, "OAuth") && !strings.EqualFold(scheme, "Bearer") {
		return nil
	}

	oerr := &Error{Status: status}
	for _, part := range strings.Split(params, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "error":
			oerr.Code = value
		case "error_description":
			oerr.Description = value
		case "scope":
			oerr.Scope = value
		}
	}
	return oerr
}
