// Package models defines the domain models of the OAuth 2 authorization
// server: registered clients, in-flight authorization requests, one-shot
// access grants, bearer access tokens, and audit events.
package models

import (
	"crypto/subtle"
	"time"

	"github.com/google/uuid"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/utils"
)

// Client is a registered third-party application.
//
// A revoked client is treated as nonexistent by the authorization and token
// endpoints; the registration record is kept for audit.
type Client struct {
	// ID is the stable opaque client identifier, assigned at registration.
	ID string `json:"id" gorm:"primaryKey;size:36"`

	// Secret is the shared secret presented alongside the ID.
	Secret string `json:"secret" gorm:"not null"`

	// DisplayName is shown on consent pages and in logs.
	DisplayName string `json:"display_name" gorm:"not null"`

	// Link is an optional URL identifying the application to end users.
	Link string `json:"link,omitempty"`

	// ImageURL is an optional logo shown on consent pages.
	ImageURL string `json:"image_url,omitempty"`

	// RedirectURI is the optional pre-registered callback. When set, the
	// authorize endpoint requires requests to use exactly this URI.
	RedirectURI string `json:"redirect_uri,omitempty"`

	// RevokedAt marks the client as revoked. Nil means active.
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the SQL table for registered clients.
func (Client) TableName() string {
	return constants.TableClients
}

// NewClient registers a new client with a generated ID and secret.
// redirectURI may be empty, in which case any well-formed absolute URI is
// accepted at authorization time.
func NewClient(displayName, link, imageURL, redirectURI string) (*Client, error) {
	secret, err := utils.GenerateToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Client{
		ID:          uuid.NewString(),
		Secret:      secret,
		DisplayName: displayName,
		Link:        link,
		ImageURL:    imageURL,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsRevoked reports whether the client has been revoked.
func (c *Client) IsRevoked() bool {
	return c.RevokedAt != nil
}

// Revoke marks the client as revoked.
func (c *Client) Revoke() {
	now := time.Now().UTC()
	c.RevokedAt = &now
	c.UpdatedAt = now
}

// SecretMatches compares a presented secret against the stored one in
// constant time.
func (c *Client) SecretMatches(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(presented)) == 1
}
