package models

import (
	"time"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/utils"
)

// AccessToken is a bearer credential issued by the token endpoint.
//
// Tokens are opaque: possession is the only proof, and the stored record is
// the single source of truth for validity. At most one live token exists per
// (resource, client, scope) triple; repeated issuance for the same triple
// returns the existing token.
type AccessToken struct {
	// Token is the opaque credential string in its stored lowercase form.
	Token string `json:"token" gorm:"primaryKey;size:32"`

	// Resource identifies the end user the token acts on behalf of.
	Resource string `json:"resource" gorm:"index:idx_oauth_tokens_identity;not null"`

	// ClientID is the client the token was issued to.
	ClientID string `json:"client_id" gorm:"index:idx_oauth_tokens_identity;not null;size:36"`

	// Scope is the granted scope, space-separated.
	Scope string `json:"scope" gorm:"index:idx_oauth_tokens_identity"`

	// ExpiresAt bounds the token lifetime. Nil means non-expiring.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// RevokedAt marks the token as revoked. Nil means active.
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// LastAccessAt tracks the most recent verified use, for operators.
	LastAccessAt *time.Time `json:"last_access_at,omitempty"`
}

// TableName returns the SQL table for bearer tokens.
func (AccessToken) TableName() string {
	return constants.TableAccessTokens
}

// NewAccessToken mints a token for a resource, client and scope. A zero ttl
// produces a non-expiring token.
func NewAccessToken(resource, clientID, scope string, ttl time.Duration) (*AccessToken, error) {
	value, err := utils.GenerateToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t := &AccessToken{
		Token:     value,
		Resource:  resource,
		ClientID:  clientID,
		Scope:     scope,
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		t.ExpiresAt = &exp
	}
	return t, nil
}

// IsExpired reports whether the token is past its expiry. Non-expiring
// tokens never expire.
func (t *AccessToken) IsExpired() bool {
	return t.ExpiresAt != nil && time.Now().UTC().After(*t.ExpiresAt)
}

// IsRevoked reports whether the token has been revoked.
func (t *AccessToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsValid reports whether the token is usable: neither expired nor revoked.
func (t *AccessToken) IsValid() bool {
	return !t.IsExpired() && !t.IsRevoked()
}

// Revoke marks the token as revoked.
func (t *AccessToken) Revoke() {
	now := time.Now().UTC()
	t.RevokedAt = &now
}

// TouchAccess records a verified use.
func (t *AccessToken) TouchAccess() {
	now := time.Now().UTC()
	t.LastAccessAt = &now
}

// TimeUntilExpiry returns the remaining lifetime. The second return is false
// for non-expiring tokens.
func (t *AccessToken) TimeUntilExpiry() (time.Duration, bool) {
	if t.ExpiresAt == nil {
		return 0, false
	}
	if t.IsExpired() {
		return 0, true
	}
	return time.Until(*t.ExpiresAt), true
}
