package models

import (
	"time"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/utils"
)

// AccessGrant is a one-shot authorization code. It is minted when the end
// user grants a code-flow request, carried back by the client, and redeemed
// exactly once at the token endpoint for an access token. An expired code
// behaves exactly like an unknown one.
type AccessGrant struct {
	// Code is the opaque one-shot identifier handed to the client.
	Code string `json:"code" gorm:"primaryKey;size:32"`

	// ClientID is the client the code was issued to; redemption by any other
	// client fails.
	ClientID string `json:"client_id" gorm:"index;not null;size:36"`

	// Resource identifies the end user who granted access.
	Resource string `json:"resource" gorm:"not null"`

	// Scope is the granted scope, carried onto the minted token.
	Scope string `json:"scope"`

	// RedirectURI is the callback recorded at authorization time; when
	// non-empty, redemption must present the identical value.
	RedirectURI string `json:"redirect_uri"`

	// RedeemedAt marks consumption. Nil means still redeemable.
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TableName returns the SQL table for one-shot authorization codes.
func (AccessGrant) TableName() string {
	return constants.TableAccessGrants
}

// NewAccessGrant mints a code for a granted authorization request. The code
// stays redeemable for ttl.
func NewAccessGrant(clientID, resource, scope, redirectURI string, ttl time.Duration) (*AccessGrant, error) {
	code, err := utils.GenerateToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &AccessGrant{
		Code:        code,
		ClientID:    clientID,
		Resource:    resource,
		Scope:       scope,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// IsExpired reports whether the code has outlived its TTL.
func (g *AccessGrant) IsExpired() bool {
	return time.Now().UTC().After(g.ExpiresAt)
}

// IsRedeemed reports whether the code has already been consumed.
func (g *AccessGrant) IsRedeemed() bool {
	return g.RedeemedAt != nil
}
