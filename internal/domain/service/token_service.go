// Package service holds the domain services: protocol logic above a single
// entity but below any HTTP concern.
package service

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
)

// Authenticator verifies resource-owner credentials for the password grant.
// It returns the opaque resource identifier of the authenticated user; an
// empty resource means the credentials were rejected. A non-nil error means
// the verifier itself failed and must not be reported as bad credentials.
type Authenticator func(ctx context.Context, username, password string) (string, error)

// TokenService mints and validates bearer tokens over the stores. All
// protocol failures are returned as errors.OAuthError values; callers pick
// the HTTP surface.
type TokenService interface {
	// IssueToken returns the live token for the (resource, client, scope)
	// triple, minting one when no live match exists.
	IssueToken(ctx context.Context, resource, clientID, scope string) (*models.AccessToken, error)

	// RedeemGrant consumes an authorization code and returns the access
	// token it resolves to. The code must belong to the presenting client
	// and, when it recorded a redirect URI, the caller must present the
	// identical value. Consumption happens exactly once; every failure
	// surfaces as invalid_grant.
	RedeemGrant(ctx context.Context, client *models.Client, code, redirectURI string) (*models.AccessToken, error)

	// Authenticate validates a presented bearer token value and records the
	// access. Unknown and revoked tokens fail with invalid_token, expired
	// ones with expired_token.
	Authenticate(ctx context.Context, value string) (*models.AccessToken, error)
}
