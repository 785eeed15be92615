package repository

import (
	"context"
	"time"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
)

// TokenRepository persists bearer access tokens.
//
// At most one live token exists per (resource, client, scope) triple;
// GetOrCreate enforces that invariant at the store.
type TokenRepository interface {
	// Create stores a token minted by the caller. Code redemption mints
	// unconditionally and stores the result through this method.
	Create(ctx context.Context, token *models.AccessToken) error

	// FindByToken returns the record for a presented credential. Matching
	// is case-insensitive; unknown values return ErrTokenNotFound. Revoked
	// and expired tokens are returned for the caller to judge.
	FindByToken(ctx context.Context, value string) (*models.AccessToken, error)

	// FindByResource returns all tokens issued for a resource, newest first.
	FindByResource(ctx context.Context, resource string) ([]*models.AccessToken, error)

	// GetOrCreate returns the live token for (resource, clientID, scope),
	// minting one with the given ttl only when no live match exists. A zero
	// ttl mints non-expiring tokens.
	GetOrCreate(ctx context.Context, resource, clientID, scope string, ttl time.Duration) (*models.AccessToken, error)

	// Touch records a verified use of the token, updating its last-access
	// time. Unknown values return ErrTokenNotFound.
	Touch(ctx context.Context, value string) error

	// Revoke marks a token revoked. Unknown values return ErrTokenNotFound.
	Revoke(ctx context.Context, value string) error
}

// Stores bundles one backend's implementations of the four contracts for
// wiring. Backends fill every field from the same underlying connection.
type Stores struct {
	Clients  ClientRepository
	Requests AuthRequestRepository
	Grants   GrantRepository
	Tokens   TokenRepository
}
