package repository

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
)

// AuthRequestRepository persists in-flight authorization requests and owns
// their terminal transitions.
//
// The three finalizers are atomic at the store: exactly one of them moves a
// given request out of pending, and every later finalization attempt returns
// ErrRequestDecided while leaving the stored outcome untouched. Callers that
// lose the race re-read the record and act on the stored outcome.
type AuthRequestRepository interface {
	// Create stores a pending request. The id is assigned by the caller.
	// Records expire from the store after the configured request TTL.
	Create(ctx context.Context, request *models.AuthRequest) error

	// FindByID returns the request, whatever its status. Unknown and
	// expired ids return ErrAuthRequestNotFound.
	FindByID(ctx context.Context, id string) (*models.AuthRequest, error)

	// GrantCode finalizes a code-flow request: atomically moves pending to
	// granted, records grant.Code on the request, and persists the
	// AccessGrant. Returns the finalized request.
	GrantCode(ctx context.Context, id string, grant *models.AccessGrant) (*models.AuthRequest, error)

	// GrantToken finalizes a token-flow request: atomically moves pending
	// to granted and records the issued token value on the request.
	GrantToken(ctx context.Context, id string, token string) (*models.AuthRequest, error)

	// Deny finalizes a rejection: atomically moves pending to denied.
	Deny(ctx context.Context, id string) (*models.AuthRequest, error)
}
