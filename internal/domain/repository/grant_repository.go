package repository

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
)

// GrantRepository persists one-shot authorization codes.
//
// Codes are looked up case-insensitively: lookups fold the presented code to
// lowercase before matching, and grants always store the lowercase form.
type GrantRepository interface {
	// FindByCode returns the grant for a code. Unknown, malformed and
	// expired codes all return ErrGrantNotFound; a consumed code is still
	// returned so callers can distinguish replay from absence.
	FindByCode(ctx context.Context, code string) (*models.AccessGrant, error)

	// Redeem consumes a code. Exactly one concurrent redeemer wins; the
	// rest observe ErrGrantConsumed. Expired or unknown codes return
	// ErrGrantNotFound.
	Redeem(ctx context.Context, code string) (*models.AccessGrant, error)
}
