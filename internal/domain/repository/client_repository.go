// Package repository defines the persistence contracts of the authorization
// server. Implementations live under internal/infrastructure/persistence;
// every method is context-first and reports store outcomes through the
// sentinel errors in pkg/errors.
package repository

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
)

// ClientRepository persists registered clients.
//
// Implementations: internal/infrastructure/persistence/{memory,redis,gormstore}.
type ClientRepository interface {
	// Create stores a newly registered client.
	Create(ctx context.Context, client *models.Client) error

	// FindByID returns the client with the given id, revoked or not.
	// Unknown and malformed ids both return ErrClientNotFound.
	FindByID(ctx context.Context, id string) (*models.Client, error)

	// List returns all registered clients, newest first.
	List(ctx context.Context) ([]*models.Client, error)

	// Revoke marks a client revoked. Revoking an already revoked client is
	// a no-op; an unknown id returns ErrClientNotFound.
	Revoke(ctx context.Context, id string) error
}
