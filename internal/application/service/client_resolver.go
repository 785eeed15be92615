// Package service provides the application services that drive the protocol:
// Authorizer (authorize endpoint), TokenIssuer (token endpoint) and
// ResourceGate (bearer validation). They orchestrate the domain services and
// repositories and decide protocol outcomes; HTTP surfaces stay in the
// interfaces layer.
package service

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// ClientAuth carries the client credentials extracted from a request. The
// decoder picks the first present source: Basic header, then form body, then
// query string. FromBasic drives the token endpoint's challenge rule.
type ClientAuth struct {
	ID        string
	Secret    string
	FromBasic bool
}

// ClientResolver authenticates a client from extracted credentials.
type ClientResolver interface {
	// Resolve returns the client the credentials identify. Every failure
	// mode collapses into invalid_client so callers cannot probe which
	// condition failed.
	Resolve(ctx context.Context, auth ClientAuth) (*models.Client, error)

	// Lookup identifies a client by id alone, for the authorize endpoint
	// where no secret travels. Unknown and revoked clients both come back
	// as invalid_client.
	Lookup(ctx context.Context, clientID string) (*models.Client, error)
}

type clientResolver struct {
	clients repository.ClientRepository
	log     logger.Logger
}

// NewClientResolver builds the resolver over the client store.
func NewClientResolver(clients repository.ClientRepository, log logger.Logger) ClientResolver {
	return &clientResolver{clients: clients, log: log.WithComponent("client_resolver")}
}

func (r *clientResolver) Resolve(ctx context.Context, auth ClientAuth) (*models.Client, error) {
	client, err := r.Lookup(ctx, auth.ID)
	if err != nil {
		return nil, err
	}
	if !client.SecretMatches(auth.Secret) {
		return nil, errors.ErrInvalidClient()
	}
	return client, nil
}

func (r *clientResolver) Lookup(ctx context.Context, clientID string) (*models.Client, error) {
	if clientID == "" {
		return nil, errors.ErrInvalidClient()
	}

	client, err := r.clients.FindByID(ctx, clientID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrInvalidClient()
		}
		r.log.Error(ctx, "client lookup failed", err, logger.String("client_id", clientID))
		return nil, errors.ErrServerError("").WithCause(err)
	}
	if client.IsRevoked() {
		return nil, errors.ErrInvalidClient()
	}
	return client, nil
}
