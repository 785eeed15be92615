package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

var _ TokenService = (*tokenDomainService)(nil)

type tokenDomainService struct {
	grants   repository.GrantRepository
	tokens   repository.TokenRepository
	tokenTTL time.Duration
	sf       singleflight.Group
	log      logger.Logger
}

// NewTokenService builds the token domain service. tokenTTL bounds minted
// token lifetimes; zero mints non-expiring tokens.
func NewTokenService(grants repository.GrantRepository, tokens repository.TokenRepository, tokenTTL time.Duration, log logger.Logger) TokenService {
	return &tokenDomainService{
		grants:   grants,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		log:      log.WithComponent("token_service"),
	}
}

// IssueToken is idempotent per triple. The store enforces the one-live-token
// invariant; singleflight additionally collapses concurrent in-process
// issuance so racing requests share one store round-trip.
func (s *tokenDomainService) IssueToken(ctx context.Context, resource, clientID, scope string) (*models.AccessToken, error) {
	key := resource + "\x00" + clientID + "\x00" + scope
	value, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.tokens.GetOrCreate(ctx, resource, clientID, scope, s.tokenTTL)
	})
	if err != nil {
		s.log.Error(ctx, "token issuance failed", err, logger.String("client_id", clientID))
		return nil, errors.ErrServerError("").WithCause(err)
	}
	return value.(*models.AccessToken), nil
}

func (s *tokenDomainService) RedeemGrant(ctx context.Context, client *models.Client, code, redirectURI string) (*models.AccessToken, error) {
	grant, err := s.grants.FindByCode(ctx, code)
	if err == errors.ErrGrantNotFound {
		return nil, errors.ErrInvalidGrant("")
	}
	if err != nil {
		s.log.Error(ctx, "grant lookup failed", err, logger.String("client_id", client.ID))
		return nil, errors.ErrServerError("").WithCause(err)
	}

	// Ownership and redirect checks run before consumption so a mismatched
	// caller cannot burn someone else's code.
	if grant.ClientID != client.ID {
		return nil, errors.ErrInvalidGrant("")
	}
	if grant.RedirectURI != "" && grant.RedirectURI != redirectURI {
		return nil, errors.ErrInvalidGrant("")
	}

	redeemed, err := s.grants.Redeem(ctx, code)
	switch err {
	case nil:
	case errors.ErrGrantNotFound, errors.ErrGrantConsumed:
		return nil, errors.ErrInvalidGrant("")
	default:
		s.log.Error(ctx, "grant redemption failed", err, logger.String("client_id", client.ID))
		return nil, errors.ErrServerError("").WithCause(err)
	}

	s.log.Info(ctx, "authorization code redeemed",
		logger.String("client_id", client.ID),
		logger.String("resource", redeemed.Resource),
		logger.String("scope", redeemed.Scope),
	)
	return s.IssueToken(ctx, redeemed.Resource, client.ID, redeemed.Scope)
}

func (s *tokenDomainService) Authenticate(ctx context.Context, value string) (*models.AccessToken, error) {
	token, err := s.tokens.FindByToken(ctx, value)
	if err == errors.ErrTokenNotFound {
		return nil, errors.ErrInvalidToken("")
	}
	if err != nil {
		s.log.Error(ctx, "token lookup failed", err)
		return nil, errors.ErrServerError("").WithCause(err)
	}
	if token.IsRevoked() {
		return nil, errors.ErrInvalidToken("")
	}
	if token.IsExpired() {
		return nil, errors.ErrExpiredToken()
	}

	// Last-access bookkeeping is best effort; a verified token stays verified.
	if err := s.tokens.Touch(ctx, token.Token); err != nil {
		s.log.Warn(ctx, "token touch failed", logger.String("error", err.Error()))
	}
	return token, nil
}
