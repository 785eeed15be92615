package service

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// ResourceGate validates bearer tokens presented to protected resources.
type ResourceGate interface {
	// Authenticate verifies a presented token value. Unknown and revoked
	// tokens fail with invalid_token, expired ones with expired_token;
	// infrastructure failures come back as server_error so the surface can
	// challenge without leaking detail.
	Authenticate(ctx context.Context, value, remoteAddr string) (*models.AccessToken, error)
}

type resourceGate struct {
	tokens domainservice.TokenService
	audit  domainservice.AuditService
	log    logger.Logger
}

// NewResourceGate builds the bearer-validation service. audit may be nil.
func NewResourceGate(tokens domainservice.TokenService, audit domainservice.AuditService, log logger.Logger) ResourceGate {
	return &resourceGate{
		tokens: tokens,
		audit:  audit,
		log:    log.WithComponent("resource_gate"),
	}
}

func (s *resourceGate) Authenticate(ctx context.Context, value, remoteAddr string) (*models.AccessToken, error) {
	token, err := s.tokens.Authenticate(ctx, value)
	if err != nil {
		if oerr, ok := errors.AsOAuthError(err); ok && oerr.Code() != constants.ErrCodeServerError {
			publishAudit(ctx, s.audit, s.log, models.NewAuditEvent(constants.EventTokenRejected).
				WithMessage(string(oerr.Code())).
				WithRequestInfo(remoteAddr, ""))
		}
		return nil, err
	}

	s.log.Debug(ctx, "bearer token verified",
		logger.String("client_id", token.ClientID),
		logger.String("resource", token.Resource))
	return token, nil
}
