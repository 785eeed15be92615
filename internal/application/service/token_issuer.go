package service

import (
	"context"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// TokenRequest is one token-endpoint exchange as decoded from the POST.
type TokenRequest struct {
	GrantType   string
	Code        string
	RedirectURI string
	Username    string
	Password    string
	Scope       string
	Client      ClientAuth
	RemoteAddr  string
}

// TokenIssuer drives the token endpoint: it authenticates the client and
// exchanges a grant for an access token.
type TokenIssuer interface {
	// Issue runs one exchange. Failures come back as OAuthErrors carrying
	// the wire code and status; invalid_client additionally keeps its
	// challenge semantics when the credentials arrived via Basic auth.
	Issue(ctx context.Context, req TokenRequest) (*models.AccessToken, error)
}

type tokenIssuer struct {
	resolver ClientResolver
	tokens   domainservice.TokenService
	audit    domainservice.AuditService
	opts     Options
	log      logger.Logger
}

// NewTokenIssuer builds the token-endpoint service. audit may be nil.
func NewTokenIssuer(
	resolver ClientResolver,
	tokens domainservice.TokenService,
	audit domainservice.AuditService,
	opts Options,
	log logger.Logger,
) TokenIssuer {
	return &tokenIssuer{
		resolver: resolver,
		tokens:   tokens,
		audit:    audit,
		opts:     opts.withDefaults(),
		log:      log.WithComponent("token_issuer"),
	}
}

func (s *tokenIssuer) Issue(ctx context.Context, req TokenRequest) (*models.AccessToken, error) {
	// Client authentication comes first: a caller that cannot identify
	// itself learns nothing about the grant it presented.
	client, err := s.resolver.Resolve(ctx, req.Client)
	if err != nil {
		return nil, err
	}

	switch constants.GrantType(req.GrantType) {
	case constants.GrantTypeAuthorizationCode:
		return s.issueFromCode(ctx, client, req)
	case constants.GrantTypePassword:
		return s.issueFromPassword(ctx, client, req)
	default:
		return nil, errors.ErrUnsupportedGrantType()
	}
}

func (s *tokenIssuer) issueFromCode(ctx context.Context, client *models.Client, req TokenRequest) (*models.AccessToken, error) {
	token, err := s.tokens.RedeemGrant(ctx, client, req.Code, req.RedirectURI)
	if err != nil {
		return nil, err
	}

	publishAudit(ctx, s.audit, s.log, models.NewAuditEvent(constants.EventGrantRedeemed).
		WithClient(client.ID).
		WithResource(token.Resource).
		WithScope(token.Scope).
		WithGrantType(req.GrantType).
		WithRequestInfo(req.RemoteAddr, ""))
	s.logIssued(ctx, client.ID, token, req.GrantType, req.RemoteAddr)
	return token, nil
}

func (s *tokenIssuer) issueFromPassword(ctx context.Context, client *models.Client, req TokenRequest) (*models.AccessToken, error) {
	if s.opts.Authenticator == nil {
		return nil, errors.ErrUnsupportedGrantType()
	}
	if req.Username == "" || req.Password == "" {
		return nil, errors.ErrInvalidGrant("missing username or password")
	}

	scope := models.NormalizeScope(req.Scope)
	if !models.ScopeAllowed(scope, s.opts.Scopes) {
		return nil, errors.ErrInvalidScope("")
	}

	resource, err := s.opts.Authenticator(ctx, req.Username, req.Password)
	if err != nil {
		s.log.Error(ctx, "resource owner verification failed", err,
			logger.String("client_id", client.ID))
		return nil, errors.ErrServerError("").WithCause(err)
	}
	if resource == "" {
		return nil, errors.ErrInvalidGrant("")
	}

	token, err := s.tokens.IssueToken(ctx, resource, client.ID, scope)
	if err != nil {
		return nil, err
	}
	s.logIssued(ctx, client.ID, token, req.GrantType, req.RemoteAddr)
	return token, nil
}

func (s *tokenIssuer) logIssued(ctx context.Context, clientID string, token *models.AccessToken, grantType, remoteAddr string) {
	publishAudit(ctx, s.audit, s.log, models.NewAuditEvent(constants.EventTokenIssued).
		WithClient(clientID).
		WithResource(token.Resource).
		WithScope(token.Scope).
		WithGrantType(grantType).
		WithRequestInfo(remoteAddr, ""))
	s.log.Info(ctx, "access token issued",
		logger.String("client_id", clientID),
		logger.String("resource", token.Resource),
		logger.String("grant_type", grantType),
	)
}
