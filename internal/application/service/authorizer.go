package service

import (
	"context"
	"net/url"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// AuthorizeParams is the raw input to the authorize endpoint. Only the
// client id travels here; the authorize flow never sees the secret.
type AuthorizeParams struct {
	ResponseType string
	RedirectURI  string
	Scope        string
	State        string
	ClientID     string
}

// ConsentView is what the host application shows the end user while the
// request is pending.
type ConsentView struct {
	Client string   `json:"client"`
	Scope  []string `json:"scope"`
}

// Decision is the host application's verdict on a pending request.
type Decision struct {
	Granted bool

	// Resource identifies the end user who decided. Ignored on deny.
	Resource string
}

// Authorizer drives the authorize endpoint: it validates incoming requests
// into pending AuthRequests and finalizes them once the end user decides.
type Authorizer interface {
	// Begin validates an authorization request and records it as pending.
	//
	// Failures before the redirect URI is known come back as plain
	// OAuthErrors; failures after it come back as *RedirectError so the
	// surface can send them to the client's callback.
	Begin(ctx context.Context, params AuthorizeParams) (*models.AuthRequest, *ConsentView, error)

	// Finalize applies the end user's decision to a pending request and
	// returns the redirect location that delivers the outcome, along with
	// the request in its terminal state. The first decision wins; repeat
	// calls re-emit the stored outcome. Unknown and expired ids return
	// ErrAuthRequestNotFound.
	Finalize(ctx context.Context, id string, decision Decision) (string, *models.AuthRequest, error)
}

type authorizer struct {
	requests repository.AuthRequestRepository
	resolver ClientResolver
	tokens   domainservice.TokenService
	audit    domainservice.AuditService
	opts     Options
	log      logger.Logger
}

// NewAuthorizer builds the authorize-endpoint service. audit may be nil.
func NewAuthorizer(
	requests repository.AuthRequestRepository,
	resolver ClientResolver,
	tokens domainservice.TokenService,
	audit domainservice.AuditService,
	opts Options,
	log logger.Logger,
) Authorizer {
	return &authorizer{
		requests: requests,
		resolver: resolver,
		tokens:   tokens,
		audit:    audit,
		opts:     opts.withDefaults(),
		log:      log.WithComponent("authorizer"),
	}
}

func (s *authorizer) Begin(ctx context.Context, params AuthorizeParams) (*models.AuthRequest, *ConsentView, error) {
	// 1. The redirect URI gates everything else: until it parses, errors
	// have nowhere safe to go and are answered directly.
	uri, err := ParseRedirectURI(params.RedirectURI)
	if err != nil {
		return nil, nil, err
	}

	// 2. Resolve the client by id alone. The authorize endpoint never sees
	// the secret, so resolution skips the secret check.
	client, err := s.resolver.Lookup(ctx, params.ClientID)
	if err != nil {
		if oerr, ok := errors.AsOAuthError(err); ok && oerr.Code() == constants.ErrCodeServerError {
			return nil, nil, err
		}
		return nil, nil, newRedirectError(uri, params.State, errors.ErrInvalidClient())
	}

	// 3. A registered callback pins the request to exactly that URI.
	if client.RedirectURI != "" && client.RedirectURI != uri.String() {
		return nil, nil, newRedirectError(uri, params.State, errors.ErrRedirectURIMismatch())
	}

	// 4. Scope against the allow-list.
	scope := models.NormalizeScope(params.Scope)
	if !models.ScopeAllowed(scope, s.opts.Scopes) {
		return nil, nil, newRedirectError(uri, params.State, errors.ErrInvalidScope(""))
	}

	// 5. Response type against the enabled set.
	if !s.opts.responseTypeAllowed(params.ResponseType) {
		return nil, nil, newRedirectError(uri, params.State, errors.ErrUnsupportedResponseType())
	}

	// 6. Record the request as pending and hand it to the host application.
	request := models.NewAuthRequest(client.ID, scope, uri.String(), params.ResponseType, params.State)
	if err := s.requests.Create(ctx, request); err != nil {
		s.log.Error(ctx, "authorization request persist failed", err,
			logger.String("client_id", client.ID))
		return nil, nil, errors.ErrServerError("").WithCause(err)
	}

	s.log.Info(ctx, "authorization request pending",
		logger.String("request_id", request.ID),
		logger.String("client_id", client.ID),
		logger.String("response_type", request.ResponseType),
		logger.String("scope", scope),
	)
	return request, &ConsentView{Client: client.DisplayName, Scope: models.SplitScope(scope)}, nil
}

func (s *authorizer) Finalize(ctx context.Context, id string, decision Decision) (string, *models.AuthRequest, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err == errors.ErrAuthRequestNotFound {
		return "", nil, err
	}
	if err != nil {
		s.log.Error(ctx, "authorization request lookup failed", err, logger.String("request_id", id))
		return "", nil, errors.ErrServerError("").WithCause(err)
	}

	// A request that already reached a terminal state keeps its stored
	// outcome; the repeat caller just gets the same redirect again.
	if !request.IsPending() {
		location, err := s.outcomeLocation(request)
		return location, request, err
	}

	if !decision.Granted {
		return s.finalizeDeny(ctx, request)
	}

	switch constants.ResponseType(request.ResponseType) {
	case constants.ResponseTypeCode:
		return s.finalizeCode(ctx, request, decision.Resource)
	case constants.ResponseTypeToken:
		return s.finalizeToken(ctx, request, decision.Resource)
	default:
		// Unreachable: Begin only persists enabled response types.
		return "", nil, errors.ErrServerError("stored request carries unknown response type")
	}
}

func (s *authorizer) finalizeDeny(ctx context.Context, request *models.AuthRequest) (string, *models.AuthRequest, error) {
	decided, err := s.requests.Deny(ctx, request.ID)
	if err != nil {
		return s.lostFinalization(ctx, request.ID, err)
	}

	publishAudit(ctx, s.audit, s.log, models.NewAuditEvent(constants.EventAuthorizationDenied).
		WithClient(request.ClientID).
		WithScope(request.Scope))
	s.log.Info(ctx, "authorization denied",
		logger.String("request_id", request.ID),
		logger.String("client_id", request.ClientID))
	location, err := s.outcomeLocation(decided)
	return location, decided, err
}

func (s *authorizer) finalizeCode(ctx context.Context, request *models.AuthRequest, resource string) (string, *models.AuthRequest, error) {
	// The code is minted up front; persisting it and flipping the request
	// out of pending happen in one store transition, so a lost race leaves
	// no orphaned grant behind.
	grant, err := models.NewAccessGrant(request.ClientID, resource, request.Scope, request.RedirectURI, s.opts.RequestTTL)
	if err != nil {
		return "", nil, errors.ErrServerError("").WithCause(err)
	}

	decided, err := s.requests.GrantCode(ctx, request.ID, grant)
	if err != nil {
		return s.lostFinalization(ctx, request.ID, err)
	}

	publishAudit(ctx, s.audit, s.log, models.NewAuditEvent(constants.EventAuthorizationGranted).
		WithClient(request.ClientID).
		WithResource(resource).
		WithScope(request.Scope))
	s.log.Info(ctx, "authorization granted",
		logger.String("request_id", request.ID),
		logger.String("client_id", request.ClientID),
		logger.String("response_type", request.ResponseType))
	location, err := s.outcomeLocation(decided)
	return location, decided, err
}

func (s *authorizer) finalizeToken(ctx context.Context, request *models.AuthRequest, resource string) (string, *models.AuthRequest, error) {
	// Token issuance is idempotent per (resource, client, scope), so issuing
	// before claiming the request is safe: if the claim is lost, the token
	// simply remains the live one for that triple.
	token, err := s.tokens.IssueToken(ctx, resource, request.ClientID, request.Scope)
	if err != nil {
		return "", nil, err
	}

	decided, err := s.requests.GrantToken(ctx, request.ID, token.Token)
	if err != nil {
		return s.lostFinalization(ctx, request.ID, err)
	}

	publishAudit(ctx, s.audit, s.log, models.NewAuditEvent(constants.EventAuthorizationGranted).
		WithClient(request.ClientID).
		WithResource(resource).
		WithScope(request.Scope))
	s.log.Info(ctx, "authorization granted",
		logger.String("request_id", request.ID),
		logger.String("client_id", request.ClientID),
		logger.String("response_type", request.ResponseType))
	location, err := s.outcomeLocation(decided)
	return location, decided, err
}

// lostFinalization handles a finalizer that did not take effect: a racing
// decision already landed, or the request expired underneath the caller.
func (s *authorizer) lostFinalization(ctx context.Context, id string, err error) (string, *models.AuthRequest, error) {
	switch err {
	case errors.ErrRequestDecided:
		request, reloadErr := s.requests.FindByID(ctx, id)
		if reloadErr != nil {
			if reloadErr == errors.ErrAuthRequestNotFound {
				return "", nil, reloadErr
			}
			return "", nil, errors.ErrServerError("").WithCause(reloadErr)
		}
		location, locErr := s.outcomeLocation(request)
		return location, request, locErr
	case errors.ErrAuthRequestNotFound:
		return "", nil, err
	default:
		s.log.Error(ctx, "authorization finalization failed", err, logger.String("request_id", id))
		return "", nil, errors.ErrServerError("").WithCause(err)
	}
}

// outcomeLocation renders a terminal request as the redirect that delivers
// its outcome: code and deny outcomes travel in the query string, implicit
// tokens in the fragment. Empty scope and state are omitted.
func (s *authorizer) outcomeLocation(request *models.AuthRequest) (string, error) {
	uri, err := url.Parse(request.RedirectURI)
	if err != nil {
		return "", errors.ErrServerError("stored redirect URI failed to parse").WithCause(err)
	}

	if request.IsDenied() {
		params := url.Values{}
		params.Set(constants.ParamError, string(constants.ErrCodeAccessDenied))
		if request.State != "" {
			params.Set(constants.ParamState, request.State)
		}
		return appendQuery(uri, params), nil
	}

	params := url.Values{}
	if request.Scope != "" {
		params.Set(constants.ParamScope, request.Scope)
	}
	if request.State != "" {
		params.Set(constants.ParamState, request.State)
	}
	switch {
	case request.GrantCode != "":
		params.Set(constants.ParamCode, request.GrantCode)
		return appendQuery(uri, params), nil
	case request.AccessToken != "":
		params.Set(constants.ParamAccessToken, request.AccessToken)
		return appendFragment(uri, params), nil
	default:
		return "", errors.ErrServerError("granted request carries no artifact")
	}
}
