package middleware

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cawinkelmann/rack-oauth2-server/internal/application/service"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/monitoring"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

const headerCacheControl = "Cache-Control"

// Config carries the dispatcher's mount points and challenge realm.
type Config struct {
	// AuthorizePath is the authorization endpoint. Defaults to
	// constants.DefaultAuthorizePath.
	AuthorizePath string

	// TokenPath is the token endpoint. Defaults to
	// constants.DefaultTokenPath.
	TokenPath string

	// Realm names the protection space in WWW-Authenticate challenges.
	// Empty falls back to the request host.
	Realm string
}

// Provider dispatches every request of the host application: the two
// protocol endpoints are handled here, everything else passes through the
// resource gate. It is the only piece that talks HTTP; protocol decisions
// live in the application services.
type Provider struct {
	authorizePath string
	tokenPath     string
	realm         string

	authorizer service.Authorizer
	issuer     service.TokenIssuer
	gate       service.ResourceGate
	metrics    *monitoring.Metrics
	log        logger.Logger
}

// NewProvider wires the dispatcher. metrics may be nil.
func NewProvider(
	cfg Config,
	authorizer service.Authorizer,
	issuer service.TokenIssuer,
	gate service.ResourceGate,
	metrics *monitoring.Metrics,
	log logger.Logger,
) *Provider {
	if cfg.AuthorizePath == "" {
		cfg.AuthorizePath = constants.DefaultAuthorizePath
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = constants.DefaultTokenPath
	}
	return &Provider{
		authorizePath: cfg.AuthorizePath,
		tokenPath:     cfg.TokenPath,
		realm:         cfg.Realm,
		authorizer:    authorizer,
		issuer:        issuer,
		gate:          gate,
		metrics:       metrics,
		log:           log.WithComponent("provider"),
	}
}

// Handler returns the dispatcher middleware. Install it with Use ahead of
// every host-application route; it claims the authorize and token paths and
// gates the rest.
func (p *Provider) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case p.authorizePath:
			p.authorize(c)
		case p.tokenPath:
			p.token(c)
		default:
			p.resource(c)
		}
	}
}

// ================================================================================
// Authorization Endpoint
// ================================================================================

// authorize validates the request, hands the pending authorization to the
// host application for the consent dialogue, and finalizes it if the
// buffered response carries a decision.
func (p *Provider) authorize(c *gin.Context) {
	// Parameters are read from the query string regardless of method; the
	// endpoint is reached by user-agent redirects.
	query := c.Request.URL.Query()
	request, consent, err := p.authorizer.Begin(c.Request.Context(), service.AuthorizeParams{
		ResponseType: query.Get(constants.ParamResponseType),
		ClientID:     query.Get(constants.ParamClientID),
		RedirectURI:  query.Get(constants.ParamRedirectURI),
		Scope:        query.Get(constants.ParamScope),
		State:        query.Get(constants.ParamState),
	})
	if err != nil {
		p.authorizeFailure(c, err)
		return
	}

	c.Set(constants.CtxAuthorization, request.ID)
	c.Set(constants.CtxConsent, consent)

	capture := p.delegate(c)
	if id := capture.sentinel(constants.CtxAuthorization); id != "" {
		p.finalize(c, id, capture)
		return
	}
	capture.flush()
}

// authorizeFailure surfaces a Begin error: through the client's callback
// when the redirect URI validated, directly otherwise.
func (p *Provider) authorizeFailure(c *gin.Context, err error) {
	var redirect *service.RedirectError
	if stderrors.As(err, &redirect) {
		c.Redirect(http.StatusFound, redirect.Location())
		c.Abort()
		return
	}

	oerr, ok := errors.AsOAuthError(err)
	if !ok {
		oerr = errors.ErrServerError("")
	}
	status := http.StatusBadRequest
	if oerr.Code() == constants.ErrCodeServerError {
		status = http.StatusInternalServerError
	}
	p.plain(c, status, oerr.Description())
}

// finalize applies the host application's decision from a buffered response
// carrying the oauth.authorization sentinel: 401 denies, anything else
// grants, and the body names the resource the end user authenticated as.
// The buffered response itself is discarded in favor of the redirect.
func (p *Provider) finalize(c *gin.Context, id string, capture *captureWriter) {
	decision := service.Decision{
		Granted:  capture.Status() != http.StatusUnauthorized,
		Resource: strings.TrimSpace(capture.body.String()),
	}

	location, decided, err := p.authorizer.Finalize(c.Request.Context(), id, decision)
	if err != nil {
		if err == errors.ErrAuthRequestNotFound {
			p.log.Warn(c.Request.Context(), "decision names an unknown or expired authorization request",
				logger.String("request_id", id))
			p.plain(c, http.StatusBadRequest, "authorization request unknown or expired")
			return
		}
		p.plain(c, http.StatusInternalServerError, "authorization failed")
		return
	}

	p.metrics.RecordAuthorization(decided.ResponseType, string(decided.Status))
	c.Redirect(http.StatusFound, location)
	c.Abort()
}

// ================================================================================
// Token Endpoint
// ================================================================================

// tokenResponse is the token-endpoint success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope,omitempty"`
}

// token handles the access-token endpoint in full; the host application
// never sees these requests.
func (p *Provider) token(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, "POST only")
		c.Abort()
		return
	}

	auth := tokenClientAuth(c)
	grantType := c.Request.FormValue(constants.ParamGrantType)
	token, err := p.issuer.Issue(c.Request.Context(), service.TokenRequest{
		GrantType:   grantType,
		Code:        c.Request.FormValue(constants.ParamCode),
		RedirectURI: c.Request.FormValue(constants.ParamRedirectURI),
		Username:    c.Request.FormValue(constants.ParamUsername),
		Password:    c.Request.FormValue(constants.ParamPassword),
		Scope:       c.Request.FormValue(constants.ParamScope),
		Client:      auth,
		RemoteAddr:  c.ClientIP(),
	})
	if err != nil {
		p.tokenFailure(c, auth, err)
		return
	}

	p.metrics.RecordTokenIssued(grantType)
	c.Header(headerCacheControl, constants.CacheControlNoStore)
	c.JSON(http.StatusOK, tokenResponse{AccessToken: token.Token, Scope: token.Scope})
	c.Abort()
}

// tokenFailure renders a token-endpoint error as JSON. Clients that
// authenticated with HTTP Basic get a 401 challenge on bad credentials;
// everything else is a 400, internal failures a 500.
func (p *Provider) tokenFailure(c *gin.Context, auth service.ClientAuth, err error) {
	oerr, ok := errors.AsOAuthError(err)
	if !ok {
		oerr = errors.ErrServerError("")
	}

	c.Header(headerCacheControl, constants.CacheControlNoStore)
	switch {
	case oerr.Code() == constants.ErrCodeInvalidClient && auth.FromBasic:
		c.Header(constants.HeaderWWWAuthenticate, challengeValue(p.realmFor(c), oerr, ""))
		c.JSON(http.StatusUnauthorized, errors.ToErrorResponse(oerr))
	case oerr.Code() == constants.ErrCodeServerError:
		c.JSON(http.StatusInternalServerError, errors.ToErrorResponse(oerr))
	default:
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(oerr))
	}
	c.Abort()
}

// ================================================================================
// Resource Gate
// ================================================================================

// resource guards every non-protocol path behind bearer-token validation
// and post-processes the host application's sentinel headers.
func (p *Provider) resource(c *gin.Context) {
	token, ok := bearerToken(c.Request)
	if !ok {
		p.resourceWithoutToken(c)
		return
	}

	access, err := p.gate.Authenticate(c.Request.Context(), token, c.ClientIP())
	if err != nil {
		p.metrics.RecordTokenValidation("rejected")
		p.resourceUnauthorized(c, err)
		return
	}
	p.metrics.RecordTokenValidation("ok")

	c.Set(constants.CtxAccessToken, access.Token)
	c.Set(constants.CtxResource, access.Resource)

	capture := p.delegate(c)
	if capture.Status() == http.StatusForbidden {
		if values := capture.sentinelValues(constants.HeaderNoScope); len(values) > 0 {
			// Each sentinel value may itself be a space-joined list.
			scope := strings.Join(values, " ")
			p.challenge(c, http.StatusForbidden, errors.ErrInsufficientScope(), scope)
			return
		}
	}
	capture.flush()
}

// resourceWithoutToken lets unauthenticated requests through to public
// routes, but honors the host application's sentinels: oauth.no_access asks
// for a bare challenge, oauth.authorization carries a consent decision.
func (p *Provider) resourceWithoutToken(c *gin.Context) {
	capture := p.delegate(c)
	if capture.sentinel(constants.HeaderNoAccess) != "" {
		p.challenge(c, http.StatusUnauthorized, nil, "")
		return
	}
	if id := capture.sentinel(constants.CtxAuthorization); id != "" {
		p.finalize(c, id, capture)
		return
	}
	capture.flush()
}

// resourceUnauthorized renders a bearer-token rejection. Internal failures
// collapse to a bare challenge so nothing leaks to unauthenticated callers.
func (p *Provider) resourceUnauthorized(c *gin.Context, err error) {
	oerr, ok := errors.AsOAuthError(err)
	if !ok || oerr.Code() == constants.ErrCodeServerError {
		p.challenge(c, http.StatusUnauthorized, nil, "")
		return
	}
	p.challenge(c, http.StatusUnauthorized, oerr, "")
}

// ================================================================================
// Shared Plumbing
// ================================================================================

// delegate runs the rest of the handler chain against a buffering writer.
// The real writer is restored before delegate returns, also on panic so the
// recovery middleware writes to the wire rather than into a dead buffer.
func (p *Provider) delegate(c *gin.Context) *captureWriter {
	capture := newCaptureWriter(c.Writer)
	c.Writer = capture
	defer func() { c.Writer = capture.ResponseWriter }()
	c.Next()
	return capture
}

// challenge writes a WWW-Authenticate response. A nil error produces the
// bare realm-only form.
func (p *Provider) challenge(c *gin.Context, status int, oerr errors.OAuthError, scope string) {
	c.Header(constants.HeaderWWWAuthenticate, challengeValue(p.realmFor(c), oerr, scope))
	if oerr != nil && oerr.Description() != "" {
		c.Data(status, "text/plain; charset=utf-8", []byte(oerr.Description()))
	} else {
		c.Status(status)
		c.Writer.WriteHeaderNow()
	}
	c.Abort()
}

func (p *Provider) plain(c *gin.Context, status int, message string) {
	c.Data(status, "text/plain; charset=utf-8", []byte(message))
	c.Abort()
}

func (p *Provider) realmFor(c *gin.Context) string {
	if p.realm != "" {
		return p.realm
	}
	return c.Request.Host
}
