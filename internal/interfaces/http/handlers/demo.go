package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cawinkelmann/rack-oauth2-server/internal/application/service"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// consentPage is the demo consent dialogue. The authorization id round-trips
// through the form; the provider middleware picks the decision up from the
// sentinel header on the response.
var consentPage = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize {{.Client}}</title></head>
<body>
<h1>{{.Client}} wants access</h1>
{{if .Scope}}
<p>Requested permissions:</p>
<ul>
{{range .Scope}}<li>{{.}}</li>
{{end}}</ul>
{{else}}
<p>No particular permissions requested.</p>
{{end}}
<form method="POST" action="/oauth/grant">
<input type="hidden" name="authorization" value="{{.Authorization}}">
<label>Username <input type="text" name="username"></label>
<label>Password <input type="password" name="password"></label>
<button type="submit" name="decision" value="grant">Grant</button>
<button type="submit" name="decision" value="deny">Deny</button>
</form>
</body>
</html>
`))

// DemoHandler is a small host application for trying the provider out: a
// consent page, the matching decision endpoint, and two protected sample
// routes. Enabled by demo.enabled.
type DemoHandler struct {
	authenticate domainservice.Authenticator
	tokens       repository.TokenRepository
	log          logger.Logger
}

// NewDemoHandler wires the demo host application. The authenticator decides
// which end users exist; the token repository backs the sample API's scope
// checks.
func NewDemoHandler(authenticate domainservice.Authenticator, tokens repository.TokenRepository, log logger.Logger) *DemoHandler {
	return &DemoHandler{
		authenticate: authenticate,
		tokens:       tokens,
		log:          log.WithComponent("demo"),
	}
}

// Consent renders the consent dialogue from the view the provider attached.
func (h *DemoHandler) Consent(c *gin.Context) {
	value, ok := c.Get(constants.CtxConsent)
	if !ok {
		c.String(http.StatusNotFound, "no authorization in flight")
		return
	}
	view := value.(*service.ConsentView)

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := consentPage.Execute(c.Writer, gin.H{
		"Client":        view.Client,
		"Scope":         view.Scope,
		"Authorization": c.GetString(constants.CtxAuthorization),
	}); err != nil {
		h.log.Error(c.Request.Context(), "consent page render failed", err)
	}
}

// Decide receives the consent form. A deny carries the sentinel with a 401;
// a grant authenticates the end user first and names them in the body. A
// failed login leaves the authorization pending so the user can retry.
func (h *DemoHandler) Decide(c *gin.Context) {
	id := c.PostForm("authorization")
	if id == "" {
		c.String(http.StatusBadRequest, "missing authorization")
		return
	}

	if c.PostForm("decision") == "deny" {
		c.Header(constants.CtxAuthorization, id)
		c.Status(http.StatusUnauthorized)
		return
	}

	resource, err := h.authenticate(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		h.log.Error(c.Request.Context(), "demo authentication failed", err)
		c.String(http.StatusInternalServerError, "authentication unavailable")
		return
	}
	if resource == "" {
		c.String(http.StatusForbidden, "wrong username or password")
		return
	}

	c.Header(constants.CtxAuthorization, id)
	c.String(http.StatusOK, resource)
}

// Profile echoes the verified identity and the token's scope.
func (h *DemoHandler) Profile(c *gin.Context) {
	token, err := h.tokens.FindByToken(c.Request.Context(), c.GetString(constants.CtxAccessToken))
	if err != nil {
		c.String(http.StatusInternalServerError, "token lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"resource": c.GetString(constants.CtxResource),
		"scope":    models.SplitScope(token.Scope),
	})
}

// Admin requires the admin scope and answers with the no-scope sentinel
// otherwise.
func (h *DemoHandler) Admin(c *gin.Context) {
	token, err := h.tokens.FindByToken(c.Request.Context(), c.GetString(constants.CtxAccessToken))
	if err != nil || !models.ScopeContains(token.Scope, "admin") {
		c.Header(constants.HeaderNoScope, "admin")
		c.Status(http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"resource": c.GetString(constants.CtxResource),
		"admin":    true,
	})
}
