package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cawinkelmann/rack-oauth2-server/internal/application/service"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/memory"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

const (
	testCallback = "http://uberclient.dot/callback"
	testScope    = "read write"
	testState    = "bring this back"
)

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// providerFixture runs the dispatcher in front of a small host application:
// a consent page, a decision endpoint, and a few protected API routes.
type providerFixture struct {
	engine *gin.Engine
	stores repository.Stores
	client *models.Client
}

func newProviderFixture(t *testing.T, opts service.Options, cfg Config) *providerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	stores := memory.New(constants.DefaultRequestTTL)

	client, err := models.NewClient("UberClient", "http://uberclient.dot", "", testCallback)
	require.NoError(t, err)
	require.NoError(t, stores.Clients.Create(context.Background(), client))

	if opts.Scopes == nil {
		opts.Scopes = []string{"read", "write"}
	}

	resolver := service.NewClientResolver(stores.Clients, log)
	tokens := domainservice.NewTokenService(stores.Grants, stores.Tokens, 0, log)
	provider := NewProvider(
		cfg,
		service.NewAuthorizer(stores.Requests, resolver, tokens, nil, opts, log),
		service.NewTokenIssuer(resolver, tokens, nil, opts, log),
		service.NewResourceGate(tokens, nil, log),
		nil,
		log,
	)

	engine := gin.New()
	engine.Use(RequestID())
	engine.Use(provider.Handler())

	// Consent page: echoes what the dispatcher attached for the host app.
	engine.GET("/oauth/authorize", func(c *gin.Context) {
		view := c.MustGet(constants.CtxConsent).(*service.ConsentView)
		c.JSON(http.StatusOK, gin.H{
			"authorization": c.GetString(constants.CtxAuthorization),
			"client":        view.Client,
			"scope":         view.Scope,
		})
	})

	// Decision endpoint: a granting response names the end user in the
	// body, a denying response is a 401. Both carry the sentinel.
	engine.POST("/oauth/grant", func(c *gin.Context) {
		c.Header(constants.CtxAuthorization, c.PostForm("authorization"))
		if c.PostForm("decide") == "deny" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, "Batman")
	})

	engine.GET("/public", func(c *gin.Context) {
		c.Header("X-Flavor", "pistachio")
		c.String(http.StatusOK, "open")
	})

	engine.GET("/api/profile", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"resource": c.GetString(constants.CtxResource),
			"token":    c.GetString(constants.CtxAccessToken),
		})
	})

	engine.GET("/api/naked", func(c *gin.Context) {
		c.Header(constants.HeaderNoAccess, "true")
		c.Status(http.StatusForbidden)
	})

	engine.GET("/api/admin", func(c *gin.Context) {
		c.Header(constants.HeaderNoScope, "admin")
		c.Status(http.StatusForbidden)
	})

	engine.GET("/api/reports", func(c *gin.Context) {
		c.Writer.Header().Add(constants.HeaderNoScope, "admin")
		c.Writer.Header().Add(constants.HeaderNoScope, "audit read")
		c.Status(http.StatusForbidden)
	})

	engine.GET("/api/teapot", func(c *gin.Context) {
		c.String(http.StatusForbidden, "no tea")
	})

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return &providerFixture{engine: engine, stores: stores, client: client}
}

func (f *providerFixture) registerClient(t *testing.T, name, redirectURI string) *models.Client {
	t.Helper()
	client, err := models.NewClient(name, "http://"+strings.ToLower(name)+".dot", "", redirectURI)
	require.NoError(t, err)
	require.NoError(t, f.stores.Clients.Create(context.Background(), client))
	return client
}

// authorize sends a GET to the authorization endpoint with defaults that
// match the registered test client; overrides replace individual parameters
// and an empty override drops the parameter.
func (f *providerFixture) authorize(t *testing.T, overrides map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	query := url.Values{}
	query.Set(constants.ParamResponseType, "code")
	query.Set(constants.ParamClientID, f.client.ID)
	query.Set(constants.ParamRedirectURI, testCallback)
	query.Set(constants.ParamScope, testScope)
	query.Set(constants.ParamState, testState)
	for key, value := range overrides {
		if value == "" {
			query.Del(key)
		} else {
			query.Set(key, value)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+query.Encode(), nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

type consentBody struct {
	Authorization string   `json:"authorization"`
	Client        string   `json:"client"`
	Scope         []string `json:"scope"`
}

func (f *providerFixture) consent(t *testing.T, overrides map[string]string) consentBody {
	t.Helper()
	w := f.authorize(t, overrides)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body consentBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Authorization)
	return body
}

func (f *providerFixture) decide(t *testing.T, id, verdict string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"authorization": {id}, "decide": {verdict}}
	req := httptest.NewRequest(http.MethodPost, "/oauth/grant", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *providerFixture) postToken(t *testing.T, form url.Values, basicID, basicSecret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, constants.DefaultTokenPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicID != "" {
		req.SetBasicAuth(basicID, basicSecret)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *providerFixture) get(t *testing.T, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for name, values := range header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

// mintCode runs the full code flow up to the callback redirect and returns
// the authorization code.
func (f *providerFixture) mintCode(t *testing.T) string {
	t.Helper()
	consent := f.consent(t, nil)
	w := f.decide(t, consent.Authorization, "grant")
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := location.Query().Get(constants.ParamCode)
	require.Regexp(t, tokenPattern, code)
	return code
}

// mintToken exchanges a fresh code for an access token.
func (f *providerFixture) mintToken(t *testing.T) string {
	t.Helper()
	w := f.postToken(t, url.Values{
		constants.ParamGrantType:   {string(constants.GrantTypeAuthorizationCode)},
		constants.ParamCode:        {f.mintCode(t)},
		constants.ParamRedirectURI: {testCallback},
	}, f.client.ID, f.client.Secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Regexp(t, tokenPattern, body.AccessToken)
	return body.AccessToken
}

func parseLocation(t *testing.T, w *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return location
}

// ================================================================================
// Authorization Endpoint
// ================================================================================

func TestAuthorizeCodeFlow(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	consent := f.consent(t, nil)
	assert.Equal(t, "UberClient", consent.Client)
	assert.Equal(t, []string{"read", "write"}, consent.Scope)

	w := f.decide(t, consent.Authorization, "grant")
	location := parseLocation(t, w)
	assert.Equal(t, "uberclient.dot", location.Host)
	assert.Equal(t, "/callback", location.Path)
	assert.Empty(t, location.Fragment)

	query := location.Query()
	assert.Regexp(t, tokenPattern, query.Get(constants.ParamCode))
	assert.Equal(t, testScope, query.Get(constants.ParamScope))
	assert.Equal(t, testState, query.Get(constants.ParamState))
	assert.False(t, query.Has(constants.ParamError))

	// The sentinel stays between the host app and the dispatcher.
	assert.Empty(t, w.Header().Values(constants.CtxAuthorization))
	// The decision response body is replaced by the redirect.
	assert.NotContains(t, w.Body.String(), "Batman")
}

func TestAuthorizeTokenFlow(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	consent := f.consent(t, map[string]string{constants.ParamResponseType: "token"})
	w := f.decide(t, consent.Authorization, "grant")
	location := parseLocation(t, w)

	// The artifact travels in the fragment, never the query.
	assert.Empty(t, location.RawQuery)
	raw, fragment, found := strings.Cut(w.Header().Get("Location"), "#")
	require.True(t, found, "expected a fragment on %q", raw)

	params, err := url.ParseQuery(fragment)
	require.NoError(t, err)
	assert.Regexp(t, tokenPattern, params.Get(constants.ParamAccessToken))
	assert.Equal(t, testScope, params.Get(constants.ParamScope))
	assert.Equal(t, testState, params.Get(constants.ParamState))
}

func TestAuthorizeRedirectMismatch(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.authorize(t, map[string]string{constants.ParamRedirectURI: "http://uberclient.dot/oz"})
	location := parseLocation(t, w)
	assert.Equal(t, "/oz", location.Path)

	query := location.Query()
	assert.Equal(t, string(constants.ErrCodeRedirectURIMismatch), query.Get(constants.ParamError))
	assert.Equal(t, testState, query.Get(constants.ParamState))
}

func TestAuthorizeUnregisteredClientRedirect(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})
	free := f.registerClient(t, "FreeClient", "")

	consent := f.consent(t, map[string]string{
		constants.ParamClientID:    free.ID,
		constants.ParamRedirectURI: "http://uberclient.dot/oz",
	})
	assert.Equal(t, "FreeClient", consent.Client)
}

func TestAuthorizeMalformedRedirect(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.authorize(t, map[string]string{constants.ParamRedirectURI: "http:not-valid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestAuthorizeInvalidScope(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.authorize(t, map[string]string{constants.ParamScope: "read write math"})
	query := parseLocation(t, w).Query()
	assert.Equal(t, string(constants.ErrCodeInvalidScope), query.Get(constants.ParamError))
	assert.Equal(t, testState, query.Get(constants.ParamState))
}

func TestAuthorizeUnknownClient(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.authorize(t, map[string]string{constants.ParamClientID: "nobody"})
	query := parseLocation(t, w).Query()
	assert.Equal(t, string(constants.ErrCodeInvalidClient), query.Get(constants.ParamError))
	assert.Equal(t, testState, query.Get(constants.ParamState))
}

func TestAuthorizeDeny(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	consent := f.consent(t, nil)
	w := f.decide(t, consent.Authorization, "deny")
	query := parseLocation(t, w).Query()

	assert.Equal(t, string(constants.ErrCodeAccessDenied), query.Get(constants.ParamError))
	assert.Equal(t, testState, query.Get(constants.ParamState))
	assert.False(t, query.Has(constants.ParamCode))
	assert.False(t, query.Has(constants.ParamAccessToken))
	assert.False(t, query.Has(constants.ParamErrorDescription))
}

func TestDecisionForUnknownRequest(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.decide(t, "never-created", "grant")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestRepeatedDecisionKeepsOutcome(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	consent := f.consent(t, nil)
	granted := f.decide(t, consent.Authorization, "grant")
	require.Equal(t, http.StatusFound, granted.Code)

	denied := f.decide(t, consent.Authorization, "deny")
	require.Equal(t, http.StatusFound, denied.Code)
	assert.Equal(t, granted.Header().Get("Location"), denied.Header().Get("Location"))
}

// ================================================================================
// Token Endpoint
// ================================================================================

func TestTokenEndpointPostOnly(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	req := httptest.NewRequest(http.MethodGet, constants.DefaultTokenPath, nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, `"POST only"`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestTokenEndpointCodeExchange(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})
	code := f.mintCode(t)

	form := url.Values{
		constants.ParamGrantType:   {string(constants.GrantTypeAuthorizationCode)},
		constants.ParamCode:        {code},
		constants.ParamRedirectURI: {testCallback},
	}
	w := f.postToken(t, form, f.client.ID, f.client.Secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, constants.CacheControlNoStore, w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var body struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Regexp(t, tokenPattern, body.AccessToken)
	assert.Equal(t, testScope, body.Scope)

	// The code is one-shot.
	replay := f.postToken(t, form, f.client.ID, f.client.Secret)
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Contains(t, replay.Body.String(), string(constants.ErrCodeInvalidGrant))
	assert.Equal(t, constants.CacheControlNoStore, replay.Header().Get("Cache-Control"))
}

func TestTokenEndpointFormCredentials(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.postToken(t, url.Values{
		constants.ParamGrantType:    {string(constants.GrantTypeAuthorizationCode)},
		constants.ParamCode:         {f.mintCode(t)},
		constants.ParamRedirectURI:  {testCallback},
		constants.ParamClientID:     {f.client.ID},
		constants.ParamClientSecret: {f.client.Secret},
	}, "", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTokenEndpointBasicAuthRejected(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.postToken(t, url.Values{
		constants.ParamGrantType: {string(constants.GrantTypeAuthorizationCode)},
		constants.ParamCode:      {"0123456789abcdef0123456789abcdef"},
	}, f.client.ID, "wrong secret")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	challenge := w.Header().Get(constants.HeaderWWWAuthenticate)
	assert.Contains(t, challenge, `OAuth realm="example.com"`)
	assert.Contains(t, challenge, `error="invalid_client"`)
	assert.Contains(t, w.Body.String(), string(constants.ErrCodeInvalidClient))
	assert.Equal(t, constants.CacheControlNoStore, w.Header().Get("Cache-Control"))
}

func TestTokenEndpointFormAuthRejected(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.postToken(t, url.Values{
		constants.ParamGrantType:    {string(constants.GrantTypeAuthorizationCode)},
		constants.ParamCode:         {"0123456789abcdef0123456789abcdef"},
		constants.ParamClientID:     {f.client.ID},
		constants.ParamClientSecret: {"wrong secret"},
	}, "", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get(constants.HeaderWWWAuthenticate))
	assert.Contains(t, w.Body.String(), string(constants.ErrCodeInvalidClient))
}

func TestTokenEndpointUnknownGrantType(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.postToken(t, url.Values{
		constants.ParamGrantType: {"refresh_token"},
	}, f.client.ID, f.client.Secret)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(constants.ErrCodeUnsupportedGrantType))
}

func TestTokenEndpointPasswordGrant(t *testing.T) {
	opts := service.Options{
		Authenticator: func(_ context.Context, username, password string) (string, error) {
			if username == "ali.baba" && password == "open sesame" {
				return "Ali Baba", nil
			}
			return "", nil
		},
	}
	f := newProviderFixture(t, opts, Config{})

	w := f.postToken(t, url.Values{
		constants.ParamGrantType: {string(constants.GrantTypePassword)},
		constants.ParamUsername:  {"ali.baba"},
		constants.ParamPassword:  {"open sesame"},
		constants.ParamScope:     {"read"},
	}, f.client.ID, f.client.Secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Regexp(t, tokenPattern, body.AccessToken)
	assert.Equal(t, "read", body.Scope)

	rejected := f.postToken(t, url.Values{
		constants.ParamGrantType: {string(constants.GrantTypePassword)},
		constants.ParamUsername:  {"ali.baba"},
		constants.ParamPassword:  {"wrong"},
	}, f.client.ID, f.client.Secret)
	assert.Equal(t, http.StatusBadRequest, rejected.Code)
	assert.Contains(t, rejected.Body.String(), string(constants.ErrCodeInvalidGrant))
}

func TestTokenEndpointScopeOmittedWhenEmpty(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	consent := f.consent(t, map[string]string{constants.ParamScope: ""})
	w := f.decide(t, consent.Authorization, "grant")
	code := parseLocation(t, w).Query().Get(constants.ParamCode)

	exchanged := f.postToken(t, url.Values{
		constants.ParamGrantType:   {string(constants.GrantTypeAuthorizationCode)},
		constants.ParamCode:        {code},
		constants.ParamRedirectURI: {testCallback},
	}, f.client.ID, f.client.Secret)
	require.Equal(t, http.StatusOK, exchanged.Code, exchanged.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(exchanged.Body.Bytes(), &body))
	assert.Contains(t, body, "access_token")
	assert.NotContains(t, body, "scope")
}

// ================================================================================
// Resource Gate
// ================================================================================

func TestResourceBearerCarriers(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})
	token := f.mintToken(t)

	cases := []struct {
		name   string
		target string
		header http.Header
	}{
		{"oauth scheme", "/api/profile", http.Header{constants.HeaderAuthorization: {"OAuth " + token}}},
		{"bearer scheme", "/api/profile", http.Header{constants.HeaderAuthorization: {"Bearer " + token}}},
		{"lowercase scheme", "/api/profile", http.Header{constants.HeaderAuthorization: {"bearer " + token}}},
		{"proxy header", "/api/profile", http.Header{constants.HeaderProxyAuthorization: {"OAuth " + token}}},
		{"forwarded header", "/api/profile", http.Header{constants.HeaderForwardedAuthorization: {"OAuth " + token}}},
		{"query parameter", "/api/profile?oauth_token=" + token, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.get(t, tc.target, tc.header)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var body struct {
				Resource string `json:"resource"`
				Token    string `json:"token"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "Batman", body.Resource)
			assert.Equal(t, token, body.Token)
		})
	}
}

func TestResourceFormBodyToken(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})
	f.engine.POST("/api/notes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"resource": c.GetString(constants.CtxResource),
			"text":     c.PostForm("text"),
		})
	})
	token := f.mintToken(t)

	form := url.Values{"oauth_token": {token}, "text": {"remember the milk"}}
	req := httptest.NewRequest(http.MethodPost, "/api/notes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Resource string `json:"resource"`
		Text     string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Batman", body.Resource)
	// The form stays readable for the host handler after token extraction.
	assert.Equal(t, "remember the milk", body.Text)
}

func TestResourcePublicPassthrough(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.get(t, "/public", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "open", w.Body.String())
	assert.Equal(t, "pistachio", w.Header().Get("X-Flavor"))
	assert.Empty(t, w.Header().Get(constants.HeaderWWWAuthenticate))
}

func TestResourceNoAccessSentinel(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.get(t, "/api/naked", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `OAuth realm="example.com"`, w.Header().Get(constants.HeaderWWWAuthenticate))
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Values(constants.HeaderNoAccess))
}

func TestResourceBadToken(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})

	w := f.get(t, "/api/profile", http.Header{constants.HeaderAuthorization: {"OAuth deadbeef"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	challenge := w.Header().Get(constants.HeaderWWWAuthenticate)
	assert.Contains(t, challenge, `error="invalid_token"`)
	assert.Contains(t, challenge, `realm="example.com"`)
}

func TestResourceRevokedToken(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})
	token := f.mintToken(t)
	require.NoError(t, f.stores.Tokens.Revoke(context.Background(), token))

	w := f.get(t, "/api/profile", http.Header{constants.HeaderAuthorization: {"OAuth " + token}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get(constants.HeaderWWWAuthenticate), `error="invalid_token"`)
}

func TestResourceInsufficientScope(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})
	token := f.mintToken(t)

	w := f.get(t, "/api/admin", http.Header{constants.HeaderAuthorization: {"OAuth " + token}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	challenge := w.Header().Get(constants.HeaderWWWAuthenticate)
	assert.Contains(t, challenge, `error="insufficient_scope"`)
	assert.Contains(t, challenge, `scope="admin"`)
	assert.Empty(t, w.Header().Values(constants.HeaderNoScope))
}

func TestResourceInsufficientScopeJoinsValues(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})
	token := f.mintToken(t)

	w := f.get(t, "/api/reports", http.Header{constants.HeaderAuthorization: {"OAuth " + token}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get(constants.HeaderWWWAuthenticate), `scope="admin audit read"`)
}

func TestResourceForbiddenWithoutSentinelPassesThrough(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{})
	token := f.mintToken(t)

	w := f.get(t, "/api/teapot", http.Header{constants.HeaderAuthorization: {"OAuth " + token}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "no tea", w.Body.String())
	assert.Empty(t, w.Header().Get(constants.HeaderWWWAuthenticate))
}

func TestConfiguredRealm(t *testing.T) {
	f := newProviderFixture(t, service.Options{}, Config{Realm: "wonderland"})

	w := f.get(t, "/api/naked", nil)
	assert.Equal(t, `OAuth realm="wonderland"`, w.Header().Get(constants.HeaderWWWAuthenticate))
}

func TestChallengeValue(t *testing.T) {
	assert.Equal(t, `OAuth realm="example.com"`, challengeValue("example.com", nil, ""))
	assert.Equal(t,
		`OAuth realm="example.com", error="expired_token", error_description="The access token has expired."`,
		challengeValue("example.com", errors.ErrExpiredToken(), ""))
	assert.Equal(t,
		`OAuth realm="x", error="insufficient_scope", error_description="The request requires higher privileges than provided by the access token.", scope="admin"`,
		challengeValue("x", errors.ErrInsufficientScope(), "admin"))
}
