package service

import (
	"context"
	stderrors "errors"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/memory"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

const (
	testRedirectURI = "http://uberclient.dot/callback"
	testScope       = "read write"
	testState       = "bring this back"
)

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// auditRecorder collects published events for assertions.
type auditRecorder struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (r *auditRecorder) LogEvent(_ context.Context, event *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *auditRecorder) types() []constants.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]constants.AuditEventType, len(r.events))
	for i, event := range r.events {
		types[i] = event.Type
	}
	return types
}

type protocolFixture struct {
	stores     repository.Stores
	client     *models.Client
	authorizer Authorizer
	issuer     TokenIssuer
	gate       ResourceGate
	audit      *auditRecorder
}

func newProtocolFixture(t *testing.T, opts Options) *protocolFixture {
	t.Helper()
	stores := memory.New(constants.DefaultRequestTTL)
	client, err := models.NewClient("UberClient", "http://uberclient.dot", "", testRedirectURI)
	require.NoError(t, err)
	require.NoError(t, stores.Clients.Create(context.Background(), client))

	recorder := &auditRecorder{}
	log := logger.NewNop()
	resolver := NewClientResolver(stores.Clients, log)
	tokens := domainservice.NewTokenService(stores.Grants, stores.Tokens, 0, log)
	return &protocolFixture{
		stores:     stores,
		client:     client,
		authorizer: NewAuthorizer(stores.Requests, resolver, tokens, recorder, opts, log),
		issuer:     NewTokenIssuer(resolver, tokens, recorder, opts, log),
		gate:       NewResourceGate(tokens, recorder, log),
		audit:      recorder,
	}
}

func (f *protocolFixture) begin(t *testing.T, responseType string) *models.AuthRequest {
	t.Helper()
	request, consent, err := f.authorizer.Begin(context.Background(), AuthorizeParams{
		ResponseType: responseType,
		RedirectURI:  testRedirectURI,
		Scope:        testScope,
		State:        testState,
		ClientID:     f.client.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, consent)
	return request
}

// assertRedirected asserts err carries the outcome through the redirect URI
// and returns the parsed query of the redirect location.
func assertRedirected(t *testing.T, err error, want constants.ErrorCode) url.Values {
	t.Helper()
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	oauthErr, ok := errors.AsOAuthError(err)
	require.True(t, ok)
	assert.Equal(t, want, oauthErr.Code())

	location, parseErr := url.Parse(redirect.Location())
	require.NoError(t, parseErr)
	assert.Equal(t, "uberclient.dot", location.Host)
	return location.Query()
}

func assertDirectCode(t *testing.T, err error, want constants.ErrorCode) {
	t.Helper()
	var redirect *RedirectError
	require.False(t, stderrors.As(err, &redirect), "error must not travel through the redirect")
	oauthErr, ok := errors.AsOAuthError(err)
	require.True(t, ok, "expected a protocol error, got %v", err)
	assert.Equal(t, want, oauthErr.Code())
}

func parseQueryLocation(t *testing.T, location string) url.Values {
	t.Helper()
	uri, err := url.Parse(location)
	require.NoError(t, err)
	assert.Empty(t, uri.Fragment)
	return uri.Query()
}

func parseFragmentLocation(t *testing.T, location string) url.Values {
	t.Helper()
	base, fragment, found := strings.Cut(location, "#")
	require.True(t, found, "expected a fragment in %q", location)
	uri, err := url.Parse(base)
	require.NoError(t, err)
	assert.Empty(t, uri.RawQuery)
	values, err := url.ParseQuery(fragment)
	require.NoError(t, err)
	return values
}

// ================================================================================
// Authorize endpoint: Begin
// ================================================================================

func TestBegin_RecordsPendingRequest(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})

	request, consent, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  testRedirectURI,
		Scope:        testScope,
		State:        testState,
		ClientID:     f.client.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, f.client.ID, request.ClientID)
	assert.Equal(t, testRedirectURI, request.RedirectURI)
	assert.Equal(t, testScope, request.Scope)
	assert.Equal(t, testState, request.State)
	assert.True(t, request.IsPending())

	assert.Equal(t, "UberClient", consent.Client)
	assert.Equal(t, []string{"read", "write"}, consent.Scope)

	stored, err := f.stores.Requests.FindByID(ctx, request.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPending())
}

func TestBegin_NormalizesScope(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})

	request, consent, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  testRedirectURI,
		Scope:        "write  read write",
		ClientID:     f.client.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "write read", request.Scope)
	assert.Equal(t, []string{"write", "read"}, consent.Scope)
}

func TestBegin_RejectsBadRedirectsOutright(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})

	t.Run("missing redirect URI", func(t *testing.T) {
		_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
			ResponseType: "code",
			ClientID:     f.client.ID,
		})
		assertDirectCode(t, err, constants.ErrCodeInvalidRequest)
	})

	t.Run("opaque redirect URI", func(t *testing.T) {
		_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
			ResponseType: "code",
			RedirectURI:  "http:not-valid",
			ClientID:     f.client.ID,
		})
		assertDirectCode(t, err, constants.ErrCodeInvalidRequest)
	})

	t.Run("fragment in redirect URI", func(t *testing.T) {
		_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
			ResponseType: "code",
			RedirectURI:  testRedirectURI + "#frag",
			ClientID:     f.client.ID,
		})
		assertDirectCode(t, err, constants.ErrCodeInvalidRequest)
	})
}

func TestBegin_UnknownClientErrorsThroughRedirect(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})

	_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  testRedirectURI,
		State:        testState,
		ClientID:     "nosuchclient",
	})
	query := assertRedirected(t, err, constants.ErrCodeInvalidClient)
	assert.Equal(t, "invalid_client", query.Get("error"))
	assert.Equal(t, testState, query.Get("state"))
}

func TestBegin_RevokedClientErrorsThroughRedirect(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	require.NoError(t, f.stores.Clients.Revoke(ctx, f.client.ID))

	_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  testRedirectURI,
		ClientID:     f.client.ID,
	})
	assertRedirected(t, err, constants.ErrCodeInvalidClient)
}

func TestBegin_RedirectMismatchAgainstRegistration(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})

	_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  "http://uberclient.dot/oz",
		State:        testState,
		ClientID:     f.client.ID,
	})
	query := assertRedirected(t, err, constants.ErrCodeRedirectURIMismatch)
	assert.Equal(t, "redirect_uri_mismatch", query.Get("error"))
}

func TestBegin_UnregisteredRedirectAcceptsAnyCallback(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	open, err := models.NewClient("OpenClient", "", "", "")
	require.NoError(t, err)
	require.NoError(t, f.stores.Clients.Create(ctx, open))

	request, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  "http://elsewhere.dot/return",
		ClientID:     open.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://elsewhere.dot/return", request.RedirectURI)
}

func TestBegin_ScopeOutsideAllowList(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{Scopes: []string{"read", "write"}})

	_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  testRedirectURI,
		Scope:        "read write math",
		State:        testState,
		ClientID:     f.client.ID,
	})
	query := assertRedirected(t, err, constants.ErrCodeInvalidScope)
	assert.Equal(t, "invalid_scope", query.Get("error"))
	assert.Equal(t, testState, query.Get("state"))
}

func TestBegin_ResponseTypeOutsideConfiguration(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown response type", func(t *testing.T) {
		f := newProtocolFixture(t, Options{})
		_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
			ResponseType: "bogus",
			RedirectURI:  testRedirectURI,
			ClientID:     f.client.ID,
		})
		assertRedirected(t, err, constants.ErrCodeUnsupportedResponseType)
	})

	t.Run("disabled response type", func(t *testing.T) {
		f := newProtocolFixture(t, Options{AuthorizationTypes: []string{"code"}})
		_, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
			ResponseType: "token",
			RedirectURI:  testRedirectURI,
			ClientID:     f.client.ID,
		})
		assertRedirected(t, err, constants.ErrCodeUnsupportedResponseType)
	})
}

// ================================================================================
// Authorize endpoint: Finalize
// ================================================================================

func TestFinalize_CodeGrantRedirectsWithCode(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	request := f.begin(t, "code")

	location, _, err := f.authorizer.Finalize(ctx, request.ID, Decision{Granted: true, Resource: "Batman"})
	require.NoError(t, err)

	query := parseQueryLocation(t, location)
	assert.Regexp(t, tokenPattern, query.Get("code"))
	assert.Equal(t, testScope, query.Get("scope"))
	assert.Equal(t, testState, query.Get("state"))
	assert.False(t, query.Has("error"))
	assert.True(t, strings.HasPrefix(location, "http://uberclient.dot/callback?"))

	grant, err := f.stores.Grants.FindByCode(ctx, query.Get("code"))
	require.NoError(t, err)
	assert.Equal(t, "Batman", grant.Resource)
	assert.Equal(t, f.client.ID, grant.ClientID)
	assert.Equal(t, testScope, grant.Scope)

	assert.Contains(t, f.audit.types(), constants.EventAuthorizationGranted)
}

func TestFinalize_TokenGrantRedirectsWithFragment(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	request := f.begin(t, "token")

	location, _, err := f.authorizer.Finalize(ctx, request.ID, Decision{Granted: true, Resource: "Batman"})
	require.NoError(t, err)

	fragment := parseFragmentLocation(t, location)
	value := fragment.Get("access_token")
	assert.Regexp(t, tokenPattern, value)
	assert.Equal(t, testScope, fragment.Get("scope"))
	assert.Equal(t, testState, fragment.Get("state"))

	token, err := f.stores.Tokens.FindByToken(ctx, value)
	require.NoError(t, err)
	assert.Equal(t, "Batman", token.Resource)
}

func TestFinalize_DenyRedirectsWithAccessDenied(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	request := f.begin(t, "code")

	location, _, err := f.authorizer.Finalize(ctx, request.ID, Decision{Granted: false})
	require.NoError(t, err)

	query := parseQueryLocation(t, location)
	assert.Equal(t, "access_denied", query.Get("error"))
	assert.Equal(t, testState, query.Get("state"))
	assert.False(t, query.Has("code"))

	assert.Contains(t, f.audit.types(), constants.EventAuthorizationDenied)
}

func TestFinalize_UnknownRequest(t *testing.T) {
	f := newProtocolFixture(t, Options{})
	_, _, err := f.authorizer.Finalize(context.Background(), "deadbeef", Decision{Granted: true, Resource: "Batman"})
	assert.ErrorIs(t, err, errors.ErrAuthRequestNotFound)
}

func TestFinalize_FirstDecisionWins(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	request := f.begin(t, "code")

	granted, _, err := f.authorizer.Finalize(ctx, request.ID, Decision{Granted: true, Resource: "Batman"})
	require.NoError(t, err)

	// A later deny re-emits the stored grant instead of flipping it.
	repeated, decided, err := f.authorizer.Finalize(ctx, request.ID, Decision{Granted: false})
	require.NoError(t, err)
	assert.Equal(t, granted, repeated)
	assert.True(t, decided.IsGranted())
}

func TestFinalize_ConcurrentDecisionsConverge(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	request := f.begin(t, "code")

	const deciders = 8
	locations := make([]string, deciders)
	var wg sync.WaitGroup
	for i := 0; i < deciders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			location, _, err := f.authorizer.Finalize(ctx, request.ID, Decision{
				Granted:  i%2 == 0,
				Resource: "Batman",
			})
			if assert.NoError(t, err) {
				locations[i] = location
			}
		}(i)
	}
	wg.Wait()

	for _, location := range locations[1:] {
		assert.Equal(t, locations[0], location)
	}
}

func TestFinalize_OmitsEmptyScopeAndState(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})

	request, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  testRedirectURI,
		ClientID:     f.client.ID,
	})
	require.NoError(t, err)

	location, _, err := f.authorizer.Finalize(ctx, request.ID, Decision{Granted: true, Resource: "Batman"})
	require.NoError(t, err)

	query := parseQueryLocation(t, location)
	assert.True(t, query.Has("code"))
	assert.False(t, query.Has("scope"))
	assert.False(t, query.Has("state"))
}

func TestFinalize_PreservesCallbackQuery(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	open, err := models.NewClient("OpenClient", "", "", "")
	require.NoError(t, err)
	require.NoError(t, f.stores.Clients.Create(ctx, open))

	request, _, err := f.authorizer.Begin(ctx, AuthorizeParams{
		ResponseType: "code",
		RedirectURI:  "http://elsewhere.dot/return?flavor=pistachio",
		ClientID:     open.ID,
	})
	require.NoError(t, err)

	location, _, err := f.authorizer.Finalize(ctx, request.ID, Decision{Granted: true, Resource: "Batman"})
	require.NoError(t, err)

	query := parseQueryLocation(t, location)
	assert.Equal(t, "pistachio", query.Get("flavor"))
	assert.True(t, query.Has("code"))
}

// ================================================================================
// Token endpoint: Issue
// ================================================================================

func (f *protocolFixture) mintCode(t *testing.T) string {
	t.Helper()
	request := f.begin(t, "code")
	location, _, err := f.authorizer.Finalize(context.Background(), request.ID, Decision{Granted: true, Resource: "Batman"})
	require.NoError(t, err)
	return parseQueryLocation(t, location).Get("code")
}

func (f *protocolFixture) clientAuth() ClientAuth {
	return ClientAuth{ID: f.client.ID, Secret: f.client.Secret, FromBasic: true}
}

func TestIssue_RedeemsAuthorizationCode(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	code := f.mintCode(t)

	token, err := f.issuer.Issue(ctx, TokenRequest{
		GrantType:   "authorization_code",
		Code:        code,
		RedirectURI: testRedirectURI,
		Client:      f.clientAuth(),
	})
	require.NoError(t, err)

	assert.Regexp(t, tokenPattern, token.Token)
	assert.Equal(t, "Batman", token.Resource)
	assert.Equal(t, testScope, token.Scope)
	assert.Equal(t, f.client.ID, token.ClientID)

	types := f.audit.types()
	assert.Contains(t, types, constants.EventGrantRedeemed)
	assert.Contains(t, types, constants.EventTokenIssued)
}

func TestIssue_ClientAuthenticationComesFirst(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	code := f.mintCode(t)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := f.issuer.Issue(ctx, TokenRequest{
			GrantType:   "authorization_code",
			Code:        code,
			RedirectURI: testRedirectURI,
			Client:      ClientAuth{ID: f.client.ID, Secret: "nope"},
		})
		assertDirectCode(t, err, constants.ErrCodeInvalidClient)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.issuer.Issue(ctx, TokenRequest{
			GrantType: "authorization_code",
			Code:      code,
			Client:    ClientAuth{ID: "nosuchclient", Secret: "nope"},
		})
		assertDirectCode(t, err, constants.ErrCodeInvalidClient)
	})

	// The failed attempts above must not have burned the code.
	_, err := f.issuer.Issue(ctx, TokenRequest{
		GrantType:   "authorization_code",
		Code:        code,
		RedirectURI: testRedirectURI,
		Client:      f.clientAuth(),
	})
	assert.NoError(t, err)
}

func TestIssue_UnknownGrantType(t *testing.T) {
	f := newProtocolFixture(t, Options{})
	_, err := f.issuer.Issue(context.Background(), TokenRequest{
		GrantType: "bogus",
		Client:    f.clientAuth(),
	})
	assertDirectCode(t, err, constants.ErrCodeUnsupportedGrantType)
}

func TestIssue_CodeReplayFails(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	code := f.mintCode(t)

	req := TokenRequest{
		GrantType:   "authorization_code",
		Code:        code,
		RedirectURI: testRedirectURI,
		Client:      f.clientAuth(),
	}
	_, err := f.issuer.Issue(ctx, req)
	require.NoError(t, err)

	_, err = f.issuer.Issue(ctx, req)
	assertDirectCode(t, err, constants.ErrCodeInvalidGrant)
}

func TestIssue_RedirectMismatchAtRedemption(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	code := f.mintCode(t)

	_, err := f.issuer.Issue(ctx, TokenRequest{
		GrantType:   "authorization_code",
		Code:        code,
		RedirectURI: "http://uberclient.dot/oz",
		Client:      f.clientAuth(),
	})
	assertDirectCode(t, err, constants.ErrCodeInvalidGrant)
}

func TestIssue_PasswordGrantDisabledWithoutAuthenticator(t *testing.T) {
	f := newProtocolFixture(t, Options{})
	_, err := f.issuer.Issue(context.Background(), TokenRequest{
		GrantType: "password",
		Username:  "ali.baba",
		Password:  "open sesame",
		Client:    f.clientAuth(),
	})
	assertDirectCode(t, err, constants.ErrCodeUnsupportedGrantType)
}

func TestIssue_PasswordGrant(t *testing.T) {
	ctx := context.Background()
	authenticator := func(_ context.Context, username, password string) (string, error) {
		if username == "ali.baba" && password == "open sesame" {
			return "Ali Baba", nil
		}
		if username == "broken" {
			return "", stderrors.New("directory unreachable")
		}
		return "", nil
	}
	f := newProtocolFixture(t, Options{
		Scopes:        []string{"read", "write"},
		Authenticator: authenticator,
	})

	t.Run("valid credentials", func(t *testing.T) {
		token, err := f.issuer.Issue(ctx, TokenRequest{
			GrantType: "password",
			Username:  "ali.baba",
			Password:  "open sesame",
			Scope:     testScope,
			Client:    f.clientAuth(),
		})
		require.NoError(t, err)
		assert.Equal(t, "Ali Baba", token.Resource)
		assert.Equal(t, testScope, token.Scope)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		_, err := f.issuer.Issue(ctx, TokenRequest{
			GrantType: "password",
			Username:  "ali.baba",
			Password:  "guessing",
			Client:    f.clientAuth(),
		})
		assertDirectCode(t, err, constants.ErrCodeInvalidGrant)
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := f.issuer.Issue(ctx, TokenRequest{
			GrantType: "password",
			Username:  "ali.baba",
			Client:    f.clientAuth(),
		})
		assertDirectCode(t, err, constants.ErrCodeInvalidGrant)
	})

	t.Run("verifier failure is not bad credentials", func(t *testing.T) {
		_, err := f.issuer.Issue(ctx, TokenRequest{
			GrantType: "password",
			Username:  "broken",
			Password:  "anything",
			Client:    f.clientAuth(),
		})
		assertDirectCode(t, err, constants.ErrCodeServerError)
	})

	t.Run("scope outside allow-list", func(t *testing.T) {
		_, err := f.issuer.Issue(ctx, TokenRequest{
			GrantType: "password",
			Username:  "ali.baba",
			Password:  "open sesame",
			Scope:     "read write math",
			Client:    f.clientAuth(),
		})
		assertDirectCode(t, err, constants.ErrCodeInvalidScope)
	})
}

// ================================================================================
// Resource gate
// ================================================================================

func TestResourceGate_AcceptsLiveToken(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})
	token, err := f.stores.Tokens.GetOrCreate(ctx, "Batman", f.client.ID, testScope, 0)
	require.NoError(t, err)

	verified, err := f.gate.Authenticate(ctx, token.Token, "203.0.113.7:4312")
	require.NoError(t, err)
	assert.Equal(t, "Batman", verified.Resource)

	// Lookup is case-insensitive; tokens are stored lowercase.
	upper, err := f.gate.Authenticate(ctx, strings.ToUpper(token.Token), "203.0.113.7:4312")
	require.NoError(t, err)
	assert.Equal(t, token.Token, upper.Token)

	stored, err := f.stores.Tokens.FindByToken(ctx, token.Token)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastAccessAt)
}

func TestResourceGate_RejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t, Options{})

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.gate.Authenticate(ctx, "basketofponies", "203.0.113.7:4312")
		assertDirectCode(t, err, constants.ErrCodeInvalidToken)
		assert.Contains(t, f.audit.types(), constants.EventTokenRejected)
	})

	t.Run("revoked token", func(t *testing.T) {
		token, err := f.stores.Tokens.GetOrCreate(ctx, "Robin", f.client.ID, testScope, 0)
		require.NoError(t, err)
		require.NoError(t, f.stores.Tokens.Revoke(ctx, token.Token))

		_, err = f.gate.Authenticate(ctx, token.Token, "203.0.113.7:4312")
		assertDirectCode(t, err, constants.ErrCodeInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Hour)
		expired := &models.AccessToken{
			Token:     "0123456789abcdef0123456789abcdef",
			Resource:  "Batman",
			ClientID:  f.client.ID,
			Scope:     testScope,
			ExpiresAt: &past,
			CreatedAt: past.Add(-time.Hour),
		}
		require.NoError(t, f.stores.Tokens.Create(ctx, expired))

		_, err := f.gate.Authenticate(ctx, expired.Token, "203.0.113.7:4312")
		assertDirectCode(t, err, constants.ErrCodeExpiredToken)
	})
}
