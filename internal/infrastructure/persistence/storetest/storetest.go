// Package storetest exercises the persistence contracts against a backend.
// Each backend's test file supplies a factory and runs the same suite, so
// the protocol-visible store semantics cannot drift between backends.
package storetest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
)

// Factory returns a fresh, empty store bundle for one subtest.
type Factory func(t *testing.T) repository.Stores

// Run executes the conformance suite against the backend under test.
func Run(t *testing.T, factory Factory) {
	t.Run("Clients", func(t *testing.T) { testClients(t, factory) })
	t.Run("AuthRequests", func(t *testing.T) { testAuthRequests(t, factory) })
	t.Run("Grants", func(t *testing.T) { testGrants(t, factory) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, factory) })
}

func newClient(t *testing.T) *models.Client {
	t.Helper()
	client, err := models.NewClient("UberClient", "http://uberclient.dot", "", "http://uberclient.dot/callback")
	require.NoError(t, err)
	return client
}

func testClients(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("create and find round-trips", func(t *testing.T) {
		stores := factory(t)
		client := newClient(t)
		require.NoError(t, stores.Clients.Create(ctx, client))

		found, err := stores.Clients.FindByID(ctx, client.ID)
		require.NoError(t, err)
		assert.Equal(t, client.ID, found.ID)
		assert.Equal(t, client.Secret, found.Secret)
		assert.Equal(t, "UberClient", found.DisplayName)
		assert.Equal(t, "http://uberclient.dot/callback", found.RedirectURI)
		assert.False(t, found.IsRevoked())
	})

	t.Run("unknown id reports not found", func(t *testing.T) {
		stores := factory(t)
		_, err := stores.Clients.FindByID(ctx, "4e4d74a3e04f9e1b0478c27a")
		assert.ErrorIs(t, err, errors.ErrClientNotFound)
	})

	t.Run("malformed id reports not found", func(t *testing.T) {
		stores := factory(t)
		_, err := stores.Clients.FindByID(ctx, "###not-an-id###")
		assert.ErrorIs(t, err, errors.ErrClientNotFound)
	})

	t.Run("revoke sticks and keeps the record", func(t *testing.T) {
		stores := factory(t)
		client := newClient(t)
		require.NoError(t, stores.Clients.Create(ctx, client))
		require.NoError(t, stores.Clients.Revoke(ctx, client.ID))

		found, err := stores.Clients.FindByID(ctx, client.ID)
		require.NoError(t, err)
		assert.True(t, found.IsRevoked())

		// Revoking again is a no-op.
		require.NoError(t, stores.Clients.Revoke(ctx, client.ID))
	})

	t.Run("revoke unknown id reports not found", func(t *testing.T) {
		stores := factory(t)
		assert.ErrorIs(t, stores.Clients.Revoke(ctx, "missing"), errors.ErrClientNotFound)
	})

	t.Run("list returns every registration", func(t *testing.T) {
		stores := factory(t)
		first := newClient(t)
		second := newClient(t)
		require.NoError(t, stores.Clients.Create(ctx, first))
		require.NoError(t, stores.Clients.Create(ctx, second))

		all, err := stores.Clients.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func pendingRequest(t *testing.T, stores repository.Stores) *models.AuthRequest {
	t.Helper()
	request := models.NewAuthRequest("client-1", "read write", "http://uberclient.dot/callback", "code", "bring this back")
	require.NoError(t, stores.Requests.Create(context.Background(), request))
	return request
}

func testAuthRequests(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("create and find round-trips", func(t *testing.T) {
		stores := factory(t)
		request := pendingRequest(t, stores)

		found, err := stores.Requests.FindByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, request.ClientID, found.ClientID)
		assert.Equal(t, "read write", found.Scope)
		assert.Equal(t, "bring this back", found.State)
		assert.True(t, found.IsPending())
	})

	t.Run("unknown id reports not found", func(t *testing.T) {
		stores := factory(t)
		_, err := stores.Requests.FindByID(ctx, "11112222333344445555666677778888")
		assert.ErrorIs(t, err, errors.ErrAuthRequestNotFound)
	})

	t.Run("grant code finalizes once and persists the grant", func(t *testing.T) {
		stores := factory(t)
		request := pendingRequest(t, stores)

		grant, err := models.NewAccessGrant(request.ClientID, "Batman", request.Scope, request.RedirectURI, 10*time.Minute)
		require.NoError(t, err)

		decided, err := stores.Requests.GrantCode(ctx, request.ID, grant)
		require.NoError(t, err)
		assert.True(t, decided.IsGranted())
		assert.Equal(t, grant.Code, decided.GrantCode)

		stored, err := stores.Grants.FindByCode(ctx, grant.Code)
		require.NoError(t, err)
		assert.Equal(t, "Batman", stored.Resource)
		assert.Equal(t, request.Scope, stored.Scope)

		// The decision is terminal for every finalizer.
		_, err = stores.Requests.Deny(ctx, request.ID)
		assert.ErrorIs(t, err, errors.ErrRequestDecided)
		_, err = stores.Requests.GrantCode(ctx, request.ID, grant)
		assert.ErrorIs(t, err, errors.ErrRequestDecided)

		reloaded, err := stores.Requests.FindByID(ctx, request.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.IsGranted())
		assert.Equal(t, grant.Code, reloaded.GrantCode)
	})

	t.Run("grant token finalizes once", func(t *testing.T) {
		stores := factory(t)
		request := pendingRequest(t, stores)

		decided, err := stores.Requests.GrantToken(ctx, request.ID, "deadbeefdeadbeefdeadbeefdeadbeef")
		require.NoError(t, err)
		assert.True(t, decided.IsGranted())
		assert.Equal(t, "deadbeefdeadbeefdeadbeefdeadbeef", decided.AccessToken)

		_, err = stores.Requests.GrantToken(ctx, request.ID, "0000000000000000000000000000000f")
		assert.ErrorIs(t, err, errors.ErrRequestDecided)

		reloaded, err := stores.Requests.FindByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, "deadbeefdeadbeefdeadbeefdeadbeef", reloaded.AccessToken)
	})

	t.Run("deny finalizes once", func(t *testing.T) {
		stores := factory(t)
		request := pendingRequest(t, stores)

		decided, err := stores.Requests.Deny(ctx, request.ID)
		require.NoError(t, err)
		assert.True(t, decided.IsDenied())

		grant, err := models.NewAccessGrant(request.ClientID, "Batman", request.Scope, request.RedirectURI, time.Minute)
		require.NoError(t, err)
		_, err = stores.Requests.GrantCode(ctx, request.ID, grant)
		assert.ErrorIs(t, err, errors.ErrRequestDecided)

		reloaded, err := stores.Requests.FindByID(ctx, request.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.IsDenied())
		assert.Empty(t, reloaded.GrantCode)
	})

	t.Run("finalizing an unknown id reports not found", func(t *testing.T) {
		stores := factory(t)
		_, err := stores.Requests.Deny(ctx, "11112222333344445555666677778888")
		assert.ErrorIs(t, err, errors.ErrAuthRequestNotFound)
	})

	t.Run("concurrent finalizations elect one winner", func(t *testing.T) {
		stores := factory(t)
		request := pendingRequest(t, stores)

		const attempts = 8
		outcomes := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					_, outcomes[i] = stores.Requests.Deny(ctx, request.ID)
				} else {
					grant, err := models.NewAccessGrant(request.ClientID, "Batman", request.Scope, request.RedirectURI, time.Minute)
					if err != nil {
						outcomes[i] = err
						return
					}
					_, outcomes[i] = stores.Requests.GrantCode(ctx, request.ID, grant)
				}
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range outcomes {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, errors.ErrRequestDecided)
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func storedGrant(t *testing.T, stores repository.Stores, ttl time.Duration) *models.AccessGrant {
	t.Helper()
	ctx := context.Background()
	request := models.NewAuthRequest("client-1", "read write", "http://uberclient.dot/callback", "code", "")
	require.NoError(t, stores.Requests.Create(ctx, request))
	grant, err := models.NewAccessGrant(request.ClientID, "Batman", request.Scope, request.RedirectURI, ttl)
	require.NoError(t, err)
	_, err = stores.Requests.GrantCode(ctx, request.ID, grant)
	require.NoError(t, err)
	return grant
}

func testGrants(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("unknown code reports not found", func(t *testing.T) {
		stores := factory(t)
		_, err := stores.Grants.FindByCode(ctx, "ffffffffffffffffffffffffffffffff")
		assert.ErrorIs(t, err, errors.ErrGrantNotFound)
	})

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		stores := factory(t)
		grant := storedGrant(t, stores, 10*time.Minute)

		found, err := stores.Grants.FindByCode(ctx, strings.ToUpper(grant.Code))
		require.NoError(t, err)
		assert.Equal(t, grant.Code, found.Code)
	})

	t.Run("redeem consumes exactly once", func(t *testing.T) {
		stores := factory(t)
		grant := storedGrant(t, stores, 10*time.Minute)

		redeemed, err := stores.Grants.Redeem(ctx, grant.Code)
		require.NoError(t, err)
		assert.True(t, redeemed.IsRedeemed())
		assert.Equal(t, "Batman", redeemed.Resource)

		_, err = stores.Grants.Redeem(ctx, grant.Code)
		assert.ErrorIs(t, err, errors.ErrGrantConsumed)

		// The consumed record stays visible for replay detection.
		found, err := stores.Grants.FindByCode(ctx, grant.Code)
		require.NoError(t, err)
		assert.True(t, found.IsRedeemed())
	})

	t.Run("concurrent redemptions elect one winner", func(t *testing.T) {
		stores := factory(t)
		grant := storedGrant(t, stores, 10*time.Minute)

		const attempts = 8
		outcomes := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, outcomes[i] = stores.Grants.Redeem(ctx, grant.Code)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range outcomes {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, errors.ErrGrantConsumed)
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func testTokens(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("create and find round-trips case-insensitively", func(t *testing.T) {
		stores := factory(t)
		token, err := models.NewAccessToken("Batman", "client-1", "read write", 0)
		require.NoError(t, err)
		require.NoError(t, stores.Tokens.Create(ctx, token))

		found, err := stores.Tokens.FindByToken(ctx, strings.ToUpper(token.Token))
		require.NoError(t, err)
		assert.Equal(t, token.Token, found.Token)
		assert.Equal(t, "Batman", found.Resource)
	})

	t.Run("unknown token reports not found", func(t *testing.T) {
		stores := factory(t)
		_, err := stores.Tokens.FindByToken(ctx, "ffffffffffffffffffffffffffffffff")
		assert.ErrorIs(t, err, errors.ErrTokenNotFound)
	})

	t.Run("get-or-create is idempotent per triple", func(t *testing.T) {
		stores := factory(t)
		first, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-1", "read write", 0)
		require.NoError(t, err)
		second, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-1", "read write", 0)
		require.NoError(t, err)
		assert.Equal(t, first.Token, second.Token)

		other, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-1", "read", 0)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, other.Token)
	})

	t.Run("revocation frees the triple", func(t *testing.T) {
		stores := factory(t)
		first, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-1", "read", 0)
		require.NoError(t, err)
		require.NoError(t, stores.Tokens.Revoke(ctx, first.Token))

		found, err := stores.Tokens.FindByToken(ctx, first.Token)
		require.NoError(t, err)
		assert.True(t, found.IsRevoked())

		minted, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-1", "read", 0)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, minted.Token)
	})

	t.Run("revoke unknown token reports not found", func(t *testing.T) {
		stores := factory(t)
		assert.ErrorIs(t, stores.Tokens.Revoke(ctx, "ffffffffffffffffffffffffffffffff"), errors.ErrTokenNotFound)
	})

	t.Run("touch records last access", func(t *testing.T) {
		stores := factory(t)
		token, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-1", "read", 0)
		require.NoError(t, err)
		require.Nil(t, token.LastAccessAt)

		require.NoError(t, stores.Tokens.Touch(ctx, strings.ToUpper(token.Token)))

		found, err := stores.Tokens.FindByToken(ctx, token.Token)
		require.NoError(t, err)
		assert.NotNil(t, found.LastAccessAt)

		assert.ErrorIs(t, stores.Tokens.Touch(ctx, "ffffffffffffffffffffffffffffffff"), errors.ErrTokenNotFound)
	})

	t.Run("find by resource lists newest first", func(t *testing.T) {
		stores := factory(t)
		older, err := models.NewAccessToken("Batman", "client-1", "read", 0)
		require.NoError(t, err)
		older.CreatedAt = time.Now().UTC().Add(-time.Hour)
		require.NoError(t, stores.Tokens.Create(ctx, older))

		newer, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-2", "write", 0)
		require.NoError(t, err)
		_, err = stores.Tokens.GetOrCreate(ctx, "Joker", "client-1", "read", 0)
		require.NoError(t, err)

		tokens, err := stores.Tokens.FindByResource(ctx, "Batman")
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		assert.Equal(t, newer.Token, tokens[0].Token)
		assert.Equal(t, older.Token, tokens[1].Token)
	})
}
