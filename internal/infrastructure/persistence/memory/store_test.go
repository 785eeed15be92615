package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/memory"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/storetest"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Stores {
		return memory.New(10 * time.Minute)
	})
}

func TestMemoryStore_ExpiredGrantBehavesLikeUnknown(t *testing.T) {
	ctx := context.Background()
	stores := memory.New(10 * time.Minute)

	request := models.NewAuthRequest("client-1", "read", "http://uberclient.dot/callback", "code", "")
	require.NoError(t, stores.Requests.Create(ctx, request))

	grant, err := models.NewAccessGrant(request.ClientID, "Batman", request.Scope, request.RedirectURI, 10*time.Millisecond)
	require.NoError(t, err)
	_, err = stores.Requests.GrantCode(ctx, request.ID, grant)
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	_, err = stores.Grants.FindByCode(ctx, grant.Code)
	assert.ErrorIs(t, err, errors.ErrGrantNotFound)
	_, err = stores.Grants.Redeem(ctx, grant.Code)
	assert.ErrorIs(t, err, errors.ErrGrantNotFound)
}

func TestMemoryStore_ExpiringTokenTurnsInvalid(t *testing.T) {
	ctx := context.Background()
	stores := memory.New(10 * time.Minute)

	token, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-1", "read", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, token.IsValid())

	time.Sleep(25 * time.Millisecond)

	found, err := stores.Tokens.FindByToken(ctx, token.Token)
	require.NoError(t, err)
	assert.True(t, found.IsExpired())
	assert.False(t, found.IsValid())

	// A fresh get-or-create replaces the dead token.
	minted, err := stores.Tokens.GetOrCreate(ctx, "Batman", "client-1", "read", 0)
	require.NoError(t, err)
	assert.NotEqual(t, token.Token, minted.Token)
}
