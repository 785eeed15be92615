package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// txRetries bounds the optimistic transaction retry loop. Conflicts on these
// keys are transient by construction, so a handful of attempts suffices.
const txRetries = 5

// store holds the handles shared by the four repository facades.
type store struct {
	client     redis.UniversalClient
	requestTTL time.Duration
	logger     logger.Logger
}

// NewStores builds the repository bundle over an established client.
// Authorization requests and codes expire after requestTTL through key TTLs.
func NewStores(client redis.UniversalClient, requestTTL time.Duration, log logger.Logger) repository.Stores {
	s := &store{client: client, requestTTL: requestTTL, logger: log}
	return repository.Stores{
		Clients:  &clientRepo{s},
		Requests: &requestRepo{s},
		Grants:   &grantRepo{s},
		Tokens:   &tokenRepo{s},
	}
}

func clientKey(id string) string { return constants.KeyPrefixClient + id }

func requestKey(id string) string { return constants.KeyPrefixAuthRequest + id }

func grantKey(code string) string { return constants.KeyPrefixGrant + strings.ToLower(code) }

func tokenKey(value string) string { return constants.KeyPrefixToken + strings.ToLower(value) }

func resourceKey(res string) string { return constants.KeyPrefixResourceIndex + res }

// tripleKey indexes the one-live-token invariant.
func tripleKey(resource, clientID, scope string) string {
	return constants.KeyPrefixTokenIndex + resource + "|" + clientID + "|" + scope
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", errors.ErrDatabaseOperation, err)
}

// watch runs fn under WATCH on keys, retrying on transaction conflicts.
func (s *store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return storeErr(fmt.Errorf("optimistic transaction kept conflicting on %v", keys))
}

func encode(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", storeErr(err)
	}
	return string(raw), nil
}

// ================================================================================
// ClientRepository
// ================================================================================

type clientRepo struct{ *store }

var _ repository.ClientRepository = (*clientRepo)(nil)

func (s *clientRepo) Create(ctx context.Context, client *models.Client) error {
	raw, err := encode(client)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, clientKey(client.ID), raw, 0)
	pipe.SAdd(ctx, constants.KeyClientIndex, client.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *clientRepo) FindByID(ctx context.Context, id string) (*models.Client, error) {
	raw, err := s.client.Get(ctx, clientKey(id)).Result()
	if err == redis.Nil {
		return nil, errors.ErrClientNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	var client models.Client
	if err := json.Unmarshal([]byte(raw), &client); err != nil {
		return nil, storeErr(err)
	}
	return &client, nil
}

func (s *clientRepo) List(ctx context.Context) ([]*models.Client, error) {
	ids, err := s.client.SMembers(ctx, constants.KeyClientIndex).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	clients := make([]*models.Client, 0, len(ids))
	for _, id := range ids {
		client, err := s.FindByID(ctx, id)
		if err == errors.ErrClientNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].CreatedAt.After(clients[j].CreatedAt) })
	return clients, nil
}

func (s *clientRepo) Revoke(ctx context.Context, id string) error {
	key := clientKey(id)
	return s.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return errors.ErrClientNotFound
		}
		if err != nil {
			return storeErr(err)
		}
		var client models.Client
		if err := json.Unmarshal([]byte(raw), &client); err != nil {
			return storeErr(err)
		}
		if client.IsRevoked() {
			return nil
		}
		client.Revoke()
		updated, err := encode(&client)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return storeErr(err)
		}
		return nil
	}, key)
}

// ================================================================================
// AuthRequestRepository
// ================================================================================

type requestRepo struct{ *store }

var _ repository.AuthRequestRepository = (*requestRepo)(nil)

func (s *requestRepo) Create(ctx context.Context, request *models.AuthRequest) error {
	raw, err := encode(request)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, requestKey(request.ID), raw, s.requestTTL).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *requestRepo) FindByID(ctx context.Context, id string) (*models.AuthRequest, error) {
	raw, err := s.client.Get(ctx, requestKey(id)).Result()
	if err == redis.Nil {
		return nil, errors.ErrAuthRequestNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	var request models.AuthRequest
	if err := json.Unmarshal([]byte(raw), &request); err != nil {
		return nil, storeErr(err)
	}
	return &request, nil
}

// finalize applies a terminal transition under WATCH. mutate runs on the
// loaded pending record; extra adds writes to the same transaction.
func (s *requestRepo) finalize(ctx context.Context, id string, mutate func(*models.AuthRequest), extra func(redis.Pipeliner) error) (*models.AuthRequest, error) {
	key := requestKey(id)
	var decided *models.AuthRequest

	err := s.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return errors.ErrAuthRequestNotFound
		}
		if err != nil {
			return storeErr(err)
		}
		var request models.AuthRequest
		if err := json.Unmarshal([]byte(raw), &request); err != nil {
			return storeErr(err)
		}
		if !request.IsPending() {
			return errors.ErrRequestDecided
		}

		mutate(&request)
		updated, err := encode(&request)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			if extra != nil {
				return extra(pipe)
			}
			return nil
		})
		if err != nil {
			return storeErr(err)
		}
		decided = &request
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return decided, nil
}

func (s *requestRepo) GrantCode(ctx context.Context, id string, grant *models.AccessGrant) (*models.AuthRequest, error) {
	grantRaw, err := encode(grant)
	if err != nil {
		return nil, err
	}
	ttl := time.Until(grant.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.finalize(ctx, id,
		func(request *models.AuthRequest) {
			request.MarkGranted()
			request.GrantCode = grant.Code
		},
		func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, grantKey(grant.Code), grantRaw, ttl)
			return nil
		})
}

func (s *requestRepo) GrantToken(ctx context.Context, id string, token string) (*models.AuthRequest, error) {
	return s.finalize(ctx, id,
		func(request *models.AuthRequest) {
			request.MarkGranted()
			request.AccessToken = token
		}, nil)
}

func (s *requestRepo) Deny(ctx context.Context, id string) (*models.AuthRequest, error) {
	return s.finalize(ctx, id,
		func(request *models.AuthRequest) {
			request.MarkDenied()
		}, nil)
}

// ================================================================================
// GrantRepository
// ================================================================================

type grantRepo struct{ *store }

var _ repository.GrantRepository = (*grantRepo)(nil)

func (s *grantRepo) FindByCode(ctx context.Context, code string) (*models.AccessGrant, error) {
	raw, err := s.client.Get(ctx, grantKey(code)).Result()
	if err == redis.Nil {
		return nil, errors.ErrGrantNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	var grant models.AccessGrant
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		return nil, storeErr(err)
	}
	if grant.IsExpired() {
		return nil, errors.ErrGrantNotFound
	}
	return &grant, nil
}

func (s *grantRepo) Redeem(ctx context.Context, code string) (*models.AccessGrant, error) {
	key := grantKey(code)
	var redeemed *models.AccessGrant

	err := s.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return errors.ErrGrantNotFound
		}
		if err != nil {
			return storeErr(err)
		}
		var grant models.AccessGrant
		if err := json.Unmarshal([]byte(raw), &grant); err != nil {
			return storeErr(err)
		}
		if grant.IsExpired() {
			return errors.ErrGrantNotFound
		}
		if grant.IsRedeemed() {
			return errors.ErrGrantConsumed
		}

		now := time.Now().UTC()
		grant.RedeemedAt = &now
		updated, err := encode(&grant)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return storeErr(err)
		}
		redeemed = &grant
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

// ================================================================================
// TokenRepository
// ================================================================================

type tokenRepo struct{ *store }

var _ repository.TokenRepository = (*tokenRepo)(nil)

func tokenTTL(token *models.AccessToken) time.Duration {
	remaining, bounded := token.TimeUntilExpiry()
	if !bounded {
		return 0
	}
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}

func (s *tokenRepo) Create(ctx context.Context, token *models.AccessToken) error {
	raw, err := encode(token)
	if err != nil {
		return err
	}
	ttl := tokenTTL(token)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKey(token.Token), raw, ttl)
	if token.IsValid() {
		pipe.Set(ctx, tripleKey(token.Resource, token.ClientID, token.Scope), token.Token, ttl)
	}
	pipe.SAdd(ctx, resourceKey(token.Resource), token.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *tokenRepo) FindByToken(ctx context.Context, value string) (*models.AccessToken, error) {
	raw, err := s.client.Get(ctx, tokenKey(value)).Result()
	if err == redis.Nil {
		return nil, errors.ErrTokenNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	var token models.AccessToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, storeErr(err)
	}
	return &token, nil
}

func (s *tokenRepo) FindByResource(ctx context.Context, resource string) ([]*models.AccessToken, error) {
	values, err := s.client.SMembers(ctx, resourceKey(resource)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	tokens := make([]*models.AccessToken, 0, len(values))
	for _, value := range values {
		token, err := s.FindByToken(ctx, value)
		if err == errors.ErrTokenNotFound {
			// Expired from the keyspace; drop the dangling index entry.
			s.client.SRem(ctx, resourceKey(resource), value)
			continue
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.After(tokens[j].CreatedAt) })
	return tokens, nil
}

func (s *tokenRepo) GetOrCreate(ctx context.Context, resource, clientID, scope string, ttl time.Duration) (*models.AccessToken, error) {
	indexKey := tripleKey(resource, clientID, scope)
	var result *models.AccessToken

	err := s.watch(ctx, func(tx *redis.Tx) error {
		value, err := tx.Get(ctx, indexKey).Result()
		if err != nil && err != redis.Nil {
			return storeErr(err)
		}
		if err == nil {
			raw, err := tx.Get(ctx, tokenKey(value)).Result()
			if err != nil && err != redis.Nil {
				return storeErr(err)
			}
			if err == nil {
				var token models.AccessToken
				if err := json.Unmarshal([]byte(raw), &token); err != nil {
					return storeErr(err)
				}
				if token.IsValid() {
					result = &token
					return nil
				}
			}
			// Index points at a dead or vanished token; mint a fresh one.
		}

		minted, err := models.NewAccessToken(resource, clientID, scope, ttl)
		if err != nil {
			return err
		}
		raw, err := encode(minted)
		if err != nil {
			return err
		}
		keyTTL := tokenTTL(minted)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tokenKey(minted.Token), raw, keyTTL)
			pipe.Set(ctx, indexKey, minted.Token, keyTTL)
			pipe.SAdd(ctx, resourceKey(resource), minted.Token)
			return nil
		})
		if err != nil {
			return storeErr(err)
		}
		result = minted
		return nil
	}, indexKey)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *tokenRepo) Touch(ctx context.Context, value string) error {
	key := tokenKey(value)
	return s.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return errors.ErrTokenNotFound
		}
		if err != nil {
			return storeErr(err)
		}
		var token models.AccessToken
		if err := json.Unmarshal([]byte(raw), &token); err != nil {
			return storeErr(err)
		}
		token.TouchAccess()
		updated, err := encode(&token)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return storeErr(err)
		}
		return nil
	}, key)
}

func (s *tokenRepo) Revoke(ctx context.Context, value string) error {
	key := tokenKey(value)
	return s.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return errors.ErrTokenNotFound
		}
		if err != nil {
			return storeErr(err)
		}
		var token models.AccessToken
		if err := json.Unmarshal([]byte(raw), &token); err != nil {
			return storeErr(err)
		}
		if token.IsRevoked() {
			return nil
		}
		token.Revoke()
		updated, err := encode(&token)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			pipe.Del(ctx, tripleKey(token.Resource, token.ClientID, token.Scope))
			return nil
		})
		if err != nil {
			return storeErr(err)
		}
		return nil
	}, key)
}
