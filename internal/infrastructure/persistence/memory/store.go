// Package memory implements the persistence contracts in process memory.
// It backs tests, the lightweight embedded server and single-process demos;
// nothing survives a restart. Authorization requests and grants expire
// through the cache TTL, matching the durable backends.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
)

// store holds the shared state behind the four repository facades. A single
// mutex serializes the compare-and-set transitions; reads return copies so
// callers never share memory with the store.
type store struct {
	mu sync.Mutex

	clients  map[string]models.Client
	requests *cache.Cache
	grants   *cache.Cache
	tokens   map[string]models.AccessToken

	// tokenIndex maps a (resource, client, scope) triple to the live token
	// value, enforcing the one-live-token invariant.
	tokenIndex map[string]string

	requestTTL time.Duration
}

// New creates an empty in-memory store bundle. Authorization requests and
// codes expire after requestTTL.
func New(requestTTL time.Duration) repository.Stores {
	if requestTTL <= 0 {
		requestTTL = cache.NoExpiration
	}
	s := &store{
		clients:    make(map[string]models.Client),
		requests:   cache.New(requestTTL, 2*requestTTL),
		grants:     cache.New(requestTTL, 2*requestTTL),
		tokens:     make(map[string]models.AccessToken),
		tokenIndex: make(map[string]string),
		requestTTL: requestTTL,
	}
	return repository.Stores{
		Clients:  &clientRepo{s},
		Requests: &requestRepo{s},
		Grants:   &grantRepo{s},
		Tokens:   &tokenRepo{s},
	}
}

func tripleKey(resource, clientID, scope string) string {
	return resource + "\x00" + clientID + "\x00" + scope
}

// ================================================================================
// ClientRepository
// ================================================================================

type clientRepo struct{ *store }

var _ repository.ClientRepository = (*clientRepo)(nil)

func (s *clientRepo) Create(ctx context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = *client
	return nil
}

func (s *clientRepo) FindByID(ctx context.Context, id string) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[id]
	if !ok {
		return nil, errors.ErrClientNotFound
	}
	out := client
	return &out, nil
}

func (s *clientRepo) List(ctx context.Context) ([]*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Client, 0, len(s.clients))
	for _, client := range s.clients {
		c := client
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *clientRepo) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[id]
	if !ok {
		return errors.ErrClientNotFound
	}
	if !client.IsRevoked() {
		client.Revoke()
		s.clients[id] = client
	}
	return nil
}

// ================================================================================
// AuthRequestRepository
// ================================================================================

type requestRepo struct{ *store }

var _ repository.AuthRequestRepository = (*requestRepo)(nil)

func (s *requestRepo) Create(ctx context.Context, request *models.AuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests.Set(request.ID, *request, s.requestTTL)
	return nil
}

func (s *requestRepo) FindByID(ctx context.Context, id string) (*models.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRequest(id)
}

// loadRequest reads a request while the mutex is held.
func (s *store) loadRequest(id string) (*models.AuthRequest, error) {
	value, ok := s.requests.Get(id)
	if !ok {
		return nil, errors.ErrAuthRequestNotFound
	}
	request := value.(models.AuthRequest)
	return &request, nil
}

func (s *requestRepo) GrantCode(ctx context.Context, id string, grant *models.AccessGrant) (*models.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, err := s.loadRequest(id)
	if err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, errors.ErrRequestDecided
	}

	request.MarkGranted()
	request.GrantCode = grant.Code
	s.requests.Set(id, *request, s.requestTTL)
	s.grants.Set(strings.ToLower(grant.Code), *grant, time.Until(grant.ExpiresAt))
	return request, nil
}

func (s *requestRepo) GrantToken(ctx context.Context, id string, token string) (*models.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, err := s.loadRequest(id)
	if err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, errors.ErrRequestDecided
	}

	request.MarkGranted()
	request.AccessToken = token
	s.requests.Set(id, *request, s.requestTTL)
	return request, nil
}

func (s *requestRepo) Deny(ctx context.Context, id string) (*models.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, err := s.loadRequest(id)
	if err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, errors.ErrRequestDecided
	}

	request.MarkDenied()
	s.requests.Set(id, *request, s.requestTTL)
	return request, nil
}

// ================================================================================
// GrantRepository
// ================================================================================

type grantRepo struct{ *store }

var _ repository.GrantRepository = (*grantRepo)(nil)

func (s *grantRepo) FindByCode(ctx context.Context, code string) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadGrant(code)
}

func (s *store) loadGrant(code string) (*models.AccessGrant, error) {
	value, ok := s.grants.Get(strings.ToLower(code))
	if !ok {
		return nil, errors.ErrGrantNotFound
	}
	grant := value.(models.AccessGrant)
	if grant.IsExpired() {
		return nil, errors.ErrGrantNotFound
	}
	return &grant, nil
}

func (s *grantRepo) Redeem(ctx context.Context, code string) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, err := s.loadGrant(code)
	if err != nil {
		return nil, err
	}
	if grant.IsRedeemed() {
		return nil, errors.ErrGrantConsumed
	}

	now := time.Now().UTC()
	grant.RedeemedAt = &now
	s.grants.Set(strings.ToLower(grant.Code), *grant, time.Until(grant.ExpiresAt))
	return grant, nil
}

// ================================================================================
// TokenRepository
// ================================================================================

type tokenRepo struct{ *store }

var _ repository.TokenRepository = (*tokenRepo)(nil)

func (s *tokenRepo) Create(ctx context.Context, token *models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Token] = *token
	if token.IsValid() {
		s.tokenIndex[tripleKey(token.Resource, token.ClientID, token.Scope)] = token.Token
	}
	return nil
}

func (s *tokenRepo) FindByToken(ctx context.Context, value string) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[strings.ToLower(value)]
	if !ok {
		return nil, errors.ErrTokenNotFound
	}
	out := token
	return &out, nil
}

func (s *tokenRepo) FindByResource(ctx context.Context, resource string) ([]*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AccessToken
	for _, token := range s.tokens {
		if token.Resource == resource {
			t := token
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *tokenRepo) GetOrCreate(ctx context.Context, resource, clientID, scope string, ttl time.Duration) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey(resource, clientID, scope)
	if value, ok := s.tokenIndex[key]; ok {
		if token, live := s.tokens[value]; live && token.IsValid() {
			out := token
			return &out, nil
		}
		delete(s.tokenIndex, key)
	}

	token, err := models.NewAccessToken(resource, clientID, scope, ttl)
	if err != nil {
		return nil, err
	}
	s.tokens[token.Token] = *token
	s.tokenIndex[key] = token.Token
	return token, nil
}

func (s *tokenRepo) Touch(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folded := strings.ToLower(value)
	token, ok := s.tokens[folded]
	if !ok {
		return errors.ErrTokenNotFound
	}
	token.TouchAccess()
	s.tokens[folded] = token
	return nil
}

func (s *tokenRepo) Revoke(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folded := strings.ToLower(value)
	token, ok := s.tokens[folded]
	if !ok {
		return errors.ErrTokenNotFound
	}
	if !token.IsRevoked() {
		token.Revoke()
		s.tokens[folded] = token
		delete(s.tokenIndex, tripleKey(token.Resource, token.ClientID, token.Scope))
	}
	return nil
}
