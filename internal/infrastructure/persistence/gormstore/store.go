// Package gormstore implements the persistence contracts on a relational
// database through GORM. The postgres driver serves production deployments;
// the sqlite driver serves tests and single-node setups. Terminal protocol
// transitions are conditional updates guarded by the row's current status,
// so concurrent finalizers and redeemers elect exactly one winner.
package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/errors"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// OpenPostgres connects to PostgreSQL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// OpenSQLite connects to a SQLite database file; ":memory:" style DSNs give
// an ephemeral database.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the four protocol tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Client{},
		&models.AuthRequest{},
		&models.AccessGrant{},
		&models.AccessToken{},
	)
}

// store holds the handles shared by the four repository facades.
type store struct {
	db         *gorm.DB
	requestTTL time.Duration
	logger     logger.Logger
}

// NewStores builds the repository bundle over an open database handle.
// Authorization requests older than requestTTL are treated as expired.
func NewStores(db *gorm.DB, requestTTL time.Duration, log logger.Logger) repository.Stores {
	s := &store{db: db, requestTTL: requestTTL, logger: log}
	return repository.Stores{
		Clients:  &clientRepo{s},
		Requests: &requestRepo{s},
		Grants:   &grantRepo{s},
		Tokens:   &tokenRepo{s},
	}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", errors.ErrDatabaseOperation, err)
}

// PurgeExpired removes authorization requests and codes that have outlived
// their TTL. It is housekeeping only; reads already treat expired records as
// absent.
func PurgeExpired(ctx context.Context, db *gorm.DB, requestTTL time.Duration) (int64, error) {
	now := time.Now().UTC()
	var purged int64

	res := db.WithContext(ctx).
		Where("created_at < ?", now.Add(-requestTTL)).
		Delete(&models.AuthRequest{})
	if res.Error != nil {
		return purged, storeErr(res.Error)
	}
	purged += res.RowsAffected

	res = db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.AccessGrant{})
	if res.Error != nil {
		return purged, storeErr(res.Error)
	}
	purged += res.RowsAffected

	return purged, nil
}

// ================================================================================
// ClientRepository
// ================================================================================

type clientRepo struct{ *store }

var _ repository.ClientRepository = (*clientRepo)(nil)

func (s *clientRepo) Create(ctx context.Context, client *models.Client) error {
	if err := s.db.WithContext(ctx).Create(client).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *clientRepo) FindByID(ctx context.Context, id string) (*models.Client, error) {
	var client models.Client
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&client).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.ErrClientNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &client, nil
}

func (s *clientRepo) List(ctx context.Context) ([]*models.Client, error) {
	var clients []*models.Client
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&clients).Error; err != nil {
		return nil, storeErr(err)
	}
	return clients, nil
}

func (s *clientRepo) Revoke(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Client{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]interface{}{"revoked_at": now, "updated_at": now})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		// Either unknown or already revoked; only the former is an error.
		if _, err := s.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ================================================================================
// AuthRequestRepository
// ================================================================================

type requestRepo struct{ *store }

var _ repository.AuthRequestRepository = (*requestRepo)(nil)

func (s *store) requestExpired(request *models.AuthRequest) bool {
	return s.requestTTL > 0 && time.Now().UTC().After(request.CreatedAt.Add(s.requestTTL))
}

func (s *requestRepo) Create(ctx context.Context, request *models.AuthRequest) error {
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *requestRepo) FindByID(ctx context.Context, id string) (*models.AuthRequest, error) {
	var request models.AuthRequest
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.ErrAuthRequestNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if s.requestExpired(&request) {
		return nil, errors.ErrAuthRequestNotFound
	}
	return &request, nil
}

// finalize applies a terminal transition as a conditional update on the
// pending status, persisting extra rows in the same transaction. The update
// also refuses requests past their TTL, so stale requests cannot be decided.
func (s *requestRepo) finalize(ctx context.Context, id string, updates map[string]interface{}, grant *models.AccessGrant) (*models.AuthRequest, error) {
	var decided models.AuthRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending := tx.Model(&models.AuthRequest{}).
			Where("id = ? AND status = ?", id, constants.AuthRequestPending)
		if s.requestTTL > 0 {
			pending = pending.Where("created_at > ?", time.Now().UTC().Add(-s.requestTTL))
		}
		res := pending.Updates(updates)
		if res.Error != nil {
			return storeErr(res.Error)
		}
		if res.RowsAffected == 0 {
			var existing models.AuthRequest
			err := tx.Where("id = ?", id).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				return errors.ErrAuthRequestNotFound
			}
			if err != nil {
				return storeErr(err)
			}
			if s.requestExpired(&existing) {
				return errors.ErrAuthRequestNotFound
			}
			return errors.ErrRequestDecided
		}
		if grant != nil {
			if err := tx.Create(grant).Error; err != nil {
				return storeErr(err)
			}
		}
		if err := tx.Where("id = ?", id).First(&decided).Error; err != nil {
			return storeErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &decided, nil
}

func (s *requestRepo) GrantCode(ctx context.Context, id string, grant *models.AccessGrant) (*models.AuthRequest, error) {
	now := time.Now().UTC()
	return s.finalize(ctx, id, map[string]interface{}{
		"status":     constants.AuthRequestGranted,
		"grant_code": grant.Code,
		"decided_at": now,
	}, grant)
}

func (s *requestRepo) GrantToken(ctx context.Context, id string, token string) (*models.AuthRequest, error) {
	now := time.Now().UTC()
	return s.finalize(ctx, id, map[string]interface{}{
		"status":       constants.AuthRequestGranted,
		"access_token": token,
		"decided_at":   now,
	}, nil)
}

func (s *requestRepo) Deny(ctx context.Context, id string) (*models.AuthRequest, error) {
	now := time.Now().UTC()
	return s.finalize(ctx, id, map[string]interface{}{
		"status":     constants.AuthRequestDenied,
		"decided_at": now,
	}, nil)
}

// ================================================================================
// GrantRepository
// ================================================================================

type grantRepo struct{ *store }

var _ repository.GrantRepository = (*grantRepo)(nil)

func (s *grantRepo) FindByCode(ctx context.Context, code string) (*models.AccessGrant, error) {
	var grant models.AccessGrant
	err := s.db.WithContext(ctx).Where("code = ?", strings.ToLower(code)).First(&grant).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.ErrGrantNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if grant.IsExpired() {
		return nil, errors.ErrGrantNotFound
	}
	return &grant, nil
}

func (s *grantRepo) Redeem(ctx context.Context, code string) (*models.AccessGrant, error) {
	folded := strings.ToLower(code)
	now := time.Now().UTC()
	var redeemed models.AccessGrant

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AccessGrant{}).
			Where("code = ? AND redeemed_at IS NULL AND expires_at > ?", folded, now).
			Update("redeemed_at", now)
		if res.Error != nil {
			return storeErr(res.Error)
		}
		if res.RowsAffected == 0 {
			var existing models.AccessGrant
			err := tx.Where("code = ?", folded).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				return errors.ErrGrantNotFound
			}
			if err != nil {
				return storeErr(err)
			}
			if existing.IsExpired() {
				return errors.ErrGrantNotFound
			}
			return errors.ErrGrantConsumed
		}
		if err := tx.Where("code = ?", folded).First(&redeemed).Error; err != nil {
			return storeErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &redeemed, nil
}

// ================================================================================
// TokenRepository
// ================================================================================

type tokenRepo struct{ *store }

var _ repository.TokenRepository = (*tokenRepo)(nil)

func (s *tokenRepo) Create(ctx context.Context, token *models.AccessToken) error {
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *tokenRepo) FindByToken(ctx context.Context, value string) (*models.AccessToken, error) {
	var token models.AccessToken
	err := s.db.WithContext(ctx).Where("token = ?", strings.ToLower(value)).First(&token).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.ErrTokenNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &token, nil
}

func (s *tokenRepo) FindByResource(ctx context.Context, resource string) ([]*models.AccessToken, error) {
	var tokens []*models.AccessToken
	err := s.db.WithContext(ctx).
		Where("resource = ?", resource).
		Order("created_at DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return tokens, nil
}

func (s *tokenRepo) GetOrCreate(ctx context.Context, resource, clientID, scope string, ttl time.Duration) (*models.AccessToken, error) {
	now := time.Now().UTC()
	var result *models.AccessToken

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.AccessToken
		err := tx.Where(
			"resource = ? AND client_id = ? AND scope = ? AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)",
			resource, clientID, scope, now,
		).Order("created_at DESC").First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return storeErr(err)
		}

		minted, err := models.NewAccessToken(resource, clientID, scope, ttl)
		if err != nil {
			return err
		}
		if err := tx.Create(minted).Error; err != nil {
			return storeErr(err)
		}
		result = minted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *tokenRepo) Touch(ctx context.Context, value string) error {
	folded := strings.ToLower(value)
	res := s.db.WithContext(ctx).
		Model(&models.AccessToken{}).
		Where("token = ?", folded).
		Update("last_access_at", time.Now().UTC())
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.ErrTokenNotFound
	}
	return nil
}

func (s *tokenRepo) Revoke(ctx context.Context, value string) error {
	folded := strings.ToLower(value)
	res := s.db.WithContext(ctx).
		Model(&models.AccessToken{}).
		Where("token = ? AND revoked_at IS NULL", folded).
		Update("revoked_at", time.Now().UTC())
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindByToken(ctx, folded); err != nil {
			return err
		}
	}
	return nil
}
