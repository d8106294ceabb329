package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/tenant"
)

// Repository implements tenant.Repository for PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL repository.
// Accepts interface{} to satisfy provider abstraction, type asserts to *pgxpool.Pool.
func New(pool interface{}, logger *zap.Logger) (*Repository, error) {
	pgPool, ok := pool.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("expected *pgxpool.Pool, got %T", pool)
	}
	return &Repository{
		pool:   pgPool,
		logger: logger.With(zap.String("component", "tenant-postgres-repository")),
	}, nil
}

const getTenantByIDQuery = `
SELECT id, slug, COALESCE(discovery_url, ''), created_at
FROM tenants
WHERE id = $1
`

func (r *Repository) GetTenantByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	r.logger.Debug("getting tenant by id", zap.String("id", id.String()))

	t := &tenant.Tenant{}
	err := r.pool.QueryRow(ctx, getTenantByIDQuery, id).Scan(
		&t.ID, &t.Slug, &t.DiscoveryURL, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by id: %w", err)
	}
	return t, nil
}

const getTenantBySlugQuery = `
SELECT id, slug, COALESCE(discovery_url, ''), created_at
FROM tenants
WHERE slug = $1
`

func (r *Repository) GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	r.logger.Debug("getting tenant by slug", zap.String("slug", slug))

	t := &tenant.Tenant{}
	err := r.pool.QueryRow(ctx, getTenantBySlugQuery, slug).Scan(
		&t.ID, &t.Slug, &t.DiscoveryURL, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return t, nil
}

const setDiscoveryURLQuery = `
UPDATE tenants SET discovery_url = $2
WHERE id = $1
RETURNING id
`

func (r *Repository) SetDiscoveryURL(ctx context.Context, tenantID uuid.UUID, discoveryURL string) error {
	r.logger.Debug("setting discovery url",
		zap.String("tenant_id", tenantID.String()),
		zap.String("discovery_url", discoveryURL))

	var returnedID uuid.UUID
	err := r.pool.QueryRow(ctx, setDiscoveryURLQuery, tenantID, discoveryURL).Scan(&returnedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tenant.ErrTenantNotFound
		}
		return fmt.Errorf("set discovery url: %w", err)
	}
	return nil
}

const getAPIKeyByHashQuery = `
SELECT id, tenant_id, key_hash, COALESCE(label, ''), created_at
FROM tenant_api_keys
WHERE key_hash = $1
`

func (r *Repository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*tenant.APIKey, error) {
	r.logger.Debug("getting api key by hash")

	k := &tenant.APIKey{}
	err := r.pool.QueryRow(ctx, getAPIKeyByHashQuery, keyHash).Scan(
		&k.ID, &k.TenantID, &k.KeyHash, &k.Label, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return k, nil
}
