package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/catalog"
)

// Repository implements catalog.Repository for PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL repository.
func New(pool interface{}, logger *zap.Logger) (*Repository, error) {
	pgPool, ok := pool.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("expected *pgxpool.Pool, got %T", pool)
	}
	return &Repository{
		pool:   pgPool,
		logger: logger.With(zap.String("component", "catalog-postgres-repository")),
	}, nil
}

const listEntriesQuery = `
SELECT id, tenant_id, external_id, name, description, category, service_url, metadata
FROM capability_catalog_entries
WHERE tenant_id = $1
ORDER BY external_id
`

func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]catalog.Entry, error) {
	rows, err := r.pool.Query(ctx, listEntriesQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer rows.Close()

	var entries []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ExternalID, &e.Name, &e.Description, &e.Category, &e.ServiceURL, &metadata); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode catalog entry metadata: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const getEntryQuery = `
SELECT id, tenant_id, external_id, name, description, category, service_url, metadata
FROM capability_catalog_entries
WHERE tenant_id = $1 AND external_id = $2
`

func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID, externalID string) (*catalog.Entry, error) {
	var e catalog.Entry
	var metadata []byte
	err := r.pool.QueryRow(ctx, getEntryQuery, tenantID, externalID).Scan(
		&e.ID, &e.TenantID, &e.ExternalID, &e.Name, &e.Description, &e.Category, &e.ServiceURL, &metadata,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog entry: %w", err)
	}
	if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
		return nil, fmt.Errorf("decode catalog entry metadata: %w", err)
	}
	return &e, nil
}

const findServiceTaskQuery = `
SELECT t.id, t.tenant_id, t.catalog_entry_id, e.external_id, t.external_id, t.name, t.url
FROM catalog_service_tasks t
JOIN capability_catalog_entries e ON e.id = t.catalog_entry_id
WHERE t.tenant_id = $1 AND e.external_id = $2 AND t.external_id = $3
`

func (r *Repository) FindServiceTask(ctx context.Context, tenantID uuid.UUID, catalogEntryExternalID, serviceTaskExternalID string) (*catalog.ServiceTask, error) {
	var s catalog.ServiceTask
	err := r.pool.QueryRow(ctx, findServiceTaskQuery, tenantID, catalogEntryExternalID, serviceTaskExternalID).Scan(
		&s.ID, &s.TenantID, &s.CatalogEntryID, &s.EntryExternalID, &s.ExternalID, &s.Name, &s.URL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrServiceTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find catalog service task: %w", err)
	}
	return &s, nil
}

const getServiceTaskByIDQuery = `
SELECT t.id, t.tenant_id, t.catalog_entry_id, e.external_id, t.external_id, t.name, t.url
FROM catalog_service_tasks t
JOIN capability_catalog_entries e ON e.id = t.catalog_entry_id
WHERE t.tenant_id = $1 AND t.id = $2
`

func (r *Repository) GetServiceTaskByID(ctx context.Context, tenantID, id uuid.UUID) (*catalog.ServiceTask, error) {
	var s catalog.ServiceTask
	err := r.pool.QueryRow(ctx, getServiceTaskByIDQuery, tenantID, id).Scan(
		&s.ID, &s.TenantID, &s.CatalogEntryID, &s.EntryExternalID, &s.ExternalID, &s.Name, &s.URL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrServiceTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog service task by id: %w", err)
	}
	return &s, nil
}

func (r *Repository) ReplaceAll(ctx context.Context, tenantID uuid.UUID, entries []catalog.Entry, tasks []catalog.ServiceTask) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace-all transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_service_tasks WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("clear catalog service tasks: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM capability_catalog_entries WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("clear catalog entries: %w", err)
	}

	entryIDs := make(map[string]uuid.UUID, len(entries))
	for _, e := range entries {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode catalog entry metadata: %w", err)
		}
		id := e.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO capability_catalog_entries (id, tenant_id, external_id, name, description, category, service_url, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, tenantID, e.ExternalID, e.Name, e.Description, e.Category, e.ServiceURL, metadata)
		if err != nil {
			return fmt.Errorf("insert catalog entry %s: %w", e.ExternalID, err)
		}
		entryIDs[e.ExternalID] = id
	}

	for _, s := range tasks {
		entryID, ok := entryIDs[s.EntryExternalID]
		if !ok {
			return fmt.Errorf("catalog service task %s references unknown entry %s", s.ExternalID, s.EntryExternalID)
		}
		id := s.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO catalog_service_tasks (id, tenant_id, catalog_entry_id, external_id, name, url)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, tenantID, entryID, s.ExternalID, s.Name, s.URL)
		if err != nil {
			return fmt.Errorf("insert catalog service task %s: %w", s.ExternalID, err)
		}
	}

	return tx.Commit(ctx)
}
