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

	"github.com/quickwind/orchestrator/internal/workflowdef"
)

// Repository implements workflowdef.Repository for PostgreSQL.
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
		logger: logger.With(zap.String("component", "workflowdef-postgres-repository")),
	}, nil
}

const getByProcessKeyQuery = `
SELECT id, tenant_id, process_key, COALESCE(name, ''), created_at, updated_at
FROM workflow_definitions
WHERE tenant_id = $1 AND process_key = $2
`

func (r *Repository) GetByProcessKey(ctx context.Context, tenantID uuid.UUID, processKey string) (*workflowdef.Definition, error) {
	var d workflowdef.Definition
	err := r.pool.QueryRow(ctx, getByProcessKeyQuery, tenantID, processKey).Scan(
		&d.ID, &d.TenantID, &d.ProcessKey, &d.Name, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflowdef.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow definition by process key: %w", err)
	}
	return &d, nil
}

const getVersionQuery = `
SELECT v.id, v.tenant_id, v.definition_id, d.process_key, v.version, v.bpmn_xml,
       v.form_schema_refs, v.catalog_binding_placeholders, v.created_at
FROM workflow_definition_versions v
JOIN workflow_definitions d ON d.id = v.definition_id
WHERE v.tenant_id = $1 AND d.process_key = $2 AND v.version = $3
`

func (r *Repository) GetVersion(ctx context.Context, tenantID uuid.UUID, processKey string, version int) (*workflowdef.Version, error) {
	var v workflowdef.Version
	var formSchemaRefs, catalogBindings []byte
	err := r.pool.QueryRow(ctx, getVersionQuery, tenantID, processKey, version).Scan(
		&v.ID, &v.TenantID, &v.DefinitionID, &v.ProcessKey, &v.Version, &v.BPMNXML,
		&formSchemaRefs, &catalogBindings, &v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflowdef.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow definition version: %w", err)
	}
	if err := json.Unmarshal(formSchemaRefs, &v.FormSchemaRefs); err != nil {
		return nil, fmt.Errorf("decode form_schema_refs: %w", err)
	}
	if err := json.Unmarshal(catalogBindings, &v.CatalogBindingPlaceholders); err != nil {
		return nil, fmt.Errorf("decode catalog_binding_placeholders: %w", err)
	}
	return &v, nil
}

const getVersionByIDQuery = `
SELECT v.id, v.tenant_id, v.definition_id, d.process_key, v.version, v.bpmn_xml,
       v.form_schema_refs, v.catalog_binding_placeholders, v.created_at
FROM workflow_definition_versions v
JOIN workflow_definitions d ON d.id = v.definition_id
WHERE v.tenant_id = $1 AND v.id = $2
`

func (r *Repository) GetVersionByID(ctx context.Context, tenantID, versionID uuid.UUID) (*workflowdef.Version, error) {
	var v workflowdef.Version
	var formSchemaRefs, catalogBindings []byte
	err := r.pool.QueryRow(ctx, getVersionByIDQuery, tenantID, versionID).Scan(
		&v.ID, &v.TenantID, &v.DefinitionID, &v.ProcessKey, &v.Version, &v.BPMNXML,
		&formSchemaRefs, &catalogBindings, &v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflowdef.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow definition version by id: %w", err)
	}
	if err := json.Unmarshal(formSchemaRefs, &v.FormSchemaRefs); err != nil {
		return nil, fmt.Errorf("decode form_schema_refs: %w", err)
	}
	if err := json.Unmarshal(catalogBindings, &v.CatalogBindingPlaceholders); err != nil {
		return nil, fmt.Errorf("decode catalog_binding_placeholders: %w", err)
	}
	return &v, nil
}

const getOrCreateDefinitionQuery = `
INSERT INTO workflow_definitions (id, tenant_id, process_key, name)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant_id, process_key) DO UPDATE SET process_key = EXCLUDED.process_key
RETURNING id
`

// lockLatestVersionQuery reads the current highest version. PostgreSQL
// rejects FOR UPDATE alongside an aggregate; concurrent uploads are
// serialized instead by the row lock that getOrCreateDefinitionQuery's
// upsert holds on the definition row until commit.
const lockLatestVersionQuery = `
SELECT COALESCE(MAX(version), 0)
FROM workflow_definition_versions
WHERE tenant_id = $1 AND definition_id = $2
`

const insertVersionQuery = `
INSERT INTO workflow_definition_versions
  (id, tenant_id, definition_id, version, bpmn_xml, form_schema_refs, catalog_binding_placeholders)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at
`

// UploadVersion runs the get-or-create-definition + next-version-under-lock
// + insert-version sequence inside a single transaction, matching the
// reference implementation's `transaction.atomic()` block.
func (r *Repository) UploadVersion(ctx context.Context, tenantID uuid.UUID, processKey, name, bpmnXML string, formSchemaRefs, catalogBindingPlaceholders []interface{}) (*workflowdef.Version, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin upload transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var definitionID uuid.UUID
	if err := tx.QueryRow(ctx, getOrCreateDefinitionQuery, uuid.New(), tenantID, processKey, name).Scan(&definitionID); err != nil {
		return nil, fmt.Errorf("get or create workflow definition: %w", err)
	}

	var latestVersion int
	if err := tx.QueryRow(ctx, lockLatestVersionQuery, tenantID, definitionID).Scan(&latestVersion); err != nil {
		return nil, fmt.Errorf("lock latest workflow definition version: %w", err)
	}
	nextVersion := latestVersion + 1

	formSchemaRefsJSON, err := json.Marshal(formSchemaRefs)
	if err != nil {
		return nil, fmt.Errorf("encode form_schema_refs: %w", err)
	}
	catalogBindingsJSON, err := json.Marshal(catalogBindingPlaceholders)
	if err != nil {
		return nil, fmt.Errorf("encode catalog_binding_placeholders: %w", err)
	}

	v := &workflowdef.Version{
		ID:                         uuid.New(),
		TenantID:                   tenantID,
		DefinitionID:               definitionID,
		ProcessKey:                 processKey,
		Version:                    nextVersion,
		BPMNXML:                    bpmnXML,
		FormSchemaRefs:             formSchemaRefs,
		CatalogBindingPlaceholders: catalogBindingPlaceholders,
	}
	if err := tx.QueryRow(ctx, insertVersionQuery, v.ID, tenantID, definitionID, nextVersion, bpmnXML, formSchemaRefsJSON, catalogBindingsJSON).Scan(&v.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert workflow definition version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit upload transaction: %w", err)
	}
	return v, nil
}
