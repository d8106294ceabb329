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

	"github.com/quickwind/orchestrator/internal/instance"
)

// Repository implements instance.Repository for PostgreSQL.
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
		logger: logger.With(zap.String("component", "instance-postgres-repository")),
	}, nil
}

const createQuery = `
INSERT INTO workflow_instances
  (id, tenant_id, definition_version_id, status, correlation_id, business_key, serialized_state, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at
`

func (r *Repository) Create(ctx context.Context, inst *instance.Instance) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	serializedState, err := json.Marshal(inst.SerializedState)
	if err != nil {
		return fmt.Errorf("encode serialized state: %w", err)
	}
	err = r.pool.QueryRow(ctx, createQuery,
		inst.ID, inst.TenantID, inst.DefinitionVersionID, string(inst.Status),
		inst.CorrelationID, inst.BusinessKey, serializedState, inst.ErrorMessage,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create workflow instance: %w", err)
	}
	return nil
}

const getByIDQuery = `
SELECT id, tenant_id, definition_version_id, status, correlation_id, business_key,
       serialized_state, error_message, created_at, updated_at
FROM workflow_instances
WHERE tenant_id = $1 AND id = $2
`

func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*instance.Instance, error) {
	var inst instance.Instance
	var status string
	var serializedState []byte
	err := r.pool.QueryRow(ctx, getByIDQuery, tenantID, id).Scan(
		&inst.ID, &inst.TenantID, &inst.DefinitionVersionID, &status, &inst.CorrelationID, &inst.BusinessKey,
		&serializedState, &inst.ErrorMessage, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, instance.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow instance: %w", err)
	}
	inst.Status = instance.Status(status)
	if err := json.Unmarshal(serializedState, &inst.SerializedState); err != nil {
		return nil, fmt.Errorf("decode serialized state: %w", err)
	}
	return &inst, nil
}

const updateStateQuery = `
UPDATE workflow_instances
SET status = $3, serialized_state = $4, error_message = $5, updated_at = now()
WHERE tenant_id = $1 AND id = $2
`

func (r *Repository) UpdateState(ctx context.Context, tenantID, id uuid.UUID, status instance.Status, serializedState map[string]interface{}, errorMessage string) error {
	encoded, err := json.Marshal(serializedState)
	if err != nil {
		return fmt.Errorf("encode serialized state: %w", err)
	}
	tag, err := r.pool.Exec(ctx, updateStateQuery, tenantID, id, string(status), encoded, errorMessage)
	if err != nil {
		return fmt.Errorf("update workflow instance state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return instance.ErrNotFound
	}
	return nil
}
