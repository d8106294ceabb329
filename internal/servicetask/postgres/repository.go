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

	"github.com/quickwind/orchestrator/internal/servicetask"
)

// Repository implements servicetask.Repository for PostgreSQL. The row
// lock, HTTP dispatch, and idempotency logic that drives a task through
// its lifecycle live on Dispatcher, which holds a Repository for the
// plain read/list/materialize paths.
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
		logger: logger.With(zap.String("component", "servicetask-postgres-repository")),
	}, nil
}

const getByIDQuery = `
SELECT id, tenant_id, workflow_instance_id, task_id, name, task_type, element_id, element_name,
       status, execution_mode, catalog_service_task_id, request_payload, response_payload,
       last_error, started_at, completed_at, created_at, updated_at
FROM service_tasks
WHERE tenant_id = $1 AND id = $2
`

func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*servicetask.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, getByIDQuery, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, servicetask.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service task: %w", err)
	}
	return t, nil
}

func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, workflowInstanceID *uuid.UUID) ([]servicetask.Task, error) {
	query := `
SELECT id, tenant_id, workflow_instance_id, task_id, name, task_type, element_id, element_name,
       status, execution_mode, catalog_service_task_id, request_payload, response_payload,
       last_error, started_at, completed_at, created_at, updated_at
FROM service_tasks
WHERE tenant_id = $1
  AND ($2::uuid IS NULL OR workflow_instance_id = $2)
ORDER BY created_at
`
	rows, err := r.pool.Query(ctx, query, tenantID, workflowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("list service tasks: %w", err)
	}
	defer rows.Close()

	var tasks []servicetask.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

const createQuery = `
INSERT INTO service_tasks (id, tenant_id, workflow_instance_id, task_id, name, task_type, element_id, element_name, catalog_service_task_id, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending')
ON CONFLICT (tenant_id, workflow_instance_id, task_id) DO NOTHING
RETURNING id, created_at, updated_at
`

func (r *Repository) Create(ctx context.Context, task *servicetask.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.Status = servicetask.StatusPending
	err := r.pool.QueryRow(ctx, createQuery, task.ID, task.TenantID, task.WorkflowInstanceID, task.TaskID,
		task.Name, task.TaskType, task.ElementID, task.ElementName, task.CatalogServiceTaskID).
		Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already materialized by a concurrent caller; idempotent no-op.
		return nil
	}
	if err != nil {
		return fmt.Errorf("create service task: %w", err)
	}
	return nil
}

func (r *Repository) ExistingTaskIDs(ctx context.Context, tenantID, workflowInstanceID uuid.UUID) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT task_id FROM service_tasks WHERE tenant_id = $1 AND workflow_instance_id = $2`, tenantID, workflowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("list existing service task ids: %w", err)
	}
	defer rows.Close()

	existing := map[string]bool{}
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, fmt.Errorf("scan existing task id: %w", err)
		}
		existing[taskID] = true
	}
	return existing, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*servicetask.Task, error) {
	var t servicetask.Task
	var status, executionMode string
	var requestPayload, responsePayload []byte
	err := row.Scan(&t.ID, &t.TenantID, &t.WorkflowInstanceID, &t.TaskID, &t.Name, &t.TaskType, &t.ElementID, &t.ElementName,
		&status, &executionMode, &t.CatalogServiceTaskID, &requestPayload, &responsePayload,
		&t.LastError, &t.StartedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = servicetask.Status(status)
	t.ExecutionMode = servicetask.ExecutionMode(executionMode)
	if len(requestPayload) > 0 {
		if err := json.Unmarshal(requestPayload, &t.RequestPayload); err != nil {
			return nil, fmt.Errorf("decode request_payload: %w", err)
		}
	}
	if len(responsePayload) > 0 {
		if err := json.Unmarshal(responsePayload, &t.ResponsePayload); err != nil {
			return nil, fmt.Errorf("decode response_payload: %w", err)
		}
	}
	return &t, nil
}
