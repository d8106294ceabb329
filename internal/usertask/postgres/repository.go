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

	"github.com/quickwind/orchestrator/internal/usertask"
)

// Repository implements usertask.Repository for PostgreSQL.
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
		logger: logger.With(zap.String("component", "usertask-postgres-repository")),
	}, nil
}

const getByIDQuery = `
SELECT id, tenant_id, workflow_instance_id, task_id, name, task_type, status,
       actor_identity, action, action_data, completed_at, created_at, updated_at
FROM user_tasks
WHERE tenant_id = $1 AND id = $2
`

func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*usertask.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, getByIDQuery, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, usertask.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user task: %w", err)
	}
	return t, nil
}

func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, workflowInstanceID *uuid.UUID) ([]usertask.Task, error) {
	query := `
SELECT id, tenant_id, workflow_instance_id, task_id, name, task_type, status,
       actor_identity, action, action_data, completed_at, created_at, updated_at
FROM user_tasks
WHERE tenant_id = $1 AND status = 'pending'
  AND ($2::uuid IS NULL OR workflow_instance_id = $2)
ORDER BY created_at
`
	rows, err := r.pool.Query(ctx, query, tenantID, workflowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("list user tasks: %w", err)
	}
	defer rows.Close()

	var tasks []usertask.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

const createQuery = `
INSERT INTO user_tasks (id, tenant_id, workflow_instance_id, task_id, name, task_type, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending')
ON CONFLICT (tenant_id, workflow_instance_id, task_id) DO NOTHING
RETURNING id, created_at, updated_at
`

func (r *Repository) Create(ctx context.Context, task *usertask.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.Status = usertask.StatusPending
	err := r.pool.QueryRow(ctx, createQuery, task.ID, task.TenantID, task.WorkflowInstanceID, task.TaskID, task.Name, task.TaskType).
		Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already materialized by a concurrent caller; idempotent no-op.
		return nil
	}
	if err != nil {
		return fmt.Errorf("create user task: %w", err)
	}
	return nil
}

func (r *Repository) ExistingTaskIDs(ctx context.Context, tenantID, workflowInstanceID uuid.UUID) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT task_id FROM user_tasks WHERE tenant_id = $1 AND workflow_instance_id = $2`, tenantID, workflowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("list existing user task ids: %w", err)
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

func scanTask(row rowScanner) (*usertask.Task, error) {
	var t usertask.Task
	var status string
	var actionData []byte
	err := row.Scan(&t.ID, &t.TenantID, &t.WorkflowInstanceID, &t.TaskID, &t.Name, &t.TaskType, &status,
		&t.ActorIdentity, &t.Action, &actionData, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = usertask.Status(status)
	if len(actionData) > 0 {
		if err := json.Unmarshal(actionData, &t.ActionData); err != nil {
			return nil, fmt.Errorf("decode action_data: %w", err)
		}
	}
	return &t, nil
}
