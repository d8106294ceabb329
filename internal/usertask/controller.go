package usertask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/canonicaljson"
)

// Controller implements the User-Task Controller: completion under a row
// lock, request hashing, and idempotency-key replay, all inside one
// transaction — mirroring UserTaskCompleteView's `transaction.atomic()`
// block.
type Controller struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewController builds a Controller over a shared connection pool.
func NewController(pool *pgxpool.Pool, logger *zap.Logger) *Controller {
	return &Controller{pool: pool, logger: logger.With(zap.String("component", "user-task-controller"))}
}

const lockTaskQuery = `
SELECT id, tenant_id, workflow_instance_id, task_id, name, task_type, status,
       actor_identity, action, action_data, completed_at, created_at, updated_at
FROM user_tasks
WHERE tenant_id = $1 AND id = $2
FOR UPDATE
`

const lockIdempotencyQuery = `
SELECT user_task_id, request_hash, response_payload
FROM user_task_completion_idempotency
WHERE tenant_id = $1 AND idempotency_key = $2
FOR UPDATE
`

const insertIdempotencyQuery = `
INSERT INTO user_task_completion_idempotency (id, tenant_id, user_task_id, idempotency_key, request_hash, response_payload)
VALUES ($1, $2, $3, $4, $5, $6)
`

const completeTaskQuery = `
UPDATE user_tasks
SET status = 'completed', actor_identity = $3, action = $4, action_data = $5, completed_at = $6, updated_at = $6
WHERE tenant_id = $1 AND id = $2
`

const insertAuditQuery = `
INSERT INTO audit_events
  (id, tenant_id, event_type, actor_identity, correlation_id, business_key, workflow_instance_id, payload)
SELECT $1, $2, 'user_task_complete', $3, i.correlation_id, i.business_key, i.id, $4
FROM workflow_instances i
WHERE i.id = $5
`

// Complete runs the full completion algorithm for one user task.
func (c *Controller) Complete(ctx context.Context, tenantID, taskID uuid.UUID, req CompleteRequest) (*Task, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	task, err := scanLockedTask(tx.QueryRow(ctx, lockTaskQuery, tenantID, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock user task: %w", err)
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	requestHash, err := canonicaljson.Hash(map[string]interface{}{
		"actor":  req.Actor,
		"action": req.Action,
		"data":   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("hash completion request: %w", err)
	}

	if req.IdempotencyKey != "" {
		var existingTaskID uuid.UUID
		var existingHash string
		var existingResponse []byte
		err := tx.QueryRow(ctx, lockIdempotencyQuery, tenantID, req.IdempotencyKey).Scan(&existingTaskID, &existingHash, &existingResponse)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lock idempotency record: %w", err)
		}
		if err == nil {
			if existingTaskID != taskID || existingHash != requestHash {
				return nil, ErrIdempotencyConflict
			}
			var replay Task
			if err := json.Unmarshal(existingResponse, &replay); err != nil {
				return nil, fmt.Errorf("decode idempotent response: %w", err)
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit replay transaction: %w", err)
			}
			return &replay, nil
		}
	}

	if task.Status == StatusCompleted {
		if req.IdempotencyKey != "" {
			if err := storeIdempotency(ctx, tx, tenantID, taskID, req.IdempotencyKey, requestHash, task); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit already-completed transaction: %w", err)
		}
		return task, nil
	}

	now := time.Now().UTC()
	actionData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode action data: %w", err)
	}
	if _, err := tx.Exec(ctx, completeTaskQuery, tenantID, taskID, req.Actor, req.Action, actionData, now); err != nil {
		return nil, fmt.Errorf("complete user task: %w", err)
	}

	auditPayload, err := json.Marshal(map[string]interface{}{"task_id": task.TaskID, "action": req.Action, "action_data": payload})
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}
	if _, err := tx.Exec(ctx, insertAuditQuery, uuid.New(), tenantID, req.Actor, auditPayload, task.WorkflowInstanceID); err != nil {
		return nil, fmt.Errorf("write user_task_complete audit event: %w", err)
	}

	task.Status = StatusCompleted
	task.ActorIdentity = req.Actor
	task.Action = req.Action
	task.ActionData = payload
	task.CompletedAt = &now
	task.UpdatedAt = now

	if req.IdempotencyKey != "" {
		if err := storeIdempotency(ctx, tx, tenantID, taskID, req.IdempotencyKey, requestHash, task); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete transaction: %w", err)
	}
	return task, nil
}

func storeIdempotency(ctx context.Context, tx pgx.Tx, tenantID, taskID uuid.UUID, key, requestHash string, response *Task) error {
	encoded, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode idempotent response: %w", err)
	}
	_, err = tx.Exec(ctx, insertIdempotencyQuery, uuid.New(), tenantID, taskID, key, requestHash, encoded)
	if err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLockedTask(row rowScanner) (*Task, error) {
	var t Task
	var status string
	var actionData []byte
	err := row.Scan(&t.ID, &t.TenantID, &t.WorkflowInstanceID, &t.TaskID, &t.Name, &t.TaskType, &status,
		&t.ActorIdentity, &t.Action, &actionData, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	if len(actionData) > 0 {
		if err := json.Unmarshal(actionData, &t.ActionData); err != nil {
			return nil, fmt.Errorf("decode action_data: %w", err)
		}
	}
	return &t, nil
}
