package usertask

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no Task matches a lookup.
	ErrNotFound = errors.New("user task not found")

	// ErrIdempotencyConflict is returned when an idempotency key is reused
	// against a different task or a different request payload.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)

// Repository defines the read/list side of user task persistence. The
// completion write path lives on Controller, which needs the row lock and
// idempotency dance inside one transaction.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Task, error)

	// List returns pending tasks for a tenant, optionally filtered to one
	// workflow instance.
	List(ctx context.Context, tenantID uuid.UUID, workflowInstanceID *uuid.UUID) ([]Task, error)

	// Create idempotently materializes a pending task row: a second call
	// with the same (tenant, workflow_instance, task_id) is a no-op.
	Create(ctx context.Context, task *Task) error

	// ExistingTaskIDs returns the task_ids already materialized for an
	// instance, the lookup the Instance Orchestrator uses to skip
	// re-inserting tasks it has already created.
	ExistingTaskIDs(ctx context.Context, tenantID, workflowInstanceID uuid.UUID) (map[string]bool, error)
}
