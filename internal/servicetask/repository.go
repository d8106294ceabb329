package servicetask

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no Task matches a lookup.
	ErrNotFound = errors.New("service task not found")

	// ErrIdempotencyConflict is returned when a callback idempotency key
	// is reused against a different task or a different request body.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")

	// ErrCatalogBindingConflict is returned when a start request supplies
	// catalog/service-task ids that disagree with an already-bound task.
	ErrCatalogBindingConflict = errors.New("catalog binding conflict")

	// ErrMissingCatalogBinding is returned when a task has no existing
	// binding and none can be resolved from the request or placeholders.
	ErrMissingCatalogBinding = errors.New("missing catalog binding")

	// ErrUnauthorizedCallback is returned when callback HMAC verification fails.
	ErrUnauthorizedCallback = errors.New("unauthorized callback")

	// ErrCallbackBadRequest is returned when a callback is missing its
	// timestamp or signature header.
	ErrCallbackBadRequest = errors.New("callback missing timestamp or signature")
)

// Repository defines the read/list/materialize side of service task
// persistence. The start/callback write paths live on Dispatcher, which
// needs the row lock, HTTP dispatch, and idempotency dance together.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Task, error)
	List(ctx context.Context, tenantID uuid.UUID, workflowInstanceID *uuid.UUID) ([]Task, error)

	// Create idempotently materializes a pending task row: a second call
	// with the same (tenant, workflow_instance, task_id) is a no-op.
	Create(ctx context.Context, task *Task) error

	ExistingTaskIDs(ctx context.Context, tenantID, workflowInstanceID uuid.UUID) (map[string]bool, error)
}
