package instance

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no Instance matches a lookup.
var ErrNotFound = errors.New("workflow instance not found")

// Repository defines the persistence layer for workflow instances.
type Repository interface {
	Create(ctx context.Context, inst *Instance) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Instance, error)

	// UpdateState persists the result of an interpreter advance: the new
	// status, serialized state, and error message (empty when none).
	UpdateState(ctx context.Context, tenantID, id uuid.UUID, status Status, serializedState map[string]interface{}, errorMessage string) error
}
