package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence layer for audit events. There is no
// Update or Delete: audit rows are append-only.
type Repository interface {
	Write(ctx context.Context, event Event) error

	// List returns a tenant's audit trail, most recent first, optionally
	// filtered to one workflow instance or business key.
	List(ctx context.Context, tenantID uuid.UUID, workflowInstanceID *uuid.UUID, businessKey string) ([]Event, error)
}
