package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrEntryNotFound is returned when no Entry matches a lookup.
var ErrEntryNotFound = errors.New("catalog entry not found")

// ErrServiceTaskNotFound is returned when no ServiceTask matches a binding lookup.
var ErrServiceTaskNotFound = errors.New("catalog service task not found")

// Repository defines the persistence layer for the capability catalog. The
// discovery sync process that populates it is out of scope (§1); ReplaceAll
// is the atomic primitive such a process would call.
type Repository interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]Entry, error)
	Get(ctx context.Context, tenantID uuid.UUID, externalID string) (*Entry, error)

	// FindServiceTask resolves a ServiceTask binding by catalog entry and
	// service task external ids, the lookup the Service-Task Dispatcher's
	// auto-bind and explicit-bind paths both use.
	FindServiceTask(ctx context.Context, tenantID uuid.UUID, catalogEntryExternalID, serviceTaskExternalID string) (*ServiceTask, error)

	// GetServiceTaskByID resolves a ServiceTask by its own id, the lookup
	// the Dispatcher uses to recover a bound task's target URL once it
	// already holds the internal catalog_service_task_id.
	GetServiceTaskByID(ctx context.Context, tenantID, id uuid.UUID) (*ServiceTask, error)

	// ReplaceAll atomically deletes every Entry/ServiceTask for tenantID
	// and bulk-inserts the given set, the primitive a future discovery
	// sync would use to replace the catalog wholesale.
	ReplaceAll(ctx context.Context, tenantID uuid.UUID, entries []Entry, tasks []ServiceTask) error
}
