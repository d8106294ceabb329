package workflowdef

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrDefinitionNotFound is returned when no Definition matches a process key.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrVersionNotFound is returned when no Version matches a (process_key, version) pair.
	ErrVersionNotFound = errors.New("workflow definition version not found")
)

// Repository defines the persistence layer for workflow definitions and
// their versions, scoped by tenant.
type Repository interface {
	// GetByProcessKey finds a tenant's Definition by its process key.
	GetByProcessKey(ctx context.Context, tenantID uuid.UUID, processKey string) (*Definition, error)

	// GetVersion finds a specific version of a tenant's definition.
	GetVersion(ctx context.Context, tenantID uuid.UUID, processKey string, version int) (*Version, error)

	// GetVersionByID finds a version by its own id, the lookup the
	// Service-Task Dispatcher uses to recover a running instance's BPMN
	// XML and catalog binding placeholders from its definition_version_id.
	GetVersionByID(ctx context.Context, tenantID, versionID uuid.UUID) (*Version, error)

	// UploadVersion get-or-creates the Definition for processKey, assigns
	// the next monotonic version number under lock, and persists a new
	// Version row with the given BPMN XML and extracted snapshot data. It
	// is the single transactional unit backing the upload endpoint.
	UploadVersion(ctx context.Context, tenantID uuid.UUID, processKey, name, bpmnXML string, formSchemaRefs, catalogBindingPlaceholders []interface{}) (*Version, error)
}
