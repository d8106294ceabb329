// Package instance models workflow instances (one running/parked/finished
// execution of a WorkflowDefinitionVersion) and the orchestration glue that
// starts one, materializes the tasks it waits on, and persists the outcome
// of each advance.
package instance

import (
	"time"

	"github.com/google/uuid"
)

// Status mirrors the interpreter's run status, persisted alongside the
// instance's serialized state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Instance is one execution of a WorkflowDefinitionVersion.
type Instance struct {
	ID                  uuid.UUID              `json:"id"`
	TenantID            uuid.UUID              `json:"tenant_id"`
	DefinitionVersionID uuid.UUID              `json:"definition_version_id"`
	Status              Status                 `json:"status"`
	CorrelationID       string                 `json:"correlation_id,omitempty"`
	BusinessKey         string                 `json:"business_key,omitempty"`
	SerializedState     map[string]interface{} `json:"serialized_state"`
	ErrorMessage        string                 `json:"error_message,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}
