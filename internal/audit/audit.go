// Package audit records the append-only trail of domain events every
// mutating operation writes: definition uploads, instance starts, task
// completions and service-task dispatch outcomes.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the kinds of audit event the orchestrator writes.
type EventType string

const (
	EventDefinitionUpload    EventType = "definition_upload"
	EventInstanceStart       EventType = "instance_start"
	EventUserTaskComplete    EventType = "user_task_complete"
	EventServiceTaskStart    EventType = "service_task_start"
	EventServiceTaskCallback EventType = "service_task_callback"
)

// Event is one append-only audit row.
type Event struct {
	ID                  uuid.UUID              `json:"id"`
	TenantID            uuid.UUID              `json:"tenant_id"`
	EventType           EventType              `json:"event_type"`
	ActorIdentity       string                 `json:"actor_identity,omitempty"`
	CorrelationID       string                 `json:"correlation_id,omitempty"`
	BusinessKey         string                 `json:"business_key,omitempty"`
	WorkflowInstanceID  *uuid.UUID             `json:"workflow_instance_id,omitempty"`
	DefinitionVersionID *uuid.UUID             `json:"definition_version_id,omitempty"`
	Payload             map[string]interface{} `json:"payload,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
}
