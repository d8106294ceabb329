// Package servicetask models automated task rows materialized while a
// workflow instance waits at a BPMN ServiceTask, and the dispatcher that
// drives them against tenant-hosted HTTP endpoints, synchronously or via
// callback.
package servicetask

import (
	"time"

	"github.com/google/uuid"
)

// Status is a ServiceTask's lifecycle position.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ExecutionMode selects whether a dispatch resumes the workflow inline
// (sync) or parks until a callback arrives (async).
type ExecutionMode string

const (
	ModeSync  ExecutionMode = "sync"
	ModeAsync ExecutionMode = "async"
)

// Task is one materialized automated dispatch point.
type Task struct {
	ID                 uuid.UUID              `json:"id"`
	TenantID           uuid.UUID              `json:"tenant_id"`
	WorkflowInstanceID uuid.UUID              `json:"workflow_instance_id"`
	TaskID             string                 `json:"task_id"`
	Name               string                 `json:"name,omitempty"`
	TaskType           string                 `json:"task_type,omitempty"`
	ElementID          string                 `json:"element_id,omitempty"`
	ElementName        string                 `json:"element_name,omitempty"`
	Status             Status                 `json:"status"`
	ExecutionMode       ExecutionMode          `json:"execution_mode,omitempty"`
	CatalogServiceTaskID *uuid.UUID            `json:"catalog_service_task_id,omitempty"`
	RequestPayload     map[string]interface{} `json:"request_payload,omitempty"`
	ResponsePayload     interface{}            `json:"response_payload,omitempty"`
	LastError           string                 `json:"last_error,omitempty"`
	StartedAt           *time.Time             `json:"started_at,omitempty"`
	CompletedAt          *time.Time             `json:"completed_at,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`

	// targetURL carries the resolved binding's dispatch URL from the
	// lock/stamp transaction through to the outbound HTTP call, without
	// a second catalog lookup or a database round trip under no lock.
	targetURL string
}

// StartRequest is the input to Dispatcher.Start.
type StartRequest struct {
	Payload              map[string]interface{}
	ExecutionMode        ExecutionMode
	CallbackURL          string
	CatalogEntryID       string
	CatalogServiceTaskID string
}

// CallbackRequest is the input to Dispatcher.Callback.
type CallbackRequest struct {
	RawAPIKey      string
	Body           []byte
	Timestamp      string
	Signature      string
	IdempotencyKey string
}
