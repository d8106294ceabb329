// Package usertask models human task rows materialized while a workflow
// instance waits at a BPMN UserTask, and the completion controller that
// resolves them.
package usertask

import (
	"time"

	"github.com/google/uuid"
)

// Status is a UserTask's lifecycle position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Task is one materialized waiting point for a human actor.
type Task struct {
	ID                 uuid.UUID              `json:"id"`
	TenantID           uuid.UUID              `json:"tenant_id"`
	WorkflowInstanceID uuid.UUID              `json:"workflow_instance_id"`
	TaskID             string                 `json:"task_id"`
	Name               string                 `json:"name,omitempty"`
	TaskType           string                 `json:"task_type,omitempty"`
	Status             Status                 `json:"status"`
	ActorIdentity      string                 `json:"actor_identity,omitempty"`
	Action             string                 `json:"action,omitempty"`
	ActionData         map[string]interface{} `json:"action_data,omitempty"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// CompleteRequest is the input to Controller.Complete.
type CompleteRequest struct {
	Actor          string
	Action         string
	Payload        map[string]interface{}
	IdempotencyKey string
}
