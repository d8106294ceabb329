package usertask

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/interpreter"
)

// Materialize idempotently inserts a Task row for each snapshot not
// already present for this instance, firing a best-effort notification
// for each newly materialized row. Shared by the Instance Orchestrator
// (after starting an instance) and the Service-Task Dispatcher (after a
// resume that parks at new user tasks). logger may be nil.
func Materialize(ctx context.Context, repo Repository, tenantID, workflowInstanceID uuid.UUID, snapshots []interpreter.UserTaskSnapshot, logger *zap.Logger) error {
	existing, err := repo.ExistingTaskIDs(ctx, tenantID, workflowInstanceID)
	if err != nil {
		return fmt.Errorf("list existing user task ids: %w", err)
	}

	for _, snap := range snapshots {
		if existing[snap.TaskID] {
			continue
		}
		task := &Task{
			TenantID:           tenantID,
			WorkflowInstanceID: workflowInstanceID,
			TaskID:             snap.TaskID,
			Name:               snap.Name,
			TaskType:           snap.TaskType,
		}
		if err := repo.Create(ctx, task); err != nil {
			return fmt.Errorf("materialize user task %s: %w", snap.TaskID, err)
		}
		notify(logger, tenantID, workflowInstanceID, snap.TaskID, snap.Name)
	}
	return nil
}

// notify is the external log/notification collaborator this function
// fires at, best-effort: a dropped or delayed notification never fails
// materialization.
func notify(logger *zap.Logger, tenantID, workflowInstanceID uuid.UUID, taskID, name string) {
	if logger == nil {
		return
	}
	logger.Info("user_task_notification",
		zap.String("tenant_id", tenantID.String()),
		zap.String("workflow_instance_id", workflowInstanceID.String()),
		zap.String("task_id", taskID),
		zap.String("name", name),
	)
}
