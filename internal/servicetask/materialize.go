package servicetask

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quickwind/orchestrator/internal/catalog"
	"github.com/quickwind/orchestrator/internal/interpreter"
)

// Materialize idempotently inserts a Task row for each snapshot not
// already present for this instance, attempting the auto-binding lookup
// from the Start algorithm's step 2(c) for each new row so a task already
// carries a resolved binding by the time it is started. It is shared by
// the Instance Orchestrator (after starting an instance) and Dispatcher
// (after a sync/callback resume).
func Materialize(ctx context.Context, repo Repository, catalogRepo catalog.Repository, tenantID, workflowInstanceID uuid.UUID, snapshots []interpreter.ServiceTaskSnapshot, catalogBindingPlaceholders []interface{}) error {
	existing, err := repo.ExistingTaskIDs(ctx, tenantID, workflowInstanceID)
	if err != nil {
		return fmt.Errorf("list existing service task ids: %w", err)
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
			ElementID:          snap.ElementID,
			ElementName:        snap.ElementName,
		}
		if bound, ok := resolveAutoBinding(catalogBindingPlaceholders, snap.ElementID, snap.ElementName); ok {
			st, err := catalogRepo.FindServiceTask(ctx, tenantID, bound.CatalogEntryID, bound.ServiceTaskID)
			if err != nil && !errors.Is(err, catalog.ErrServiceTaskNotFound) && !errors.Is(err, catalog.ErrEntryNotFound) {
				return fmt.Errorf("resolve auto-binding for %s: %w", snap.TaskID, err)
			}
			if st != nil {
				task.CatalogServiceTaskID = &st.ID
			}
		}
		if err := repo.Create(ctx, task); err != nil {
			return fmt.Errorf("materialize service task %s: %w", snap.TaskID, err)
		}
	}
	return nil
}
