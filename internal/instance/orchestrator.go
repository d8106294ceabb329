package instance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/audit"
	"github.com/quickwind/orchestrator/internal/catalog"
	"github.com/quickwind/orchestrator/internal/interpreter"
	"github.com/quickwind/orchestrator/internal/servicetask"
	"github.com/quickwind/orchestrator/internal/usertask"
	"github.com/quickwind/orchestrator/internal/workflowdef"
)

// Orchestrator is the Instance Orchestrator: it drives the interpreter
// through start, persists the resulting Instance, writes the
// instance_start audit event, and materializes whatever UserTasks and
// ServiceTasks the run parked at. Neither the usertask nor the
// servicetask package imports this one.
type Orchestrator struct {
	instanceRepo Repository
	userTaskRepo usertask.Repository
	taskRepo     servicetask.Repository
	catalogRepo  catalog.Repository
	defRepo      workflowdef.Repository
	auditRepo    audit.Repository
	logger       *zap.Logger
}

// NewOrchestrator builds an Orchestrator over its collaborator repositories.
func NewOrchestrator(instanceRepo Repository, userTaskRepo usertask.Repository, taskRepo servicetask.Repository, catalogRepo catalog.Repository, defRepo workflowdef.Repository, auditRepo audit.Repository, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		instanceRepo: instanceRepo,
		userTaskRepo: userTaskRepo,
		taskRepo:     taskRepo,
		catalogRepo:  catalogRepo,
		defRepo:      defRepo,
		auditRepo:    auditRepo,
		logger:       logger.With(zap.String("component", "instance-orchestrator")),
	}
}

// Start runs the interpreter from a definition version's BPMN XML,
// persists the resulting Instance row, writes the instance_start audit
// event, and materializes every waiting task the run parked at.
func (o *Orchestrator) Start(ctx context.Context, tenantID uuid.UUID, version *workflowdef.Version, correlationID, businessKey string) (*Instance, error) {
	result, err := interpreter.Start(version.BPMNXML, correlationID, businessKey)
	if err != nil {
		return nil, fmt.Errorf("start workflow run: %w", err)
	}

	inst := &Instance{
		TenantID:            tenantID,
		DefinitionVersionID: version.ID,
		Status:              Status(result.Status),
		CorrelationID:       correlationID,
		BusinessKey:         businessKey,
		SerializedState:     result.SerializedState,
		ErrorMessage:        result.ErrorMessage,
	}
	if err := o.instanceRepo.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("create workflow instance: %w", err)
	}

	if err := o.auditRepo.Write(ctx, audit.Event{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		EventType:           audit.EventInstanceStart,
		CorrelationID:       correlationID,
		BusinessKey:         businessKey,
		WorkflowInstanceID:  &inst.ID,
		DefinitionVersionID: &version.ID,
		Payload:             map[string]interface{}{"status": result.Status},
	}); err != nil {
		return nil, fmt.Errorf("write instance_start audit event: %w", err)
	}

	if err := usertask.Materialize(ctx, o.userTaskRepo, tenantID, inst.ID, result.WaitingUserTasks, o.logger); err != nil {
		return nil, err
	}
	if err := servicetask.Materialize(ctx, o.taskRepo, o.catalogRepo, tenantID, inst.ID, result.WaitingServiceTasks, version.CatalogBindingPlaceholders); err != nil {
		return nil, err
	}

	return inst, nil
}

// Get returns a tenant's instance by id, for the instance-detail endpoint.
func (o *Orchestrator) Get(ctx context.Context, tenantID, id uuid.UUID) (*Instance, error) {
	return o.instanceRepo.GetByID(ctx, tenantID, id)
}
