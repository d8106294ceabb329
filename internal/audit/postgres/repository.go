package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/audit"
)

// Repository implements audit.Repository for PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL repository.
func New(pool interface{}, logger *zap.Logger) (*Repository, error) {
	pgPool, ok := pool.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("expected *pgxpool.Pool, got %T", pool)
	}
	return &Repository{
		pool:   pgPool,
		logger: logger.With(zap.String("component", "audit-postgres-repository")),
	}, nil
}

const writeQuery = `
INSERT INTO audit_events
  (id, tenant_id, event_type, actor_identity, correlation_id, business_key, workflow_instance_id, definition_version_id, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at
`

func (r *Repository) Write(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode audit event payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, writeQuery,
		event.ID, event.TenantID, string(event.EventType), event.ActorIdentity,
		event.CorrelationID, event.BusinessKey, event.WorkflowInstanceID, event.DefinitionVersionID, payload,
	)
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, workflowInstanceID *uuid.UUID, businessKey string) ([]audit.Event, error) {
	query := `
SELECT id, tenant_id, event_type, actor_identity, correlation_id, business_key,
       workflow_instance_id, definition_version_id, payload, created_at
FROM audit_events
WHERE tenant_id = $1
  AND ($2::uuid IS NULL OR workflow_instance_id = $2)
  AND ($3 = '' OR business_key = $3)
ORDER BY created_at DESC
`
	rows, err := r.pool.Query(ctx, query, tenantID, workflowInstanceID, businessKey)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var eventType string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &eventType, &e.ActorIdentity, &e.CorrelationID, &e.BusinessKey,
			&e.WorkflowInstanceID, &e.DefinitionVersionID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.EventType = audit.EventType(eventType)
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode audit event payload: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
