// Package workflowdef models uploaded BPMN process definitions and their
// immutable, monotonically versioned snapshots.
package workflowdef

import (
	"time"

	"github.com/google/uuid"
)

// Definition is a tenant's named process: the (tenant, process_key) pair
// every uploaded version is grouped under.
type Definition struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ProcessKey string   `json:"process_key"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is one immutable upload of a Definition's BPMN XML. Versions are
// numbered 1, 2, 3... per definition, assigned under row lock so concurrent
// uploads never collide (§4.1 of the BPMN Validator / upload contract).
type Version struct {
	ID                         uuid.UUID       `json:"id"`
	TenantID                   uuid.UUID       `json:"tenant_id"`
	DefinitionID               uuid.UUID       `json:"definition_id"`
	ProcessKey                 string          `json:"process_key"`
	Version                    int             `json:"version"`
	BPMNXML                    string          `json:"bpmn_xml"`
	FormSchemaRefs             []interface{}   `json:"form_schema_refs"`
	CatalogBindingPlaceholders []interface{}   `json:"catalog_binding_placeholders"`
	CreatedAt                  time.Time       `json:"created_at"`
}
