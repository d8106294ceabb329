// Package catalog models the capability catalog a tenant's discovery sync
// populates: externally hosted services and the individual service-task
// endpoints on them that BPMN ServiceTasks bind to.
package catalog

import "github.com/google/uuid"

// Entry is one externally hosted capability a tenant has registered.
type Entry struct {
	ID          uuid.UUID              `json:"id"`
	TenantID    uuid.UUID              `json:"tenant_id"`
	ExternalID  string                 `json:"external_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Category    string                 `json:"category,omitempty"`
	ServiceURL  string                 `json:"service_url"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ServiceTask is one bindable endpoint on a catalog Entry, the target a
// BPMN ServiceTask's binding resolves to.
type ServiceTask struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	CatalogEntryID uuid.UUID `json:"catalog_entry_id"`
	EntryExternalID string   `json:"catalog_entry_external_id,omitempty"`
	ExternalID     string    `json:"external_id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
}
