package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrTenantNotFound is returned when a tenant doesn't exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrAPIKeyNotFound is returned when no APIKey matches a hash.
	ErrAPIKeyNotFound = errors.New("api key not found")
)

// Repository defines the persistence layer for tenants and their API keys.
// Tenants are created externally; this repository only reads them and the
// discovery-endpoint passthrough (§12 of SPEC_FULL.md) writes back a single
// field.
type Repository interface {
	GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	SetDiscoveryURL(ctx context.Context, tenantID uuid.UUID, discoveryURL string) error

	// GetAPIKeyByHash resolves the tenant boundary filter's lookup: given
	// sha256(raw_key), find the owning APIKey (and therefore tenant).
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error)
}
