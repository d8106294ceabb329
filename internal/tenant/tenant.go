package tenant

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// slugPattern validates that a tenant slug is lowercase alphanumeric with hyphens.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Tenant is the isolation unit every other entity is scoped to.
// It is created externally (out of band, by an operator); the only field
// the orchestrator writes is DiscoveryURL, via Repository.SetDiscoveryURL.
type Tenant struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	DiscoveryURL string    `json:"discovery_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks structural invariants on a Tenant.
func (t *Tenant) Validate() error {
	if t.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if len(t.Slug) > 255 {
		return fmt.Errorf("slug must be <= 255 characters")
	}
	if !slugPattern.MatchString(t.Slug) {
		return fmt.Errorf("slug must be lowercase alphanumeric with hyphens")
	}
	return nil
}

// APIKey is authentication material presented by tenant-side callers as the
// X-Tenant-Api-Key header. Only the sha256 hash of the raw key is persisted;
// the raw key never touches storage.
type APIKey struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	KeyHash   string    `json:"key_hash"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HashAPIKey returns the hex sha256 digest of a raw API key, the same
// digest stored as APIKey.KeyHash and used to look up the owning key.
// Service-task callback signatures use the raw key, not this digest, as
// HMAC key material.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
