// Package tenantctx carries the authenticated tenant boundary through a
// request's context.Context, mirroring the contextvars-based
// set_current_tenant/get_current_tenant pair the Django reference used,
// and internal/logger's WithContext/FromContext context-key idiom.
package tenantctx

import (
	"context"

	"github.com/quickwind/orchestrator/internal/tenant"
)

type contextKey string

const tenantKey contextKey = "tenant"

// WithTenant returns a context carrying t, the tenant every downstream
// repository call scopes its queries to.
func WithTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// FromContext retrieves the tenant set by the auth middleware. ok is
// false if no tenant was authenticated on this request.
func FromContext(ctx context.Context) (*tenant.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*tenant.Tenant)
	return t, ok && t != nil
}
