package tenantctx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/tenant"
)

type mockTenantRepo struct {
	tenants map[uuid.UUID]*tenant.Tenant
	keys    map[string]*tenant.APIKey
}

func (m *mockTenantRepo) GetTenantByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	if t, ok := m.tenants[id]; ok {
		return t, nil
	}
	return nil, tenant.ErrTenantNotFound
}

func (m *mockTenantRepo) GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return nil, tenant.ErrTenantNotFound
}

func (m *mockTenantRepo) SetDiscoveryURL(ctx context.Context, tenantID uuid.UUID, discoveryURL string) error {
	return nil
}

func (m *mockTenantRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*tenant.APIKey, error) {
	if k, ok := m.keys[keyHash]; ok {
		return k, nil
	}
	return nil, tenant.ErrAPIKeyNotFound
}

func TestAuthMiddleware_MissingHeaderIs401(t *testing.T) {
	repo := &mockTenantRepo{}
	logger, _ := zap.NewDevelopment()
	handler := AuthMiddleware(repo, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_UnknownKeyIs401(t *testing.T) {
	repo := &mockTenantRepo{keys: map[string]*tenant.APIKey{}}
	logger, _ := zap.NewDevelopment()
	handler := AuthMiddleware(repo, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set(APIKeyHeader, "bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_ValidKeyAttachesTenant(t *testing.T) {
	tenantID := uuid.New()
	tnt := &tenant.Tenant{ID: tenantID, Slug: "acme"}
	raw := "raw-key-123"
	repo := &mockTenantRepo{
		tenants: map[uuid.UUID]*tenant.Tenant{tenantID: tnt},
		keys:    map[string]*tenant.APIKey{tenant.HashAPIKey(raw): {ID: uuid.New(), TenantID: tenantID}},
	}
	logger, _ := zap.NewDevelopment()

	var seen *tenant.Tenant
	handler := AuthMiddleware(repo, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set(APIKeyHeader, raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", seen.Slug)
}

func TestFromContext_AbsentReturnsFalse(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
