package tenantctx

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/tenant"
)

// APIKeyHeader is the header every endpoint but /health requires, per §6.
const APIKeyHeader = "X-Tenant-Api-Key"

// AuthMiddleware resolves X-Tenant-Api-Key against tenantRepo and attaches
// the resulting Tenant to the request context, the Go equivalent of
// TenantApiKeyAuthentication.authenticate: missing or unknown key is a 401,
// never a silent pass-through to an unscoped handler.
func AuthMiddleware(tenantRepo tenant.Repository, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(APIKeyHeader)
			if strings.TrimSpace(raw) == "" {
				writeUnauthorized(w)
				return
			}

			apiKey, err := tenantRepo.GetAPIKeyByHash(r.Context(), tenant.HashAPIKey(raw))
			if err != nil {
				writeUnauthorized(w)
				return
			}

			t, err := tenantRepo.GetTenantByID(r.Context(), apiKey.TenantID)
			if err != nil {
				logger.Error("tenant lookup failed for valid api key", zap.String("tenant_id", apiKey.TenantID.String()), zap.Error(err))
				writeUnauthorized(w)
				return
			}

			ctx := WithTenant(r.Context(), t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid tenant API key."})
}
