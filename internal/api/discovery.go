package api

import (
	"net/http"

	"github.com/quickwind/orchestrator/internal/tenantctx"
)

type discoveryEndpointResponse struct {
	EndpointURL string `json:"endpoint_url"`
}

// handleGetDiscoveryEndpoint returns the tenant's currently configured
// discovery endpoint URL. The sync process that URL would drive is out
// of scope; this is a thin read of the stored config.
func (s *Server) handleGetDiscoveryEndpoint(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())
	writeJSON(w, http.StatusOK, discoveryEndpointResponse{EndpointURL: tnt.DiscoveryURL})
}

type setDiscoveryEndpointRequest struct {
	EndpointURL string `json:"endpoint_url"`
	APIKey      string `json:"api_key"`
}

// handleSetDiscoveryEndpoint persists a tenant's discovery endpoint
// config. It is a passthrough: no sync is triggered from this handler,
// matching the thin-around-the-core framing of the discovery feature.
func (s *Server) handleSetDiscoveryEndpoint(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())

	var req setDiscoveryEndpointRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body.")
		return
	}
	if req.EndpointURL == "" {
		writeCodeError(w, http.StatusBadRequest, "invalid_request", "endpoint_url is required.")
		return
	}

	if err := s.deps.TenantRepo.SetDiscoveryURL(r.Context(), tnt.ID, req.EndpointURL); err != nil {
		s.logger.Error("set discovery endpoint failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not persist discovery endpoint.")
		return
	}

	writeJSON(w, http.StatusOK, discoveryEndpointResponse{EndpointURL: req.EndpointURL})
}

// handleListCatalog lists the authenticated tenant's capability catalog.
func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())

	entries, err := s.deps.CatalogRepo.List(r.Context(), tnt.ID)
	if err != nil {
		s.logger.Error("list catalog failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not list catalog.")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}
