package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/quickwind/orchestrator/internal/tenantctx"
)

// handleListAudit returns the authenticated tenant's audit trail, most
// recent first, optionally filtered by instance_id or business_key query
// parameters.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())

	var instanceID *uuid.UUID
	if raw := r.URL.Query().Get("instance_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeCodeError(w, http.StatusBadRequest, "invalid_request", "instance_id must be a uuid.")
			return
		}
		instanceID = &id
	}
	businessKey := r.URL.Query().Get("business_key")

	events, err := s.deps.AuditRepo.List(r.Context(), tnt.ID, instanceID, businessKey)
	if err != nil {
		s.logger.Error("list audit events failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not list audit events.")
		return
	}

	writeJSON(w, http.StatusOK, events)
}
