package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quickwind/orchestrator/internal/instance"
	"github.com/quickwind/orchestrator/internal/tenantctx"
)

// handleGetInstance returns an instance and its active tasks, scoped to
// the authenticated tenant: another tenant's instance id is a 404, never
// a leak of its existence.
func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w)
		return
	}

	inst, err := s.deps.Orchestrator.Get(r.Context(), tnt.ID, id)
	if errors.Is(err, instance.ErrNotFound) {
		writeNotFound(w)
		return
	}
	if err != nil {
		s.logger.Error("get instance failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not load instance.")
		return
	}

	writeJSON(w, http.StatusOK, s.instanceDetail(r, inst))
}
