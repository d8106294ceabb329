package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quickwind/orchestrator/internal/servicetask"
	"github.com/quickwind/orchestrator/internal/tenantctx"
)

// handleListServiceTasks lists the authenticated tenant's service tasks,
// optionally filtered to one workflow instance via the instance_id query
// parameter.
func (s *Server) handleListServiceTasks(w http.ResponseWriter, r *http.Request) {
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

	tasks, err := s.deps.ServiceTaskRepo.List(r.Context(), tnt.ID, instanceID)
	if err != nil {
		s.logger.Error("list service tasks failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not list service tasks.")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

type startServiceTaskRequest struct {
	CatalogEntryID string                 `json:"catalog_entry_id"`
	ServiceTaskID  string                 `json:"service_task_id"`
	ExecutionMode  string                 `json:"execution_mode"`
	Payload        map[string]interface{} `json:"payload"`
	CallbackURL    string                 `json:"callback_url"`
}

// handleStartServiceTask dispatches one service task against its resolved
// catalog binding, synchronously or asynchronously per execution_mode.
func (s *Server) handleStartServiceTask(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())

	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w)
		return
	}

	var req startServiceTaskRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body.")
		return
	}

	mode := servicetask.ModeSync
	if req.ExecutionMode != "" {
		mode = servicetask.ExecutionMode(req.ExecutionMode)
	}

	task, err := s.deps.ServiceTasks.Start(r.Context(), tnt.ID, taskID, servicetask.StartRequest{
		Payload:              req.Payload,
		ExecutionMode:        mode,
		CallbackURL:          req.CallbackURL,
		CatalogEntryID:       req.CatalogEntryID,
		CatalogServiceTaskID: req.ServiceTaskID,
	})
	switch {
	case errors.Is(err, servicetask.ErrNotFound):
		writeNotFound(w)
		return
	case errors.Is(err, servicetask.ErrCatalogBindingConflict):
		writeConflict(w, "Supplied catalog binding conflicts with the task's existing binding.")
		return
	case errors.Is(err, servicetask.ErrMissingCatalogBinding):
		writeCodeError(w, http.StatusBadRequest, "missing_catalog_binding", "No catalog binding could be resolved for this service task.")
		return
	case errors.Is(err, servicetask.ErrServiceHTTPFailed):
		writeCodeError(w, http.StatusBadGateway, "service_task_http_error", "Upstream service task endpoint failed.")
		return
	case err != nil:
		s.logger.Error("start service task failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not start service task.")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// handleServiceTaskCallback completes an async-dispatched service task.
// Authentication is HMAC-SHA256 over body||timestamp using the raw
// X-Tenant-Api-Key as key material, not the tenant auth middleware
// already applied to this route (redundant but harmless: both resolve
// the same key to the same tenant).
func (s *Server) handleServiceTaskCallback(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_request", "Could not read callback body.")
		return
	}

	task, err := s.deps.ServiceTasks.Callback(r.Context(), taskID, servicetask.CallbackRequest{
		RawAPIKey:      r.Header.Get(tenantctx.APIKeyHeader),
		Body:           body,
		Timestamp:      r.Header.Get("X-Callback-Timestamp"),
		Signature:      r.Header.Get("X-Callback-Signature"),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	switch {
	case errors.Is(err, servicetask.ErrCallbackBadRequest):
		writeCodeError(w, http.StatusBadRequest, "invalid_request", "Missing callback timestamp or signature.")
		return
	case errors.Is(err, servicetask.ErrUnauthorizedCallback):
		writeDetail(w, http.StatusUnauthorized, "Invalid callback signature.")
		return
	case errors.Is(err, servicetask.ErrNotFound):
		writeNotFound(w)
		return
	case errors.Is(err, servicetask.ErrIdempotencyConflict):
		writeConflict(w, "Idempotency key reused with a different callback body.")
		return
	case err != nil:
		s.logger.Error("service task callback failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not process callback.")
		return
	}

	writeJSON(w, http.StatusOK, task)
}
