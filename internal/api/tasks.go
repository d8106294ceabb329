package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quickwind/orchestrator/internal/tenantctx"
	"github.com/quickwind/orchestrator/internal/usertask"
)

// handleListUserTasks lists the authenticated tenant's pending user tasks,
// optionally filtered to one workflow instance via the instance_id query
// parameter.
func (s *Server) handleListUserTasks(w http.ResponseWriter, r *http.Request) {
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

	tasks, err := s.deps.UserTaskRepo.List(r.Context(), tnt.ID, instanceID)
	if err != nil {
		s.logger.Error("list user tasks failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not list user tasks.")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

type completeUserTaskRequest struct {
	Actor   string                 `json:"actor"`
	Action  string                 `json:"action"`
	Payload map[string]interface{} `json:"payload"`
}

// handleCompleteUserTask completes one user task under the idempotency
// and row-locking discipline the Controller owns. A repeated request
// carrying the same Idempotency-Key header replays the first response
// byte-for-byte; a differing body with the same key is a 409.
func (s *Server) handleCompleteUserTask(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())

	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w)
		return
	}

	var req completeUserTaskRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body.")
		return
	}
	if req.Actor == "" || req.Action == "" {
		writeCodeError(w, http.StatusBadRequest, "invalid_request", "actor and action are required.")
		return
	}

	task, err := s.deps.UserTasks.Complete(r.Context(), tnt.ID, taskID, usertask.CompleteRequest{
		Actor:          req.Actor,
		Action:         req.Action,
		Payload:        req.Payload,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	switch {
	case errors.Is(err, usertask.ErrNotFound):
		writeNotFound(w)
		return
	case errors.Is(err, usertask.ErrIdempotencyConflict):
		writeConflict(w, "Idempotency key reused with a different request.")
		return
	case err != nil:
		s.logger.Error("complete user task failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not complete user task.")
		return
	}

	writeJSON(w, http.StatusOK, task)
}
