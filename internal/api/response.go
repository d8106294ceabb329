package api

import (
	"encoding/json"
	"net/http"

	"github.com/quickwind/orchestrator/internal/bpmn"
)

// writeJSON writes body as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeDetail writes the `{detail}` shape used for 401/404/409 responses.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeNotFound writes the standard 404 body.
func writeNotFound(w http.ResponseWriter) {
	writeDetail(w, http.StatusNotFound, "Not found.")
}

// writeConflict writes a 409 `{detail:"… conflict."}` body.
func writeConflict(w http.ResponseWriter, detail string) {
	writeDetail(w, http.StatusConflict, detail)
}

// writeCodeError writes the `{code, message}` shape used for most 400s,
// the 500 workflow_runtime_error, and the 502 service_task_http_error.
func writeCodeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// writeValidationErrors writes the `{code, errors}` shape for BPMN upload
// rejections, where errs carries one entry per offending element.
func writeValidationErrors(w http.ResponseWriter, code string, errs []bpmn.Error) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": code, "errors": errs})
}
