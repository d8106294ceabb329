package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quickwind/orchestrator/internal/bpmn"
	"github.com/quickwind/orchestrator/internal/instance"
	"github.com/quickwind/orchestrator/internal/servicetask"
	"github.com/quickwind/orchestrator/internal/tenantctx"
	"github.com/quickwind/orchestrator/internal/usertask"
	"github.com/quickwind/orchestrator/internal/workflowdef"
)

const maxUploadBytes = 5 << 20 // 5MiB, generous for a hand-authored BPMN document

type versionSummaryResponse struct {
	ProcessKey string `json:"process_key"`
	Name       string `json:"name,omitempty"`
	Version    int    `json:"version"`
}

type versionDetailResponse struct {
	ProcessKey                 string        `json:"process_key"`
	Version                    int           `json:"version"`
	BPMNXML                    string        `json:"bpmn_xml"`
	FormSchemaRefs             []interface{} `json:"form_schema_refs"`
	CatalogBindingPlaceholders []interface{} `json:"catalog_binding_placeholders"`
}

// handleUploadWorkflow validates a multipart-uploaded BPMN document and
// persists it as the next monotonic version of its process_key.
func (s *Server) handleUploadWorkflow(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_bpmn_xml", "Could not parse multipart upload.")
		return
	}
	file, header, err := r.FormFile("bpmn")
	if err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_bpmn_xml", "bpmn file part is required.")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_bpmn_xml", "Could not read bpmn file.")
		return
	}
	bpmnXML := string(raw)

	snapshot, errs := bpmn.Validate(bpmnXML)
	if len(errs) > 0 {
		writeValidationErrors(w, errs[0].Code, errs)
		return
	}

	name := header.Filename
	version, err := s.deps.DefRepo.UploadVersion(r.Context(), tnt.ID, snapshot.ProcessKey, name, bpmnXML, formSchemaRefsToInterfaces(snapshot.FormSchemaRefs), catalogBindingsToInterfaces(snapshot.CatalogBindingPlaceholders))
	if err != nil {
		s.logger.Error("upload workflow version failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not persist workflow version.")
		return
	}

	writeJSON(w, http.StatusCreated, versionSummaryResponse{
		ProcessKey: version.ProcessKey,
		Name:       name,
		Version:    version.Version,
	})
}

// handleGetWorkflowVersion returns one version's full detail, including
// its stored BPMN XML, for the workflow version detail endpoint.
func (s *Server) handleGetWorkflowVersion(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())
	key := chi.URLParam(r, "key")
	versionNum, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_bpmn", "version must be an integer.")
		return
	}

	version, err := s.deps.DefRepo.GetVersion(r.Context(), tnt.ID, key, versionNum)
	if errors.Is(err, workflowdef.ErrVersionNotFound) || errors.Is(err, workflowdef.ErrDefinitionNotFound) {
		writeNotFound(w)
		return
	}
	if err != nil {
		s.logger.Error("get workflow version failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not load workflow version.")
		return
	}

	writeJSON(w, http.StatusOK, versionDetailResponse{
		ProcessKey:                 version.ProcessKey,
		Version:                    version.Version,
		BPMNXML:                    version.BPMNXML,
		FormSchemaRefs:             version.FormSchemaRefs,
		CatalogBindingPlaceholders: version.CatalogBindingPlaceholders,
	})
}

type startInstanceRequest struct {
	CorrelationID string `json:"correlation_id"`
	BusinessKey   string `json:"business_key"`
}

type instanceDetailResponse struct {
	*instance.Instance
	ActiveUserTasks    []usertask.Task    `json:"active_user_tasks"`
	ActiveServiceTasks []servicetask.Task `json:"active_service_tasks"`
}

// handleStartInstance starts a new workflow instance from one definition
// version and returns it along with whatever tasks the run parked at.
func (s *Server) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	tnt, _ := tenantctx.FromContext(r.Context())
	key := chi.URLParam(r, "key")
	versionNum, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		writeCodeError(w, http.StatusBadRequest, "invalid_bpmn", "version must be an integer.")
		return
	}

	var req startInstanceRequest
	if r.Body != nil {
		_ = decodeJSONBody(r, &req)
	}

	version, err := s.deps.DefRepo.GetVersion(r.Context(), tnt.ID, key, versionNum)
	if errors.Is(err, workflowdef.ErrVersionNotFound) || errors.Is(err, workflowdef.ErrDefinitionNotFound) {
		writeNotFound(w)
		return
	}
	if err != nil {
		s.logger.Error("load workflow version for start failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not load workflow version.")
		return
	}

	inst, err := s.deps.Orchestrator.Start(r.Context(), tnt.ID, version, req.CorrelationID, req.BusinessKey)
	if err != nil {
		s.logger.Error("start workflow instance failed", zapErr(err))
		writeCodeError(w, http.StatusInternalServerError, "workflow_runtime_error", "Could not start workflow instance.")
		return
	}

	writeJSON(w, http.StatusCreated, s.instanceDetail(r, inst))
}

// instanceDetail assembles the instance-plus-active-tasks response shape
// shared by the start and get-instance endpoints.
func (s *Server) instanceDetail(r *http.Request, inst *instance.Instance) instanceDetailResponse {
	userTasks, err := s.deps.UserTaskRepo.List(r.Context(), inst.TenantID, &inst.ID)
	if err != nil {
		s.logger.Warn("list active user tasks failed", zapErr(err))
		userTasks = nil
	}
	serviceTasks, err := s.deps.ServiceTaskRepo.List(r.Context(), inst.TenantID, &inst.ID)
	if err != nil {
		s.logger.Warn("list active service tasks failed", zapErr(err))
		serviceTasks = nil
	}
	return instanceDetailResponse{Instance: inst, ActiveUserTasks: userTasks, ActiveServiceTasks: serviceTasks}
}

func formSchemaRefsToInterfaces(refs []bpmn.FormSchemaRef) []interface{} {
	out := make([]interface{}, len(refs))
	for i, ref := range refs {
		out[i] = ref
	}
	return out
}

func catalogBindingsToInterfaces(placeholders []bpmn.CatalogBindingPlaceholder) []interface{} {
	out := make([]interface{}, len(placeholders))
	for i, p := range placeholders {
		out[i] = p
	}
	return out
}
