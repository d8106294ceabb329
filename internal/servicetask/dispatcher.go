package servicetask

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/audit"
	"github.com/quickwind/orchestrator/internal/canonicaljson"
	"github.com/quickwind/orchestrator/internal/catalog"
	"github.com/quickwind/orchestrator/internal/interpreter"
	"github.com/quickwind/orchestrator/internal/tenant"
	"github.com/quickwind/orchestrator/internal/usertask"
	"github.com/quickwind/orchestrator/internal/workflowdef"
)

// Dispatcher implements the Start and Callback state machines against a
// ServiceTask row. It owns raw SQL against workflow_instances directly,
// mirroring the precedent set by usertask.Controller's direct write to
// audit_events: both leaf packages avoid importing internal/instance to
// keep the dependency graph one-directional (instance -> usertask,
// servicetask; never the reverse).
type Dispatcher struct {
	pool         *pgxpool.Pool
	catalogRepo  catalog.Repository
	userTaskRepo usertask.Repository
	taskRepo     Repository
	defRepo      workflowdef.Repository
	auditRepo    audit.Repository
	tenantRepo   tenant.Repository
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewDispatcher builds a Dispatcher over a shared connection pool and its
// collaborator repositories.
func NewDispatcher(pool *pgxpool.Pool, catalogRepo catalog.Repository, userTaskRepo usertask.Repository, taskRepo Repository, defRepo workflowdef.Repository, auditRepo audit.Repository, tenantRepo tenant.Repository, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pool:         pool,
		catalogRepo:  catalogRepo,
		userTaskRepo: userTaskRepo,
		taskRepo:     taskRepo,
		defRepo:      defRepo,
		auditRepo:    auditRepo,
		tenantRepo:   tenantRepo,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger.With(zap.String("component", "service-task-dispatcher")),
	}
}

const lockServiceTaskQuery = `
SELECT id, tenant_id, workflow_instance_id, task_id, name, task_type, element_id, element_name,
       status, execution_mode, catalog_service_task_id, request_payload, response_payload,
       last_error, started_at, completed_at, created_at, updated_at
FROM service_tasks
WHERE tenant_id = $1 AND id = $2
FOR UPDATE
`

const lockInstanceQuery = `
SELECT id, tenant_id, definition_version_id, status, correlation_id, business_key, serialized_state, error_message
FROM workflow_instances
WHERE tenant_id = $1 AND id = $2
FOR UPDATE
`

type lockedInstance struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	DefinitionVersionID uuid.UUID
	Status              string
	CorrelationID       string
	BusinessKey         string
	SerializedState     map[string]interface{}
	ErrorMessage        string
}

func loadInstanceForUpdate(ctx context.Context, tx pgx.Tx, tenantID, id uuid.UUID) (*lockedInstance, error) {
	var inst lockedInstance
	var serialized []byte
	err := tx.QueryRow(ctx, lockInstanceQuery, tenantID, id).Scan(
		&inst.ID, &inst.TenantID, &inst.DefinitionVersionID, &inst.Status,
		&inst.CorrelationID, &inst.BusinessKey, &serialized, &inst.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if len(serialized) > 0 {
		if err := json.Unmarshal(serialized, &inst.SerializedState); err != nil {
			return nil, fmt.Errorf("decode serialized_state: %w", err)
		}
	}
	return &inst, nil
}

const updateInstanceQuery = `
UPDATE workflow_instances
SET status = $3, serialized_state = $4, error_message = $5, updated_at = $6
WHERE tenant_id = $1 AND id = $2
`

const markInstanceFailedQuery = `
UPDATE workflow_instances
SET status = $3, error_message = $4, updated_at = $5
WHERE tenant_id = $1 AND id = $2
`

func persistInstance(ctx context.Context, tx pgx.Tx, tenantID, id uuid.UUID, status string, serializedState map[string]interface{}, errorMessage string) error {
	encoded, err := json.Marshal(serializedState)
	if err != nil {
		return fmt.Errorf("encode serialized_state: %w", err)
	}
	_, err = tx.Exec(ctx, updateInstanceQuery, tenantID, id, status, encoded, errorMessage, time.Now().UTC())
	return err
}

const updateServiceTaskStampQuery = `
UPDATE service_tasks
SET catalog_service_task_id = $3, request_payload = $4, execution_mode = $5, status = 'in_progress',
    started_at = $6, last_error = '', updated_at = $6
WHERE tenant_id = $1 AND id = $2
`

const settleServiceTaskQuery = `
UPDATE service_tasks
SET status = $3, response_payload = $4, last_error = $5, completed_at = $6, updated_at = $7
WHERE tenant_id = $1 AND id = $2
`

// Start runs the Start state machine's lock/resolve/stamp transaction,
// then the outbound HTTP dispatch outside any transaction, then the
// settle transaction, exactly mirroring the two-transaction bracket
// pattern the concurrency model requires for outbound calls.
func (d *Dispatcher) Start(ctx context.Context, tenantID, taskID uuid.UUID, req StartRequest) (*Task, error) {
	task, inst, version, err := d.lockAndStamp(ctx, tenantID, taskID, req)
	if err != nil || task == nil {
		return task, err
	}
	if inst == nil {
		// Not pending/failed: step 1's no-op path, current state as-is.
		return task, nil
	}

	if err := d.writeAudit(ctx, tenantID, audit.EventServiceTaskStart, "", task.WorkflowInstanceID, map[string]interface{}{
		"task_id": task.TaskID, "execution_mode": string(task.ExecutionMode),
	}); err != nil {
		return nil, err
	}

	endpoint, err := d.resolveEndpointURL(ctx, tenantID, task)
	if err != nil {
		return nil, err
	}

	envelope := map[string]interface{}{
		"payload": task.RequestPayload,
		"context": requestContext(task, inst, req.CallbackURL),
	}
	body, err := canonicaljson.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode service task request: %w", err)
	}

	respBody, httpErr := d.post(ctx, endpoint, body, inst.CorrelationID)
	return d.settleStart(ctx, tenantID, task, inst, version, respBody, httpErr)
}

func requestContext(task *Task, inst *lockedInstance, callbackURL string) map[string]interface{} {
	ctxMap := map[string]interface{}{
		"workflow_instance_id": task.WorkflowInstanceID.String(),
		"service_task_id":      task.ID.String(),
		"task_id":              task.TaskID,
		"correlation_id":       inst.CorrelationID,
		"execution_mode":       string(task.ExecutionMode),
	}
	if task.ExecutionMode == ModeAsync && callbackURL != "" {
		ctxMap["callback_url"] = callbackURL
	}
	return ctxMap
}

// lockAndStamp runs step 1-3 of the Start algorithm inside a single
// transaction: load+reject, resolve catalog binding, stamp fields, commit.
func (d *Dispatcher) lockAndStamp(ctx context.Context, tenantID, taskID uuid.UUID, req StartRequest) (*Task, *lockedInstance, *workflowdef.Version, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("begin start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	task, err := scanLockedServiceTask(tx.QueryRow(ctx, lockServiceTaskQuery, tenantID, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("lock service task: %w", err)
	}

	if task.Status != StatusPending && task.Status != StatusFailed {
		if err := tx.Commit(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("commit no-op start transaction: %w", err)
		}
		return task, nil, nil, nil
	}

	inst, err := loadInstanceForUpdate(ctx, tx, tenantID, task.WorkflowInstanceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("lock workflow instance: %w", err)
	}

	version, err := d.defRepo.GetVersionByID(ctx, tenantID, inst.DefinitionVersionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load definition version: %w", err)
	}

	catalogServiceTaskID, err := d.resolveBinding(ctx, tenantID, task, version, req)
	if err != nil {
		return nil, nil, nil, err
	}

	mode := req.ExecutionMode
	if mode == "" {
		mode = ModeSync
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	requestPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode request_payload: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, updateServiceTaskStampQuery, tenantID, task.ID, catalogServiceTaskID, requestPayload, string(mode), now); err != nil {
		return nil, nil, nil, fmt.Errorf("stamp service task start: %w", err)
	}

	task.CatalogServiceTaskID = catalogServiceTaskID
	task.RequestPayload = payload
	task.ExecutionMode = mode
	task.Status = StatusInProgress
	task.StartedAt = &now
	task.LastError = ""

	// The catalog lookup needs the freshly-resolved binding's target URL;
	// fetch it now while still inside the transaction so Start's caller
	// can dispatch outside it without a second round trip.
	st, err := d.serviceTaskTarget(ctx, tenantID, catalogServiceTaskID)
	if err != nil {
		return nil, nil, nil, err
	}
	task.targetURL = st.URL

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("commit start transaction: %w", err)
	}
	return task, inst, version, nil
}

func (d *Dispatcher) serviceTaskTarget(ctx context.Context, tenantID uuid.UUID, catalogServiceTaskID *uuid.UUID) (*catalog.ServiceTask, error) {
	if catalogServiceTaskID == nil {
		return nil, ErrMissingCatalogBinding
	}
	return d.catalogRepo.GetServiceTaskByID(ctx, tenantID, *catalogServiceTaskID)
}

func (d *Dispatcher) resolveEndpointURL(ctx context.Context, tenantID uuid.UUID, task *Task) (string, error) {
	if task.targetURL != "" {
		return task.targetURL, nil
	}
	st, err := d.serviceTaskTarget(ctx, tenantID, task.CatalogServiceTaskID)
	if err != nil {
		return "", err
	}
	return st.URL, nil
}

// resolveBinding runs step 2 of the Start algorithm: verify-if-bound,
// bind-from-request, or auto-bind from the definition version's
// catalog_binding_placeholders.
func (d *Dispatcher) resolveBinding(ctx context.Context, tenantID uuid.UUID, task *Task, version *workflowdef.Version, req StartRequest) (*uuid.UUID, error) {
	if task.CatalogServiceTaskID != nil {
		if req.CatalogEntryID != "" || req.CatalogServiceTaskID != "" {
			st, err := d.catalogRepo.FindServiceTask(ctx, tenantID, req.CatalogEntryID, req.CatalogServiceTaskID)
			if err != nil {
				return nil, fmt.Errorf("resolve supplied catalog binding: %w", err)
			}
			if st.ID != *task.CatalogServiceTaskID {
				return nil, ErrCatalogBindingConflict
			}
		}
		return task.CatalogServiceTaskID, nil
	}

	if req.CatalogEntryID != "" && req.CatalogServiceTaskID != "" {
		st, err := d.catalogRepo.FindServiceTask(ctx, tenantID, req.CatalogEntryID, req.CatalogServiceTaskID)
		if err != nil {
			return nil, fmt.Errorf("resolve supplied catalog binding: %w", err)
		}
		return &st.ID, nil
	}

	if bound, ok := resolveAutoBinding(version.CatalogBindingPlaceholders, task.ElementID, task.ElementName); ok {
		st, err := d.catalogRepo.FindServiceTask(ctx, tenantID, bound.CatalogEntryID, bound.ServiceTaskID)
		if err != nil {
			if errors.Is(err, catalog.ErrServiceTaskNotFound) || errors.Is(err, catalog.ErrEntryNotFound) {
				return nil, ErrMissingCatalogBinding
			}
			return nil, fmt.Errorf("resolve auto-bound catalog binding: %w", err)
		}
		return &st.ID, nil
	}

	return nil, ErrMissingCatalogBinding
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte, correlationID string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create service task request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if correlationID != "" {
		httpReq.Header.Set("X-Correlation-Id", correlationID)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody := make([]byte, 0, 4096)
	buf := bytes.NewBuffer(respBody)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read service task response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return buf.Bytes(), fmt.Errorf("service_task_http_error: unexpected status %d", resp.StatusCode)
	}
	return buf.Bytes(), nil
}

// settleStart runs the second transaction of Start: branch on http error,
// async success, or sync success (which resumes the interpreter inline).
func (d *Dispatcher) settleStart(ctx context.Context, tenantID uuid.UUID, task *Task, inst *lockedInstance, version *workflowdef.Version, respBody []byte, httpErr error) (*Task, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin settle transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	responseData := normalizeResponse(respBody)
	now := time.Now().UTC()

	if httpErr != nil {
		lastError := httpErr.Error()
		responsePayload, _ := json.Marshal(responseData)
		if _, err := tx.Exec(ctx, settleServiceTaskQuery, tenantID, task.ID, string(StatusFailed), responsePayload, lastError, now, now); err != nil {
			return nil, fmt.Errorf("settle failed service task: %w", err)
		}
		if err := persistInstance(ctx, tx, tenantID, inst.ID, string(instanceFailedStatus), inst.SerializedState, lastError); err != nil {
			return nil, fmt.Errorf("fail workflow instance: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit failed settle transaction: %w", err)
		}
		task.Status = StatusFailed
		task.LastError = lastError
		task.ResponsePayload = responseData
		task.CompletedAt = &now
		return task, fmt.Errorf("%w", ErrServiceHTTPFailed)
	}

	if task.ExecutionMode == ModeAsync {
		responsePayload, _ := json.Marshal(responseData)
		if _, err := tx.Exec(ctx, settleServiceTaskQuery, tenantID, task.ID, string(StatusWaiting), responsePayload, "", nil, now); err != nil {
			return nil, fmt.Errorf("settle waiting service task: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit waiting settle transaction: %w", err)
		}
		task.Status = StatusWaiting
		task.ResponsePayload = responseData
		return task, nil
	}

	result, err := interpreter.Resume(version.BPMNXML, inst.SerializedState, task.TaskID, responseData, inst.CorrelationID, inst.BusinessKey)
	if err != nil {
		return nil, fmt.Errorf("resume interpreter after sync service task: %w", err)
	}
	if err := persistInstance(ctx, tx, tenantID, inst.ID, result.Status, result.SerializedState, result.ErrorMessage); err != nil {
		return nil, fmt.Errorf("persist instance after sync service task: %w", err)
	}
	if err := usertask.Materialize(ctx, d.userTaskRepo, tenantID, inst.ID, result.WaitingUserTasks, d.logger); err != nil {
		return nil, err
	}
	if err := Materialize(ctx, d.taskRepo, d.catalogRepo, tenantID, inst.ID, result.WaitingServiceTasks, version.CatalogBindingPlaceholders); err != nil {
		return nil, err
	}

	responsePayload, _ := json.Marshal(responseData)
	if _, err := tx.Exec(ctx, settleServiceTaskQuery, tenantID, task.ID, string(StatusCompleted), responsePayload, "", now, now); err != nil {
		return nil, fmt.Errorf("settle completed service task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit sync settle transaction: %w", err)
	}
	task.Status = StatusCompleted
	task.ResponsePayload = responseData
	task.CompletedAt = &now
	return task, nil
}

const instanceFailedStatus = "failed"

// ErrServiceHTTPFailed signals that Start's outbound call failed or
// returned a non-2xx status; the caller maps this to a 502 response.
var ErrServiceHTTPFailed = errors.New("service task dispatch failed")

func normalizeResponse(body []byte) interface{} {
	if len(body) == 0 {
		return map[string]interface{}{}
	}
	var generic interface{}
	if err := json.Unmarshal(body, &generic); err != nil {
		return map[string]interface{}{"result": string(body)}
	}
	if m, ok := generic.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"result": generic}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLockedServiceTask(row rowScanner) (*Task, error) {
	var t Task
	var status, executionMode string
	var requestPayload, responsePayload []byte
	err := row.Scan(&t.ID, &t.TenantID, &t.WorkflowInstanceID, &t.TaskID, &t.Name, &t.TaskType, &t.ElementID, &t.ElementName,
		&status, &executionMode, &t.CatalogServiceTaskID, &requestPayload, &responsePayload,
		&t.LastError, &t.StartedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.ExecutionMode = ExecutionMode(executionMode)
	if len(requestPayload) > 0 {
		_ = json.Unmarshal(requestPayload, &t.RequestPayload)
	}
	if len(responsePayload) > 0 {
		_ = json.Unmarshal(responsePayload, &t.ResponsePayload)
	}
	return &t, nil
}

func (d *Dispatcher) writeAudit(ctx context.Context, tenantID uuid.UUID, eventType audit.EventType, actor string, workflowInstanceID uuid.UUID, payload map[string]interface{}) error {
	return d.auditRepo.Write(ctx, audit.Event{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		EventType:          eventType,
		ActorIdentity:      actor,
		WorkflowInstanceID: &workflowInstanceID,
		Payload:            payload,
	})
}

const lockCallbackIdempotencyQuery = `
SELECT service_task_id, request_hash, response_payload
FROM service_task_callback_idempotency
WHERE tenant_id = $1 AND idempotency_key = $2
FOR UPDATE
`

const insertCallbackIdempotencyQuery = `
INSERT INTO service_task_callback_idempotency (id, tenant_id, service_task_id, idempotency_key, request_hash, response_payload)
VALUES ($1, $2, $3, $4, $5, $6)
`

// Callback implements the Callback state machine: header-based HMAC
// authentication (not tenant-header scoped, since the caller is the
// tenant's own service, not an orchestrator API consumer), idempotency
// replay, and either a failure transition or an interpreter resume.
func (d *Dispatcher) Callback(ctx context.Context, taskID uuid.UUID, req CallbackRequest) (*Task, error) {
	if req.RawAPIKey == "" {
		return nil, ErrUnauthorizedCallback
	}
	if req.Timestamp == "" || req.Signature == "" {
		return nil, ErrCallbackBadRequest
	}

	apiKey, err := d.tenantRepo.GetAPIKeyByHash(ctx, tenant.HashAPIKey(req.RawAPIKey))
	if err != nil {
		return nil, ErrUnauthorizedCallback
	}
	if !verifyCallbackSignature(req.RawAPIKey, req.Body, req.Timestamp, req.Signature) {
		return nil, ErrUnauthorizedCallback
	}
	tenantID := apiKey.TenantID

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin callback transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	task, err := scanLockedServiceTask(tx.QueryRow(ctx, lockServiceTaskQuery, tenantID, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock service task: %w", err)
	}

	requestHash := callbackRequestHash(req.Body, req.Timestamp)

	if req.IdempotencyKey != "" {
		var existingTaskID uuid.UUID
		var existingHash string
		var existingResponse []byte
		err := tx.QueryRow(ctx, lockCallbackIdempotencyQuery, tenantID, req.IdempotencyKey).Scan(&existingTaskID, &existingHash, &existingResponse)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lock callback idempotency record: %w", err)
		}
		if err == nil {
			if existingTaskID != taskID || existingHash != requestHash {
				return nil, ErrIdempotencyConflict
			}
			var replay Task
			if err := json.Unmarshal(existingResponse, &replay); err != nil {
				return nil, fmt.Errorf("decode idempotent callback response: %w", err)
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit replay transaction: %w", err)
			}
			return &replay, nil
		}
	}

	if task.Status == StatusCompleted {
		if req.IdempotencyKey != "" {
			if err := storeCallbackIdempotency(ctx, tx, tenantID, taskID, req.IdempotencyKey, requestHash, task); err != nil {
				return nil, err
			}
		}
		if err := d.writeAudit(ctx, tenantID, audit.EventServiceTaskCallback, "", task.WorkflowInstanceID, map[string]interface{}{
			"task_id": task.TaskID, "status": string(task.Status), "callback_status": "already_completed",
		}); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit already-completed callback transaction: %w", err)
		}
		return task, nil
	}

	var body map[string]interface{}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return nil, fmt.Errorf("decode callback body: %w", err)
	}
	callbackStatus, _ := body["status"].(string)
	callbackStatus = strings.ToLower(callbackStatus)

	now := time.Now().UTC()

	if callbackStatus == "failed" {
		callbackError, _ := body["error"].(string)
		resultData := extractResultData(body)
		responsePayload, _ := json.Marshal(resultData)
		if _, err := tx.Exec(ctx, settleServiceTaskQuery, tenantID, task.ID, string(StatusFailed), responsePayload, callbackError, now, now); err != nil {
			return nil, fmt.Errorf("settle failed callback: %w", err)
		}
		if _, err := tx.Exec(ctx, markInstanceFailedQuery, tenantID, task.WorkflowInstanceID, instanceFailedStatus, callbackError, now); err != nil {
			return nil, fmt.Errorf("fail workflow instance: %w", err)
		}
		task.Status = StatusFailed
		task.LastError = callbackError
		task.ResponsePayload = resultData
		task.CompletedAt = &now
	} else {
		inst, err := loadInstanceForUpdate(ctx, tx, tenantID, task.WorkflowInstanceID)
		if err != nil {
			return nil, fmt.Errorf("lock workflow instance: %w", err)
		}
		version, err := d.defRepo.GetVersionByID(ctx, tenantID, inst.DefinitionVersionID)
		if err != nil {
			return nil, fmt.Errorf("load definition version: %w", err)
		}
		resultData := extractResultData(body)
		result, err := interpreter.Resume(version.BPMNXML, inst.SerializedState, task.TaskID, resultData, inst.CorrelationID, inst.BusinessKey)
		if err != nil {
			return nil, fmt.Errorf("resume interpreter after callback: %w", err)
		}
		if err := persistInstance(ctx, tx, tenantID, inst.ID, result.Status, result.SerializedState, result.ErrorMessage); err != nil {
			return nil, fmt.Errorf("persist instance after callback: %w", err)
		}
		if err := usertask.Materialize(ctx, d.userTaskRepo, tenantID, inst.ID, result.WaitingUserTasks, d.logger); err != nil {
			return nil, err
		}
		if err := Materialize(ctx, d.taskRepo, d.catalogRepo, tenantID, inst.ID, result.WaitingServiceTasks, version.CatalogBindingPlaceholders); err != nil {
			return nil, err
		}

		responsePayload, _ := json.Marshal(resultData)
		if _, err := tx.Exec(ctx, settleServiceTaskQuery, tenantID, task.ID, string(StatusCompleted), responsePayload, "", now, now); err != nil {
			return nil, fmt.Errorf("settle completed callback: %w", err)
		}
		task.Status = StatusCompleted
		task.ResponsePayload = resultData
		task.CompletedAt = &now
	}

	if err := d.writeAudit(ctx, tenantID, audit.EventServiceTaskCallback, "", task.WorkflowInstanceID, map[string]interface{}{
		"task_id": task.TaskID, "status": string(task.Status), "callback_status": callbackStatus, "error": task.LastError,
	}); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if err := storeCallbackIdempotency(ctx, tx, tenantID, taskID, req.IdempotencyKey, requestHash, task); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit callback transaction: %w", err)
	}
	return task, nil
}

func storeCallbackIdempotency(ctx context.Context, tx pgx.Tx, tenantID, taskID uuid.UUID, key, requestHash string, response *Task) error {
	encoded, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode idempotent callback response: %w", err)
	}
	_, err = tx.Exec(ctx, insertCallbackIdempotencyQuery, uuid.New(), tenantID, taskID, key, requestHash, encoded)
	if err != nil {
		return fmt.Errorf("store callback idempotency record: %w", err)
	}
	return nil
}

// callbackRequestHash is a plain sha256 over body||timestamp, the same
// bytes the signature covers, rather than canonical_json (the callback body's byte form is already
// what the signature was computed over).
func callbackRequestHash(body []byte, timestamp string) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(timestamp))
	return hex.EncodeToString(h.Sum(nil))
}

// extractResultData prefers body.data, then body.result, then the whole
// decoded body, matching the reference's result_data resolution order.
func extractResultData(body map[string]interface{}) interface{} {
	if data, ok := body["data"]; ok {
		return data
	}
	if result, ok := body["result"]; ok {
		return result
	}
	return body
}

// verifyCallbackSignature implements the callback HMAC check: expected =
// hex(HMAC_SHA256(key = rawAPIKey bytes, msg = body || timestamp bytes)),
// constant-time compared against the supplied signature.
func verifyCallbackSignature(rawAPIKey string, body []byte, timestamp, signature string) bool {
	mac := hmac.New(sha256.New, []byte(rawAPIKey))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
