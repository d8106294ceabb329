package interpreter

import (
	"fmt"
	"sort"

	"github.com/quickwind/orchestrator/internal/interpreter/script"
)

// TaskStatus is a task instance's position in the token-flow graph.
type TaskStatus string

const (
	statusFuture    TaskStatus = "future"
	statusReady     TaskStatus = "ready"
	statusCompleted TaskStatus = "completed"
)

// taskInstance is one node's runtime state. Since the supported BPMN
// subset excludes loops and multi-instance, a node's element id doubles
// as a stable task-instance id — there is never more than one live
// instance of a node per workflow run.
type taskInstance struct {
	Status   TaskStatus
	Data     map[string]interface{}
	Arrived  int
}

// RunResult is what start/resume produce: a status, the new serialized
// state, and snapshots of whatever the engine is now parked at.
type RunResult struct {
	Status              string
	SerializedState      map[string]interface{}
	WaitingUserTasks     []UserTaskSnapshot
	WaitingServiceTasks []ServiceTaskSnapshot
	ErrorMessage         string
}

// UserTaskSnapshot is a parked user-facing task.
type UserTaskSnapshot struct {
	TaskID   string
	Name     string
	TaskType string
}

// ServiceTaskSnapshot is a parked service task.
type ServiceTaskSnapshot struct {
	TaskID      string
	Name        string
	TaskType    string
	ElementID   string
	ElementName string
}

// ScriptTaskExecutionError reports a ScriptTask failure in the exact
// format the upstream contract expects so callers can surface it
// verbatim as the instance's error_message.
type ScriptTaskExecutionError struct {
	Name   string
	ID     string
	Detail string
}

func (e *ScriptTaskExecutionError) Error() string {
	parts := []string{"ScriptTask execution failed"}
	var tail []string
	if e.Name != "" {
		tail = append(tail, "name="+e.Name)
	}
	if e.ID != "" {
		tail = append(tail, "id="+e.ID)
	}
	if e.Detail != "" {
		tail = append(tail, e.Detail)
	}
	if len(tail) == 0 {
		return parts[0]
	}
	return parts[0] + ": " + joinComma(tail)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// Engine is the one concrete interpreter implementation: Build/RunUntilWaiting/
// Serialize/Deserialize/ReadyTasks/Complete, replacing the dynamic
// attribute-probing the reference implementation used to accommodate
// multiple engine versions.
type Engine struct {
	def   *Definition
	tasks map[string]*taskInstance
	data  map[string]interface{}
}

// Build constructs a fresh engine for def, with only its start node ready.
func Build(def *Definition) *Engine {
	e := &Engine{
		def:   def,
		tasks: map[string]*taskInstance{},
		data:  map[string]interface{}{},
	}
	for id := range def.Nodes {
		e.tasks[id] = &taskInstance{Status: statusFuture, Data: map[string]interface{}{}}
	}
	e.tasks[def.StartNodeID].Status = statusReady
	return e
}

// AttachIdentifiers seeds the workflow root data with correlation and
// business identifiers, mirroring what the reference implementation
// stamps onto the workflow before the first advance.
func (e *Engine) AttachIdentifiers(correlationID, businessKey string) {
	if correlationID != "" {
		e.data["correlation_id"] = correlationID
	}
	if businessKey != "" {
		e.data["business_key"] = businessKey
	}
}

// ReadyTasks returns the currently ready task ids, sorted for
// deterministic snapshot ordering.
func (e *Engine) ReadyTasks() []string {
	var ready []string
	for id, t := range e.tasks {
		if t.Status == statusReady {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

func (e *Engine) isWaiting(id string) bool {
	node := e.def.Nodes[id]
	return node != nil && isWaitingKind(node.Kind)
}

// RunUntilWaiting repeatedly runs every ready, non-waiting task until a
// pass makes no further progress, matching §4.2's advance loop. A
// ScriptTask failure aborts immediately with status "failed".
func (e *Engine) RunUntilWaiting() (status string, errMsg string) {
	for {
		ready := e.ReadyTasks()
		if len(ready) == 0 {
			break
		}
		progressed := false
		for _, id := range ready {
			if e.isWaiting(id) {
				continue
			}
			if err := e.runTask(id); err != nil {
				return "failed", err.Error()
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return e.determineStatus(), ""
}

func (e *Engine) determineStatus() string {
	for _, id := range e.ReadyTasks() {
		if e.isWaiting(id) {
			return "waiting"
		}
	}
	if len(e.ReadyTasks()) == 0 {
		return "completed"
	}
	return "running"
}

// runTask executes one automatic (non-waiting) task and fires its
// outgoing flows.
func (e *Engine) runTask(id string) error {
	node := e.def.Nodes[id]
	task := e.tasks[id]

	switch node.Kind {
	case NodeScriptTask:
		if node.Script == "" {
			return &ScriptTaskExecutionError{Name: node.Name, ID: id, Detail: "missing script"}
		}
		result, err := script.Run(node.Script, e.data, task.Data)
		if err != nil {
			return &ScriptTaskExecutionError{Name: node.Name, ID: id, Detail: err.Error()}
		}
		if result.HasResult {
			e.applyTaskResult(id, result.ResultValue)
		}
		task.Status = statusCompleted
		e.fireOutgoing(node, nil)
		return nil

	case NodeExclusiveGateway:
		target, err := e.selectExclusiveFlow(node)
		if err != nil {
			return err
		}
		task.Status = statusCompleted
		e.fireOutgoing(node, []string{target})
		return nil

	case NodeParallelGateway:
		task.Status = statusCompleted
		e.fireOutgoing(node, nil)
		return nil

	default:
		// StartEvent, EndEvent, SubProcess (opaque pass-through): complete trivially.
		task.Status = statusCompleted
		e.fireOutgoing(node, nil)
		return nil
	}
}

// selectExclusiveFlow evaluates each outgoing flow's guard in flow-id
// order and returns the first flow id whose condition is true, or the
// first unconditional flow as the default.
func (e *Engine) selectExclusiveFlow(node *Node) (string, error) {
	var defaultFlow string
	for _, flowID := range node.Outgoing {
		flow := e.def.Flows[flowID]
		if flow.Condition == "" {
			if defaultFlow == "" {
				defaultFlow = flowID
			}
			continue
		}
		result, err := script.Run("result = "+flow.Condition, e.data, map[string]interface{}{})
		if err != nil {
			return "", fmt.Errorf("evaluate condition on %s: %w", flowID, err)
		}
		if result.HasResult && truthyValue(result.ResultValue) {
			return flowID, nil
		}
	}
	if defaultFlow != "" {
		return defaultFlow, nil
	}
	return "", fmt.Errorf("exclusive gateway %s has no satisfied or default flow", node.ID)
}

func truthyValue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		return true
	}
}

// fireOutgoing advances tokens along node's outgoing flows. When
// selected is nil, every outgoing flow fires (parallel-split / normal
// single-outgoing semantics); otherwise only the listed flow ids fire.
func (e *Engine) fireOutgoing(node *Node, selected []string) {
	flows := node.Outgoing
	if selected != nil {
		flows = selected
	}
	for _, flowID := range flows {
		flow := e.def.Flows[flowID]
		target := e.tasks[flow.TargetRef]
		targetNode := e.def.Nodes[flow.TargetRef]
		if target == nil || targetNode == nil {
			continue
		}
		target.Arrived++
		if target.Status == statusFuture && target.Arrived >= requiredArrivals(targetNode) {
			target.Status = statusReady
		}
	}
}

// applyTaskResult merges a task result into the task's local data and
// into workflow.data.service_task_results[task_id], matching §4.2's
// task-result merge rule (non-map results are wrapped as {result: x}).
func (e *Engine) applyTaskResult(taskID string, result interface{}) {
	payload, ok := result.(map[string]interface{})
	if !ok {
		payload = map[string]interface{}{"result": result}
	}

	task := e.tasks[taskID]
	for k, v := range payload {
		task.Data[k] = v
	}

	results, ok := e.data["service_task_results"].(map[string]interface{})
	if !ok {
		results = map[string]interface{}{}
		e.data["service_task_results"] = results
	}
	results[taskID] = payload
}

// Complete locates a ready task by id, merges its result, and marks it
// complete, then advances outgoing flows. Used by resume() when a
// caller reports a waiting task finished externally.
func (e *Engine) Complete(taskID string, result interface{}) error {
	task, ok := e.tasks[taskID]
	if !ok || task.Status != statusReady {
		return fmt.Errorf("task not found in workflow state: %s", taskID)
	}
	if result != nil {
		e.applyTaskResult(taskID, result)
	}
	node := e.def.Nodes[taskID]
	task.Status = statusCompleted
	e.fireOutgoing(node, nil)
	return nil
}

func (e *Engine) collectWaitingUserTasks() []UserTaskSnapshot {
	var out []UserTaskSnapshot
	for _, id := range e.ReadyTasks() {
		node := e.def.Nodes[id]
		if !isUserFacingKind(node.Kind) {
			continue
		}
		out = append(out, UserTaskSnapshot{TaskID: id, Name: node.Name, TaskType: string(node.Kind)})
	}
	return out
}

func (e *Engine) collectWaitingServiceTasks() []ServiceTaskSnapshot {
	var out []ServiceTaskSnapshot
	for _, id := range e.ReadyTasks() {
		node := e.def.Nodes[id]
		if node.Kind != NodeServiceTask {
			continue
		}
		out = append(out, ServiceTaskSnapshot{
			TaskID: id, Name: node.Name, TaskType: string(node.Kind),
			ElementID: id, ElementName: node.Name,
		})
	}
	return out
}
