package interpreter

import "fmt"

// Start builds a fresh engine from bpmnXML, attaches correlation and
// business identifiers, advances it to its first waiting state, and
// returns the result.
func Start(bpmnXML, correlationID, businessKey string) (*RunResult, error) {
	def, err := ParseDefinition(bpmnXML)
	if err != nil {
		return nil, fmt.Errorf("workflow_runtime_error: %w", err)
	}

	engine := Build(def)
	engine.AttachIdentifiers(correlationID, businessKey)
	return runAndSnapshot(engine), nil
}

// Resume loads an engine from serializedState, optionally completes a
// ready task with a result, advances it, and returns the result.
func Resume(bpmnXML string, serializedState map[string]interface{}, completedTaskID string, taskResult interface{}, correlationID, businessKey string) (*RunResult, error) {
	def, err := ParseDefinition(bpmnXML)
	if err != nil {
		return nil, fmt.Errorf("workflow_runtime_error: %w", err)
	}

	engine, err := Deserialize(def, serializedState)
	if err != nil {
		return nil, fmt.Errorf("workflow_runtime_error: %w", err)
	}
	engine.AttachIdentifiers(correlationID, businessKey)

	if completedTaskID != "" {
		if err := engine.Complete(completedTaskID, taskResult); err != nil {
			return nil, fmt.Errorf("workflow_runtime_error: %w", err)
		}
	}

	return runAndSnapshot(engine), nil
}

func runAndSnapshot(engine *Engine) *RunResult {
	status, errMsg := engine.RunUntilWaiting()

	result := &RunResult{
		Status:          status,
		SerializedState: engine.Serialize(),
		ErrorMessage:    errMsg,
	}
	if status != "failed" {
		result.WaitingUserTasks = engine.collectWaitingUserTasks()
		result.WaitingServiceTasks = engine.collectWaitingServiceTasks()
	}
	return result
}
