package interpreter

import "fmt"

// Serialize produces the JSON-compatible map that is the single source
// of truth for a workflow run between requests. Round-tripping through
// Deserialize on the same definition must reproduce an equivalent
// engine (modulo insignificant map ordering).
func (e *Engine) Serialize() map[string]interface{} {
	tasks := make(map[string]interface{}, len(e.tasks))
	for id, t := range e.tasks {
		tasks[id] = map[string]interface{}{
			"status":  string(t.Status),
			"data":    t.Data,
			"arrived": t.Arrived,
		}
	}
	return map[string]interface{}{
		"data":  e.data,
		"tasks": tasks,
	}
}

// Deserialize rebuilds an engine for def from a previously serialized
// state.
func Deserialize(def *Definition, state map[string]interface{}) (*Engine, error) {
	e := &Engine{def: def, tasks: map[string]*taskInstance{}, data: map[string]interface{}{}}

	if data, ok := state["data"].(map[string]interface{}); ok {
		e.data = data
	}

	rawTasks, ok := state["tasks"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("deserialize: missing tasks map")
	}
	for id, node := range def.Nodes {
		_ = node
		rawTask, ok := rawTasks[id].(map[string]interface{})
		if !ok {
			e.tasks[id] = &taskInstance{Status: statusFuture, Data: map[string]interface{}{}}
			continue
		}
		status, _ := rawTask["status"].(string)
		taskData, _ := rawTask["data"].(map[string]interface{})
		if taskData == nil {
			taskData = map[string]interface{}{}
		}
		arrived := 0
		switch v := rawTask["arrived"].(type) {
		case int:
			arrived = v
		case int64:
			arrived = int(v)
		case float64:
			arrived = int(v)
		}
		e.tasks[id] = &taskInstance{Status: TaskStatus(status), Data: taskData, Arrived: arrived}
	}
	return e, nil
}
